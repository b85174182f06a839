// Package export renders stored business cards as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

const sheetName = "Cards"

var columns = []string{
	"Name", "English Name", "Company", "Job Title", "Department",
	"Email", "Phone", "Mobile", "Fax", "Address", "Website", "Notes", "Created",
}

// WriteCards writes the cards as one xlsx sheet, one row per card, in
// the order given.
func WriteCards(w io.Writer, cards []*domain.BusinessCard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, header := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for row, card := range cards {
		values := []any{
			card.Name, card.NameEnglish, card.Company, card.JobTitle, card.Department,
			card.Email, card.Phone, card.Mobile, card.Fax, card.Address, card.Website, card.Notes,
			card.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", row+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
