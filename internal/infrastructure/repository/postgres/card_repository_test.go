package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

func newCardRepoWithMock(t *testing.T) (*CardRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &CardRepository{db: db}, mock, func() { _ = db.Close() }
}

func sampleCard() *domain.BusinessCard {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return &domain.BusinessCard{
		ID:        "card-1",
		Name:      "王小明",
		Company:   "ABC 股份有限公司",
		JobTitle:  "經理",
		Email:     "wang@abc.com",
		Mobile:    "0912345678",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func cardRows(card *domain.BusinessCard) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "name_english", "company", "job_title", "department",
		"email", "phone", "mobile", "fax", "address", "website", "notes",
		"created_at", "updated_at",
	}).AddRow(
		card.ID, card.Name, card.NameEnglish, card.Company, card.JobTitle, card.Department,
		card.Email, card.Phone, card.Mobile, card.Fax, card.Address, card.Website, card.Notes,
		card.CreatedAt, card.UpdatedAt,
	)
}

func TestCreateInsertsAllColumns(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	card := sampleCard()
	mock.ExpectExec("INSERT INTO business_cards").
		WithArgs(
			card.ID, card.Name, card.NameEnglish, card.Company, card.JobTitle, card.Department,
			card.Email, card.Phone, card.Mobile, card.Fax, card.Address, card.Website, card.Notes,
			card.CreatedAt, card.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), card); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansCard(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	card := sampleCard()
	mock.ExpectQuery("SELECT id, name, name_english").
		WithArgs("card-1").
		WillReturnRows(cardRows(card))

	got, err := repo.GetByID(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != card.Name || got.Mobile != card.Mobile {
		t.Fatalf("unexpected card %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, name_english").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListOrdersByCreatedAt(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	card := sampleCard()
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(50).
		WillReturnRows(cardRows(card))

	cards, err := repo.List(context.Background(), 50)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cards) != 1 || cards[0].ID != "card-1" {
		t.Fatalf("unexpected listing %+v", cards)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDefaultsLimit(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(100).
		WillReturnRows(cardRows(sampleCard()))

	if _, err := repo.List(context.Background(), 0); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	card := sampleCard()
	card.ID = "missing"
	mock.ExpectExec("UPDATE business_cards").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Replace(context.Background(), card)
	if !domain.IsKind(err, domain.ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newCardRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM business_cards").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
