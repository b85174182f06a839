package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/infrastructure/export"
)

const exportLimit = 10000

type parseRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts"`
}

// parseCards runs extraction on raw text, bypassing OCR. A single
// "text" gives one outcome; "texts" runs the batch path and reports
// per-item failures.
func (rt *Router) parseCards(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if len(req.Texts) > 0 {
		items := make([]*domain.OCRResult, len(req.Texts))
		for i, text := range req.Texts {
			items[i] = &domain.OCRResult{RawText: text}
		}
		batch := rt.extractor.ExtractBatch(r.Context(), items)
		if rt.metrics != nil {
			for range batch.Successful {
				rt.metrics.RecordBatchItem(rt.service, "success")
			}
			for range batch.Failed {
				rt.metrics.RecordBatchItem(rt.service, "failure")
			}
		}
		writeJSON(w, http.StatusOK, batch)
		return
	}

	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "either 'text' or 'texts' is required"})
		return
	}

	start := time.Now()
	outcome, err := rt.extractor.Extract(r.Context(), &domain.OCRResult{RawText: req.Text})
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.recordOutcome(outcome, time.Since(start))
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) listCards(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	cards, err := rt.cards.List(r.Context(), limit)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (rt *Router) getCard(w http.ResponseWriter, r *http.Request) {
	card, err := rt.cards.GetByID(r.Context(), r.PathValue("card_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// exportCards streams every stored card as an xlsx workbook.
func (rt *Router) exportCards(w http.ResponseWriter, r *http.Request) {
	// The repository treats a non-positive limit as its default page
	// size, so ask for an explicit ceiling instead.
	cards, err := rt.cards.List(r.Context(), exportLimit)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	filename := fmt.Sprintf("cards-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteCards(w, cards); err != nil {
		// Headers are already gone; all we can do is log via the
		// access log status.
		return
	}
}
