package httpadapter

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/cardscan/internal/core/ports"
)

// createScan accepts a multipart image. With ?async=true the image is
// queued and the scan id returned; otherwise the whole pipeline runs in
// the request.
func (rt *Router) createScan(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'image' is required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable image payload"})
		return
	}

	if r.URL.Query().Get("async") == "true" {
		scanID, err := rt.scans.Enqueue(r.Context(), image)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": scanID})
		return
	}

	opts := ports.RecognizeOptions{
		Preprocess: r.URL.Query().Get("preprocess") != "false",
	}
	if lang := r.URL.Query()["lang"]; len(lang) > 0 {
		opts.Languages = lang
	}

	start := time.Now()
	result, outcome, err := rt.scans.Scan(r.Context(), image, opts)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.recordOutcome(outcome, time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"scan":       result,
		"extraction": outcome,
	})
}

func (rt *Router) listScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	includeImages := r.URL.Query().Get("include_images") == "true"

	writeJSON(w, http.StatusOK, map[string]any{
		"scans": rt.cache.History(limit, includeImages),
	})
}

func (rt *Router) scanStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.stats.Statistics())
}

func (rt *Router) getScan(w http.ResponseWriter, r *http.Request) {
	includeImage := r.URL.Query().Get("include_image") == "true"
	result, err := rt.cache.GetByID(r.PathValue("scan_id"), includeImage)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) deleteScan(w http.ResponseWriter, r *http.Request) {
	if !rt.cache.Delete(r.PathValue("scan_id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "scan not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
