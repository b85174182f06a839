// Package httpadapter exposes the scan and card pipeline over HTTP.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
	"github.com/kirillkom/cardscan/internal/infrastructure/cache"
	"github.com/kirillkom/cardscan/internal/observability/metrics"
)

// StatsProvider reports aggregate statistics over the scan history.
type StatsProvider interface {
	Statistics() cache.Statistics
}

type Router struct {
	service     string
	scans       ports.ScanService
	extractor   ports.CardExtractor
	cache       ports.ResultCache
	stats       StatsProvider
	cards       ports.CardRepository
	credentials ports.CredentialStore
	gate        ports.ContentGate
	metrics     *metrics.HTTPServerMetrics
}

func NewRouter(
	service string,
	scans ports.ScanService,
	extractor ports.CardExtractor,
	resultCache ports.ResultCache,
	stats StatsProvider,
	cards ports.CardRepository,
	credentials ports.CredentialStore,
	gate ports.ContentGate,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		service:     service,
		scans:       scans,
		extractor:   extractor,
		cache:       resultCache,
		stats:       stats,
		cards:       cards,
		credentials: credentials,
		gate:        gate,
		metrics:     m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/scans", rt.createScan)
	mux.HandleFunc("GET /v1/scans", rt.listScans)
	mux.HandleFunc("GET /v1/scans/stats", rt.scanStats)
	mux.HandleFunc("GET /v1/scans/{scan_id}", rt.getScan)
	mux.HandleFunc("DELETE /v1/scans/{scan_id}", rt.deleteScan)

	mux.HandleFunc("POST /v1/cards/parse", rt.parseCards)
	mux.HandleFunc("GET /v1/cards", rt.listCards)
	mux.HandleFunc("GET /v1/cards/export", rt.exportCards)
	mux.HandleFunc("GET /v1/cards/{card_id}", rt.getCard)

	mux.HandleFunc("POST /v1/credentials", rt.storeCredential)
	mux.HandleFunc("GET /v1/credentials", rt.listCredentials)
	mux.HandleFunc("DELETE /v1/credentials/{service}", rt.deleteCredential)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	detector, _ := rt.gate.(activityDetector)
	return requestIDMiddleware(bodyLimitMiddleware(accessLogMiddleware(detector, handler)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	mask := rt.gate.MaskSensitive
	writeJSON(w, status, map[string]string{"error": clientMessage(err, mask)})
}

func (rt *Router) recordOutcome(outcome *domain.ExtractionOutcome, duration time.Duration) {
	if rt.metrics == nil || outcome == nil {
		return
	}
	status := "accepted"
	if outcome.Rejected {
		status = "rejected"
	}
	source := "none"
	if outcome.Card != nil {
		source = string(outcome.Card.Source)
	}
	rt.metrics.RecordExtraction(rt.service, source, status, len(outcome.Warnings), duration)
}
