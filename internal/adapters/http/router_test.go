package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
	"github.com/kirillkom/cardscan/internal/infrastructure/cache"
	"github.com/kirillkom/cardscan/internal/infrastructure/security"
)

type fakeScans struct {
	lastImage []byte
	lastOpts  ports.RecognizeOptions
	result    *domain.OCRResult
	outcome   *domain.ExtractionOutcome
	scanErr   error

	enqueueID  string
	enqueueErr error
}

func (f *fakeScans) Scan(_ context.Context, image []byte, opts ports.RecognizeOptions) (*domain.OCRResult, *domain.ExtractionOutcome, error) {
	f.lastImage = image
	f.lastOpts = opts
	return f.result, f.outcome, f.scanErr
}

func (f *fakeScans) Enqueue(_ context.Context, image []byte) (string, error) {
	f.lastImage = image
	return f.enqueueID, f.enqueueErr
}

type fakeExtractor struct {
	lastText string
	outcome  *domain.ExtractionOutcome
	batch    *domain.BatchResult
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, ocr *domain.OCRResult) (*domain.ExtractionOutcome, error) {
	f.lastText = ocr.RawText
	return f.outcome, f.err
}

func (f *fakeExtractor) ExtractBatch(_ context.Context, items []*domain.OCRResult) *domain.BatchResult {
	return f.batch
}

type fakeHistory struct {
	scans []*domain.OCRResult
	stats cache.Statistics
}

func (f *fakeHistory) Key(image []byte) string                    { return "key" }
func (f *fakeHistory) Get(string) (*domain.OCRResult, error)      { return nil, domain.ErrCacheMiss }
func (f *fakeHistory) Put(string, *domain.OCRResult)              {}
func (f *fakeHistory) IsValid(*domain.OCRResult) bool             { return false }
func (f *fakeHistory) Save(r *domain.OCRResult) *domain.OCRResult { return r }

func (f *fakeHistory) History(limit int, includeImages bool) []*domain.OCRResult {
	if limit > 0 && limit < len(f.scans) {
		return f.scans[:limit]
	}
	return f.scans
}

func (f *fakeHistory) GetByID(id string, includeImage bool) (*domain.OCRResult, error) {
	for _, scan := range f.scans {
		if scan.ID == id {
			return scan, nil
		}
	}
	return nil, domain.WrapError(domain.ErrScanNotFound, "scan lookup", errors.New(id))
}

func (f *fakeHistory) Delete(id string) bool {
	for i, scan := range f.scans {
		if scan.ID == id {
			f.scans = append(f.scans[:i], f.scans[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeHistory) CleanupOlderThan(int) int     { return 0 }
func (f *fakeHistory) Statistics() cache.Statistics { return f.stats }

type fakeCardStore struct {
	cards map[string]*domain.BusinessCard
	order []string
}

func newFakeCardStore(cards ...*domain.BusinessCard) *fakeCardStore {
	s := &fakeCardStore{cards: make(map[string]*domain.BusinessCard)}
	for _, card := range cards {
		s.cards[card.ID] = card
		s.order = append(s.order, card.ID)
	}
	return s
}

func (s *fakeCardStore) Create(_ context.Context, card *domain.BusinessCard) error {
	s.cards[card.ID] = card
	s.order = append(s.order, card.ID)
	return nil
}

func (s *fakeCardStore) GetByID(_ context.Context, id string) (*domain.BusinessCard, error) {
	card, ok := s.cards[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrCardNotFound, "card lookup", errors.New(id))
	}
	return card, nil
}

func (s *fakeCardStore) List(_ context.Context, limit int) ([]*domain.BusinessCard, error) {
	out := make([]*domain.BusinessCard, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cards[id])
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeCardStore) Replace(_ context.Context, card *domain.BusinessCard) error {
	if _, ok := s.cards[card.ID]; !ok {
		return domain.WrapError(domain.ErrCardNotFound, "card replace", errors.New(card.ID))
	}
	s.cards[card.ID] = card
	return nil
}

func (s *fakeCardStore) Delete(_ context.Context, id string) error {
	if _, ok := s.cards[id]; !ok {
		return domain.WrapError(domain.ErrCardNotFound, "card delete", errors.New(id))
	}
	delete(s.cards, id)
	return nil
}

type fakeCredentialStore struct {
	keys     map[string]string
	storeErr error
}

func (s *fakeCredentialStore) Store(_ context.Context, service, key string) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	if s.keys == nil {
		s.keys = make(map[string]string)
	}
	s.keys[service] = key
	return nil
}

func (s *fakeCredentialStore) Get(_ context.Context, service string) (string, error) {
	key, ok := s.keys[service]
	if !ok {
		return "", domain.WrapError(domain.ErrCredentialNotFound, "credential lookup", errors.New(service))
	}
	return key, nil
}

func (s *fakeCredentialStore) Delete(_ context.Context, service string) error {
	if _, ok := s.keys[service]; !ok {
		return domain.WrapError(domain.ErrCredentialNotFound, "credential delete", errors.New(service))
	}
	delete(s.keys, service)
	return nil
}

func (s *fakeCredentialStore) ListServices(context.Context) ([]string, error) {
	out := make([]string, 0, len(s.keys))
	for service := range s.keys {
		out = append(out, service)
	}
	return out, nil
}

func (s *fakeCredentialStore) ClearAll(context.Context) error {
	s.keys = nil
	return nil
}

type routerFixture struct {
	scans       *fakeScans
	extractor   *fakeExtractor
	history     *fakeHistory
	cards       *fakeCardStore
	credentials *fakeCredentialStore
	handler     http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	fx := &routerFixture{
		scans: &fakeScans{
			result:    &domain.OCRResult{ID: "scan-1", RawText: "hello"},
			outcome:   &domain.ExtractionOutcome{Card: &domain.ParsedCardData{Name: "王小明", Source: domain.SourceAI}},
			enqueueID: "scan-async-1",
		},
		extractor: &fakeExtractor{
			outcome: &domain.ExtractionOutcome{Card: &domain.ParsedCardData{Name: "王小明", Source: domain.SourceLocal}},
		},
		history:     &fakeHistory{},
		cards:       newFakeCardStore(),
		credentials: &fakeCredentialStore{},
	}
	router := NewRouter(
		"cardscan-api-test",
		fx.scans,
		fx.extractor,
		fx.history,
		fx.history,
		fx.cards,
		fx.credentials,
		security.NewGate(),
		nil,
	)
	fx.handler = router.Handler()
	return fx
}

func (fx *routerFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	fx.handler.ServeHTTP(recorder, req)
	return recorder
}

func multipartImage(t *testing.T, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "card.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func decodeJSON(t *testing.T, body io.Reader, target any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	fx := newRouterFixture(t)

	resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if got := resp.Header().Get(requestIDHeader); got == "" {
		t.Fatal("expected a generated request id header")
	}
}

func TestCreateScanSync(t *testing.T) {
	fx := newRouterFixture(t)

	body, contentType := multipartImage(t, []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
	req.Header.Set("Content-Type", contentType)

	resp := fx.do(t, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if string(fx.scans.lastImage) != "png-bytes" {
		t.Fatalf("scan received image %q", fx.scans.lastImage)
	}
	if !fx.scans.lastOpts.Preprocess {
		t.Fatal("preprocess should default to on")
	}

	var payload struct {
		Scan       *domain.OCRResult         `json:"scan"`
		Extraction *domain.ExtractionOutcome `json:"extraction"`
	}
	decodeJSON(t, resp.Body, &payload)
	if payload.Scan == nil || payload.Scan.ID != "scan-1" {
		t.Fatalf("unexpected scan payload: %+v", payload.Scan)
	}
	if payload.Extraction == nil || payload.Extraction.Card.Name != "王小明" {
		t.Fatalf("unexpected extraction payload: %+v", payload.Extraction)
	}
}

func TestCreateScanAsync(t *testing.T) {
	fx := newRouterFixture(t)

	body, contentType := multipartImage(t, []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/scans?async=true", body)
	req.Header.Set("Content-Type", contentType)

	resp := fx.do(t, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.Code)
	}

	var payload map[string]string
	decodeJSON(t, resp.Body, &payload)
	if payload["scan_id"] != "scan-async-1" {
		t.Fatalf("scan_id = %q", payload["scan_id"])
	}
}

func TestCreateScanMissingImage(t *testing.T) {
	fx := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/scans", strings.NewReader("not multipart"))
	if resp := fx.do(t, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestCreateScanErrorMapping(t *testing.T) {
	fx := newRouterFixture(t)
	fx.scans.scanErr = domain.WrapError(domain.ErrServiceUnavailable, "ocr", errors.New("no healthy ocr engine"))

	body, contentType := multipartImage(t, []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
	req.Header.Set("Content-Type", contentType)

	if resp := fx.do(t, req); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.Code)
	}
}

func TestListScans(t *testing.T) {
	fx := newRouterFixture(t)
	fx.history.scans = []*domain.OCRResult{{ID: "s1"}, {ID: "s2"}}

	resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/scans?limit=1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var payload struct {
		Scans []*domain.OCRResult `json:"scans"`
	}
	decodeJSON(t, resp.Body, &payload)
	if len(payload.Scans) != 1 || payload.Scans[0].ID != "s1" {
		t.Fatalf("unexpected scans: %+v", payload.Scans)
	}
}

func TestListScansRejectsBadLimit(t *testing.T) {
	fx := newRouterFixture(t)

	if resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/scans?limit=abc", nil)); resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestScanStats(t *testing.T) {
	fx := newRouterFixture(t)
	fx.history.stats = cache.Statistics{
		TotalProcessed:    4,
		AverageConfidence: 0.75,
		EngineUsage:       map[string]int{"paddleocr": 4},
	}

	resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/scans/stats", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var payload cache.Statistics
	decodeJSON(t, resp.Body, &payload)
	if payload.TotalProcessed != 4 || payload.EngineUsage["paddleocr"] != 4 {
		t.Fatalf("unexpected stats: %+v", payload)
	}
}

func TestGetScan(t *testing.T) {
	fx := newRouterFixture(t)
	fx.history.scans = []*domain.OCRResult{{ID: "s1", RawText: "text"}}

	resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/scans/s1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	if resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/scans/missing", nil)); resp.Code != http.StatusNotFound {
		t.Fatalf("missing scan status = %d, want 404", resp.Code)
	}
}

func TestDeleteScan(t *testing.T) {
	fx := newRouterFixture(t)
	fx.history.scans = []*domain.OCRResult{{ID: "s1"}}

	if resp := fx.do(t, httptest.NewRequest(http.MethodDelete, "/v1/scans/s1", nil)); resp.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.Code)
	}
	if resp := fx.do(t, httptest.NewRequest(http.MethodDelete, "/v1/scans/s1", nil)); resp.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.Code)
	}
}

func TestParseCardsSingle(t *testing.T) {
	fx := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/cards/parse", strings.NewReader(`{"text":"王小明\n明天科技"}`))
	resp := fx.do(t, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if fx.extractor.lastText != "王小明\n明天科技" {
		t.Fatalf("extractor received %q", fx.extractor.lastText)
	}

	var outcome domain.ExtractionOutcome
	decodeJSON(t, resp.Body, &outcome)
	if outcome.Card == nil || outcome.Card.Name != "王小明" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestParseCardsBatch(t *testing.T) {
	fx := newRouterFixture(t)
	fx.extractor.batch = &domain.BatchResult{
		Successful:   []*domain.ExtractionOutcome{{Card: &domain.ParsedCardData{Name: "a"}}},
		Failed:       []domain.BatchFailure{{Index: 1, Err: "extraction panic"}},
		SuccessCount: 1,
		FailureCount: 1,
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/cards/parse", strings.NewReader(`{"texts":["one","two"]}`))
	resp := fx.do(t, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var batch domain.BatchResult
	decodeJSON(t, resp.Body, &batch)
	if batch.SuccessCount != 1 || batch.FailureCount != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestParseCardsRejectsEmptyBody(t *testing.T) {
	fx := newRouterFixture(t)

	if resp := fx.do(t, httptest.NewRequest(http.MethodPost, "/v1/cards/parse", strings.NewReader(`{}`))); resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
	if resp := fx.do(t, httptest.NewRequest(http.MethodPost, "/v1/cards/parse", strings.NewReader(`not json`))); resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestListAndGetCards(t *testing.T) {
	fx := newRouterFixture(t)
	if err := fx.cards.Create(context.Background(), &domain.BusinessCard{ID: "c1", Name: "王小明"}); err != nil {
		t.Fatalf("seed card: %v", err)
	}

	resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/cards", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("list status = %d", resp.Code)
	}

	resp = fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/cards/c1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("get status = %d", resp.Code)
	}
	var card domain.BusinessCard
	decodeJSON(t, resp.Body, &card)
	if card.Name != "王小明" {
		t.Fatalf("card name = %q", card.Name)
	}

	if resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/cards/missing", nil)); resp.Code != http.StatusNotFound {
		t.Fatalf("missing card status = %d, want 404", resp.Code)
	}
}

func TestExportCardsHeaders(t *testing.T) {
	fx := newRouterFixture(t)
	if err := fx.cards.Create(context.Background(), &domain.BusinessCard{ID: "c1", Name: "王小明"}); err != nil {
		t.Fatalf("seed card: %v", err)
	}

	resp := fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/cards/export", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", got)
	}
	if got := resp.Header().Get("Content-Disposition"); !strings.Contains(got, ".xlsx") {
		t.Fatalf("content disposition = %q", got)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("expected workbook bytes in body")
	}
}

func TestCredentialLifecycle(t *testing.T) {
	fx := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/credentials", strings.NewReader(`{"service":"openai","api_key":"sk-test-abc123"}`))
	resp := fx.do(t, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("store status = %d, body %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "sk-test-abc123") {
		t.Fatal("response must not echo the api key")
	}

	resp = fx.do(t, httptest.NewRequest(http.MethodGet, "/v1/credentials", nil))
	var listed struct {
		Services []string `json:"services"`
	}
	decodeJSON(t, resp.Body, &listed)
	if len(listed.Services) != 1 || listed.Services[0] != "openai" {
		t.Fatalf("services = %v", listed.Services)
	}

	if resp := fx.do(t, httptest.NewRequest(http.MethodDelete, "/v1/credentials/openai", nil)); resp.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.Code)
	}
	if resp := fx.do(t, httptest.NewRequest(http.MethodDelete, "/v1/credentials/openai", nil)); resp.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.Code)
	}
}

func TestStoreCredentialValidationError(t *testing.T) {
	fx := newRouterFixture(t)
	fx.credentials.storeErr = domain.WrapError(domain.ErrInvalidInput, "credential store", errors.New("service name rejected"))

	req := httptest.NewRequest(http.MethodPost, "/v1/credentials", strings.NewReader(`{"service":"../etc","api_key":"sk-test"}`))
	if resp := fx.do(t, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestSuspiciousRequestLineIsRedacted(t *testing.T) {
	var logBuf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logBuf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	fx := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	req.URL.RawQuery = "note=sql injection&api_key=sk-abcdefgh12345678"
	fx.do(t, req)

	var line struct {
		Msg         string `json:"msg"`
		RequestLine string `json:"request_line"`
	}
	dec := json.NewDecoder(&logBuf)
	found := false
	for dec.More() {
		if err := dec.Decode(&line); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if line.Msg == "suspicious request line" {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected a suspicious request line warning")
	}
	if line.RequestLine == "" {
		t.Fatal("warning should carry the redacted request line")
	}
	if strings.Contains(line.RequestLine, "sk-abcdefgh12345678") {
		t.Fatalf("secret leaked into log: %q", line.RequestLine)
	}
	if !strings.Contains(line.RequestLine, "****") {
		t.Fatalf("expected masked secret in %q", line.RequestLine)
	}
}
