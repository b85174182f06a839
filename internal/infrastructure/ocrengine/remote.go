// Package ocrengine provides text-recognition backends behind the
// ports.OCREngine contract and a resolver that picks a healthy one.
package ocrengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
	"github.com/kirillkom/cardscan/internal/infrastructure/resilience"
)

const maxImageBytes = 10 << 20

// RemoteEngine recognizes text through an HTTP OCR service speaking a
// JSON request/response pair with base64 image payloads.
type RemoteEngine struct {
	name       string
	baseURL    string
	httpClient *http.Client
	exec       *resilience.Executor
	clock      ports.Clock
}

func NewRemoteEngine(name, baseURL string, exec *resilience.Executor) *RemoteEngine {
	return &RemoteEngine{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		exec:       exec,
		clock:      time.Now,
	}
}

func (e *RemoteEngine) Name() string { return e.name }

func (e *RemoteEngine) Recognize(ctx context.Context, image []byte, opts ports.RecognizeOptions) (*domain.OCRResult, error) {
	if len(image) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ocr recognize", errors.New("empty image"))
	}
	if len(image) > maxImageBytes {
		return nil, domain.WrapError(domain.ErrContentTooLarge, "ocr recognize",
			fmt.Errorf("image of %d bytes exceeds the %d byte limit", len(image), maxImageBytes))
	}

	if opts.Preprocess {
		processed, err := e.Preprocess(ctx, image)
		if err == nil {
			image = processed
		}
	}

	request := recognizeRequest{
		Image:     base64.StdEncoding.EncodeToString(image),
		Languages: opts.Languages,
	}

	var response recognizeResponse
	err := e.exec.Execute(ctx, "ocr_"+e.name, func(ctx context.Context) error {
		return e.postJSON(ctx, "/v1/recognize", request, &response)
	}, classifyEngineError)
	if err != nil {
		return nil, wrapEngineError("ocr recognize", err)
	}

	result := response.toDomain(e.name, e.clock(), image)
	if err := result.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ocr recognize", err)
	}
	return result, nil
}

func (e *RemoteEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrServiceUnavailable, "ocr health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.WrapError(domain.ErrServiceUnavailable, "ocr health",
			fmt.Errorf("status %s", resp.Status))
	}
	return nil
}

// Preprocess asks the service to normalize the image for recognition.
// A service without the endpoint returns the input unchanged.
func (e *RemoteEngine) Preprocess(ctx context.Context, image []byte) ([]byte, error) {
	request := map[string]string{"image": base64.StdEncoding.EncodeToString(image)}
	var response struct {
		Image string `json:"image"`
	}
	err := e.postJSON(ctx, "/v1/preprocess", request, &response)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
			return image, nil
		}
		return nil, wrapEngineError("ocr preprocess", err)
	}
	processed, err := base64.StdEncoding.DecodeString(response.Image)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ocr preprocess", err)
	}
	return processed, nil
}

type recognizeRequest struct {
	Image     string   `json:"image"`
	Languages []string `json:"languages,omitempty"`
}

type recognizeResponse struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	DetectedTexts []struct {
		Text        string             `json:"text"`
		Confidence  float64            `json:"confidence"`
		BoundingBox domain.BoundingBox `json:"bounding_box"`
	} `json:"detected_texts"`
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`
	// Pointer so an engine that omits the field is told apart from
	// one reporting a genuine zero.
	ProcessingTimeMs *int64 `json:"processing_time_ms"`
}

func (r recognizeResponse) toDomain(engine string, now time.Time, image []byte) *domain.OCRResult {
	result := &domain.OCRResult{
		RawText:          r.Text,
		Confidence:       r.Confidence,
		ImageWidth:       r.ImageWidth,
		ImageHeight:      r.ImageHeight,
		ProcessingTimeMs: domain.ProcessingTimeUnknown,
		OCREngine:        engine,
		ProcessedAt:      now,
		ImageData:        image,
	}
	if r.ProcessingTimeMs != nil {
		result.ProcessingTimeMs = *r.ProcessingTimeMs
	}
	for _, dt := range r.DetectedTexts {
		result.DetectedTexts = append(result.DetectedTexts, domain.DetectedText{
			Text:        dt.Text,
			Confidence:  dt.Confidence,
			BoundingBox: dt.BoundingBox,
		})
	}
	return result
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("ocr status: %s", e.status)
	}
	return fmt.Sprintf("ocr status: %s: %s", e.status, e.body)
}

func (e *RemoteEngine) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyEngineError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if statusErr.code == http.StatusTooManyRequests || statusErr.code >= 500 {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapEngineError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrRateLimited) || domain.IsKind(err, domain.ErrServiceUnavailable) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.code == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, operation, err)
		case statusErr.code >= 500:
			return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
		case statusErr.code == http.StatusBadRequest:
			return domain.WrapError(domain.ErrInvalidInput, operation, err)
		default:
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}
