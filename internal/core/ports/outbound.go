package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

// RecognizeOptions tunes a single OCR pass.
type RecognizeOptions struct {
	Languages  []string
	Preprocess bool
}

// OCREngine is the capability contract for a text-recognition backend.
// Engines are interchangeable; the scan pipeline resolves one at
// startup and may fall back to another when Health fails.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, opts RecognizeOptions) (*domain.OCRResult, error)
	Health(ctx context.Context) error
	Preprocess(ctx context.Context, image []byte) ([]byte, error)
}

// EngineResolver picks a usable OCR engine for the next recognition
// pass.
type EngineResolver interface {
	Resolve(ctx context.Context) (OCREngine, error)
}

// CardParser is the external AI parsing collaborator. Failures surface
// as domain kinds (ErrServiceUnavailable, ErrRateLimited,
// ErrQuotaExceeded, ErrInvalidInput) so the orchestrator can decide
// between fallback and rejection.
type CardParser interface {
	Parse(ctx context.Context, text string) (*domain.ParsedCardData, error)
}

// ContentGate screens untrusted text before it is used internally or
// exchanged with the AI collaborator.
type ContentGate interface {
	Sanitize(text string) string
	ValidateContent(text string) error
	ValidateAPIResponse(text string) error
	MaskSensitive(text string) string
}

// LocalExtractor is the heuristic fallback parser. It never fails;
// unusable input yields an empty ParsedCardData with zero confidence.
type LocalExtractor interface {
	Parse(text string) *domain.ParsedCardData
}

// FieldValidator checks one canonical field value and returns its
// normalized form. A nil error means the value is safe to keep.
type FieldValidator interface {
	Validate(field, value string) (string, error)
}

// ResultCache is the content-addressed OCR result cache plus the
// append-only scan history.
type ResultCache interface {
	Key(image []byte) string
	Get(key string) (*domain.OCRResult, error)
	Put(key string, result *domain.OCRResult)
	IsValid(result *domain.OCRResult) bool
	Save(result *domain.OCRResult) *domain.OCRResult
	History(limit int, includeImages bool) []*domain.OCRResult
	GetByID(id string, includeImage bool) (*domain.OCRResult, error)
	Delete(id string) bool
	CleanupOlderThan(days int) int
}

// CardRepository persists finished business cards.
type CardRepository interface {
	Create(ctx context.Context, card *domain.BusinessCard) error
	GetByID(ctx context.Context, id string) (*domain.BusinessCard, error)
	List(ctx context.Context, limit int) ([]*domain.BusinessCard, error)
	Replace(ctx context.Context, card *domain.BusinessCard) error
	Delete(ctx context.Context, id string) error
}

// CredentialStore keeps per-service secrets encrypted at rest.
type CredentialStore interface {
	Store(ctx context.Context, service, key string) error
	Get(ctx context.Context, service string) (string, error)
	Delete(ctx context.Context, service string) error
	ListServices(ctx context.Context) ([]string, error)
	ClearAll(ctx context.Context) error
}

// SecretStorage is the opaque platform secure key/value store beneath
// the credential vault.
type SecretStorage interface {
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// ObjectStorage stores source card images for asynchronous scans.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes queued scan jobs.
type MessageQueue interface {
	PublishScanQueued(ctx context.Context, scanID string) error
	SubscribeScanQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineMetrics receives extraction pipeline events. Usecases treat
// a nil recorder as metrics disabled.
type PipelineMetrics interface {
	RecordCacheLookup(hit bool)
	RecordAIFallback(reason string)
	RecordGateRejection(kind string)
}

// Clock lets cache validity and timestamps be driven in tests.
type Clock func() time.Time
