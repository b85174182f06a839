package ports

import (
	"context"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

// CardExtractor is the inbound contract for turning OCR output into a
// validated card record, single or batched.
type CardExtractor interface {
	Extract(ctx context.Context, ocr *domain.OCRResult) (*domain.ExtractionOutcome, error)
	ExtractBatch(ctx context.Context, items []*domain.OCRResult) *domain.BatchResult
}

// ScanService is the inbound contract for the image pipeline: run a
// scan synchronously, or accept it for the queued worker path.
type ScanService interface {
	Scan(ctx context.Context, image []byte, opts RecognizeOptions) (*domain.OCRResult, *domain.ExtractionOutcome, error)
	Enqueue(ctx context.Context, image []byte) (string, error)
}

// ScanProcessor handles queued scan jobs by id (worker side).
type ScanProcessor interface {
	ProcessByID(ctx context.Context, scanID string) error
}

// CardReader is the inbound read model for persisted cards.
type CardReader interface {
	GetByID(ctx context.Context, id string) (*domain.BusinessCard, error)
	List(ctx context.Context, limit int) ([]*domain.BusinessCard, error)
}
