package ocrengine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
)

// Resolver picks the first healthy engine from an ordered candidate
// list, so a preferred backend can degrade to alternates.
type Resolver struct {
	engines []ports.OCREngine
	logger  *slog.Logger
}

func NewResolver(logger *slog.Logger, engines ...ports.OCREngine) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{engines: engines, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context) (ports.OCREngine, error) {
	for _, engine := range r.engines {
		if err := engine.Health(ctx); err != nil {
			r.logger.WarnContext(ctx, "ocr engine unhealthy", "engine", engine.Name(), "error", err)
			continue
		}
		return engine, nil
	}
	return nil, domain.WrapError(domain.ErrServiceUnavailable, "ocr resolve",
		errors.New("no healthy ocr engine"))
}
