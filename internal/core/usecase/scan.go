package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
)

const imageKeySuffix = ".img"

// ScanCardUseCase is the image pipeline: cache lookup, recognition,
// extraction, persistence. It serves both the synchronous API path and
// the queued worker path.
type ScanCardUseCase struct {
	cache     ports.ResultCache
	resolver  ports.EngineResolver
	extractor ports.CardExtractor
	cards     ports.CardRepository
	images    ports.ObjectStorage
	queue     ports.MessageQueue
	metrics   ports.PipelineMetrics
	logger    *slog.Logger
	clock     ports.Clock
}

func NewScanCardUseCase(
	cache ports.ResultCache,
	resolver ports.EngineResolver,
	extractor ports.CardExtractor,
	cards ports.CardRepository,
	images ports.ObjectStorage,
	queue ports.MessageQueue,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *ScanCardUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanCardUseCase{
		cache:     cache,
		resolver:  resolver,
		extractor: extractor,
		cards:     cards,
		images:    images,
		queue:     queue,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

// Scan runs the full pipeline synchronously. A byte-identical image
// inside the validity window reuses the cached OCR result instead of
// calling the engine again.
func (uc *ScanCardUseCase) Scan(ctx context.Context, image []byte, opts ports.RecognizeOptions) (*domain.OCRResult, *domain.ExtractionOutcome, error) {
	result, cached, err := uc.recognize(ctx, image, opts)
	if err != nil {
		return nil, nil, err
	}

	outcome, err := uc.extractor.Extract(ctx, result)
	if err != nil {
		return nil, nil, err
	}

	if !outcome.Rejected {
		if err := uc.persistCard(ctx, outcome.Card); err != nil {
			return nil, nil, err
		}
	}

	uc.logger.InfoContext(ctx, "scan completed",
		"scan_id", result.ID,
		"cached", cached,
		"engine", result.OCREngine,
		"rejected", outcome.Rejected,
	)
	return result.WithoutImage(), outcome, nil
}

// Enqueue stores the image and hands the scan id to the worker queue.
func (uc *ScanCardUseCase) Enqueue(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "enqueue scan", errors.New("empty image"))
	}

	scanID := uuid.NewString()
	if err := uc.images.Save(ctx, scanID+imageKeySuffix, bytes.NewReader(image)); err != nil {
		return "", fmt.Errorf("save scan image: %w", err)
	}
	if err := uc.queue.PublishScanQueued(ctx, scanID); err != nil {
		return "", fmt.Errorf("publish scan event: %w", err)
	}
	return scanID, nil
}

// ProcessByID is the worker side of Enqueue: load the stored image and
// run the same pipeline.
func (uc *ScanCardUseCase) ProcessByID(ctx context.Context, scanID string) error {
	reader, err := uc.images.Open(ctx, scanID+imageKeySuffix)
	if err != nil {
		return fmt.Errorf("open scan image: %w", err)
	}
	defer reader.Close()

	image, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read scan image: %w", err)
	}

	_, _, err = uc.Scan(ctx, image, ports.RecognizeOptions{Preprocess: true})
	return err
}

func (uc *ScanCardUseCase) recognize(ctx context.Context, image []byte, opts ports.RecognizeOptions) (*domain.OCRResult, bool, error) {
	if len(image) == 0 {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, "scan", errors.New("empty image"))
	}

	key := uc.cache.Key(image)
	if cached, err := uc.cache.Get(key); err == nil && uc.cache.IsValid(cached) {
		uc.recordCacheLookup(true)
		return cached, true, nil
	}
	uc.recordCacheLookup(false)

	engine, err := uc.resolver.Resolve(ctx)
	if err != nil {
		return nil, false, err
	}

	result, err := engine.Recognize(ctx, image, opts)
	if err != nil {
		return nil, false, fmt.Errorf("recognize image: %w", err)
	}

	stored := uc.cache.Save(result)
	uc.cache.Put(key, stored)
	return stored, false, nil
}

func (uc *ScanCardUseCase) recordCacheLookup(hit bool) {
	if uc.metrics != nil {
		uc.metrics.RecordCacheLookup(hit)
	}
}

func (uc *ScanCardUseCase) persistCard(ctx context.Context, data *domain.ParsedCardData) error {
	now := uc.clock().UTC()
	card := &domain.BusinessCard{
		ID:          uuid.NewString(),
		Name:        data.Name,
		NameEnglish: data.NameEnglish,
		Company:     data.Company,
		JobTitle:    data.JobTitle,
		Department:  data.Department,
		Email:       data.Email,
		Phone:       data.Phone,
		Mobile:      data.Mobile,
		Fax:         data.Fax,
		Address:     data.Address,
		Website:     data.Website,
		Notes:       data.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.cards.Create(ctx, card); err != nil {
		return fmt.Errorf("create business card: %w", err)
	}
	return nil
}
