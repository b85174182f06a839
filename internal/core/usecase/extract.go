package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
)

const batchConcurrency = 3

// ExtractCardUseCase runs the AI-first extraction pipeline: gate the
// input, try the AI parser, fall back to the local heuristics when the
// AI path cannot serve, then validate field by field.
type ExtractCardUseCase struct {
	parser    ports.CardParser
	local     ports.LocalExtractor
	gate      ports.ContentGate
	validator ports.FieldValidator
	metrics   ports.PipelineMetrics
	logger    *slog.Logger
	clock     ports.Clock
}

func NewExtractCardUseCase(
	parser ports.CardParser,
	local ports.LocalExtractor,
	gate ports.ContentGate,
	validator ports.FieldValidator,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *ExtractCardUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractCardUseCase{
		parser:    parser,
		local:     local,
		gate:      gate,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

func (uc *ExtractCardUseCase) Extract(ctx context.Context, ocr *domain.OCRResult) (*domain.ExtractionOutcome, error) {
	if ocr == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract card", errors.New("nil ocr result"))
	}

	raw := ocr.RawText
	gateErr := uc.gate.ValidateContent(raw)
	clean := uc.gate.Sanitize(raw)

	var data *domain.ParsedCardData
	switch {
	case gateErr != nil:
		// Input the gate rejects never reaches the AI service, but
		// the sanitized remainder still gets a local pass.
		uc.logger.WarnContext(ctx, "content gate rejected input for ai parse",
			"error", uc.gate.MaskSensitive(gateErr.Error()))
		if uc.metrics != nil {
			uc.metrics.RecordGateRejection(domain.KindName(gateErr))
		}
		data = uc.localParse(clean)
	default:
		parsed, err := uc.parser.Parse(ctx, clean)
		switch {
		case err == nil:
			data = uc.merge(parsed, clean)
		case domain.IsAIFallback(err) || domain.IsKind(err, domain.ErrCredentialNotFound):
			uc.logger.WarnContext(ctx, "ai parse failed, using local extractor",
				"error", uc.gate.MaskSensitive(err.Error()))
			if uc.metrics != nil {
				uc.metrics.RecordAIFallback(domain.KindName(err))
			}
			data = uc.localParse(clean)
		default:
			return nil, err
		}
	}

	outcome := uc.validate(data)
	uc.logger.InfoContext(ctx, "card extracted",
		"source", string(data.Source),
		"confidence", data.Confidence,
		"warnings", len(outcome.Warnings),
		"rejected", outcome.Rejected,
	)
	return outcome, nil
}

// ExtractBatch processes the items with bounded concurrency. One item
// failing, even by panic, never aborts the rest.
func (uc *ExtractCardUseCase) ExtractBatch(ctx context.Context, items []*domain.OCRResult) *domain.BatchResult {
	outcomes := make([]*domain.ExtractionOutcome, len(items))
	failures := make([]*domain.BatchFailure, len(items))

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batchConcurrency)

	for i, item := range items {
		group.Go(func() error {
			outcome, err := uc.extractGuarded(groupCtx, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failure := &domain.BatchFailure{Index: i, Err: uc.gate.MaskSensitive(err.Error())}
				if item != nil {
					failure.RawText = uc.gate.Sanitize(item.RawText)
				}
				failures[i] = failure
				return nil
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = group.Wait()

	result := &domain.BatchResult{}
	for i := range items {
		if failures[i] != nil {
			result.Failed = append(result.Failed, *failures[i])
			continue
		}
		result.Successful = append(result.Successful, outcomes[i])
	}
	result.SuccessCount = len(result.Successful)
	result.FailureCount = len(result.Failed)
	return result
}

func (uc *ExtractCardUseCase) extractGuarded(ctx context.Context, item *domain.OCRResult) (outcome *domain.ExtractionOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("extraction panic: %v", r)
		}
	}()
	return uc.Extract(ctx, item)
}

func (uc *ExtractCardUseCase) localParse(clean string) *domain.ParsedCardData {
	data := uc.local.Parse(clean)
	data.Source = domain.SourceLocal
	if data.ParsedAt.IsZero() {
		data.ParsedAt = uc.clock()
	}
	return data
}

// merge fills key fields the AI left empty from a local pass over the
// same text. A touched result is reported as hybrid.
func (uc *ExtractCardUseCase) merge(parsed *domain.ParsedCardData, clean string) *domain.ParsedCardData {
	missing := false
	for _, field := range []string{domain.FieldName, domain.FieldEmail, domain.FieldPhone, domain.FieldMobile, domain.FieldCompany} {
		if *parsed.Fields()[field] == "" {
			missing = true
			break
		}
	}
	if !missing {
		return parsed
	}

	localData := uc.local.Parse(clean)
	merged := false
	fields := parsed.Fields()
	localFields := localData.Fields()
	for _, field := range []string{domain.FieldName, domain.FieldEmail, domain.FieldPhone, domain.FieldMobile, domain.FieldCompany} {
		if *fields[field] != "" || *localFields[field] == "" {
			continue
		}
		*fields[field] = *localFields[field]
		if conf, ok := localData.FieldConfidence[field]; ok {
			if parsed.FieldConfidence == nil {
				parsed.FieldConfidence = make(map[string]float64)
			}
			parsed.FieldConfidence[field] = conf
		}
		merged = true
	}
	if merged {
		parsed.Source = domain.SourceHybrid
	}
	return parsed
}

// validate runs every populated field through the validator. Failing
// fields are dropped and reported as warnings instead of failing the
// extraction. The card is rejected when no name survives.
func (uc *ExtractCardUseCase) validate(data *domain.ParsedCardData) *domain.ExtractionOutcome {
	outcome := &domain.ExtractionOutcome{Card: data}

	fields := data.Fields()
	for _, field := range []string{
		domain.FieldName, domain.FieldNameEnglish, domain.FieldCompany, domain.FieldJobTitle,
		domain.FieldDepartment, domain.FieldEmail, domain.FieldPhone, domain.FieldMobile,
		domain.FieldFax, domain.FieldAddress, domain.FieldWebsite, domain.FieldNotes,
	} {
		value := fields[field]
		if *value == "" {
			continue
		}
		normalized, err := uc.validator.Validate(field, *value)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, domain.FieldWarning{
				Field:  field,
				Reason: err.Error(),
			})
			*value = ""
			delete(data.FieldConfidence, field)
			continue
		}
		*value = normalized
	}

	if strings.TrimSpace(data.Name) == "" && strings.TrimSpace(data.NameEnglish) == "" {
		outcome.Rejected = true
	}
	return outcome
}
