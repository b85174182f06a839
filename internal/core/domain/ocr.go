package domain

import (
	"errors"
	"fmt"
	"time"
)

// ProcessingTimeUnknown marks an absent processing duration on an OCRResult.
const ProcessingTimeUnknown int64 = -1

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedText is a single recognized fragment with its position and
// per-fragment confidence.
type DetectedText struct {
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
}

// OCRResult is the output of one recognition pass over one image.
// Results are immutable once produced; callers needing a variant use
// Clone or WithEngine instead of mutating in place.
type OCRResult struct {
	ID               string         `json:"id"`
	RawText          string         `json:"raw_text"`
	DetectedTexts    []DetectedText `json:"detected_texts,omitempty"`
	Confidence       float64        `json:"confidence"`
	ImageWidth       int            `json:"image_width,omitempty"`
	ImageHeight      int            `json:"image_height,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	OCREngine        string         `json:"ocr_engine"`
	ProcessedAt      time.Time      `json:"processed_at"`
	ImageData        []byte         `json:"image_data,omitempty"`
}

func (r *OCRResult) Validate() error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return WrapError(ErrInvalidInput, "validate ocr result",
			fmt.Errorf("confidence %v outside [0,1]", r.Confidence))
	}
	if r.ImageWidth < 0 || r.ImageHeight < 0 {
		return WrapError(ErrInvalidInput, "validate ocr result",
			errors.New("image dimensions must be positive when present"))
	}
	if (r.ImageWidth == 0) != (r.ImageHeight == 0) {
		return WrapError(ErrInvalidInput, "validate ocr result",
			errors.New("image dimensions must be set together"))
	}
	if r.ProcessingTimeMs < ProcessingTimeUnknown {
		return WrapError(ErrInvalidInput, "validate ocr result",
			errors.New("processing time must be non-negative when present"))
	}
	for i, dt := range r.DetectedTexts {
		if dt.Confidence < 0 || dt.Confidence > 1 {
			return WrapError(ErrInvalidInput, "validate ocr result",
				fmt.Errorf("fragment %d confidence %v outside [0,1]", i, dt.Confidence))
		}
	}
	return nil
}

// Clone returns a deep copy, so the original stays immutable.
func (r *OCRResult) Clone() *OCRResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.DetectedTexts != nil {
		out.DetectedTexts = make([]DetectedText, len(r.DetectedTexts))
		copy(out.DetectedTexts, r.DetectedTexts)
	}
	if r.ImageData != nil {
		out.ImageData = make([]byte, len(r.ImageData))
		copy(out.ImageData, r.ImageData)
	}
	return &out
}

// WithEngine clones the result with an engine label override.
func (r *OCRResult) WithEngine(engine string) *OCRResult {
	out := r.Clone()
	out.OCREngine = engine
	return out
}

// WithoutImage clones the result and drops the source image bytes.
func (r *OCRResult) WithoutImage() *OCRResult {
	out := r.Clone()
	out.ImageData = nil
	return out
}
