package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Providers accepted by New.
const (
	ProviderVision    = "vision"
	ProviderTesseract = "tesseract"
)

// Engine extracts text annotations from an encoded image.
type Engine interface {
	Annotate(ctx context.Context, image []byte) ([]string, error)
}

// Options configures the engine built by New.
type Options struct {
	// CredentialsFile is the service-account JSON used by Vision.
	CredentialsFile string

	// Languages are Tesseract language codes, e.g. "eng".
	Languages []string

	// Hints are BCP-47 language hints for Vision, e.g. "en".
	Hints []string

	// TessdataPrefix overrides the Tesseract language data directory.
	TessdataPrefix string
}

// New builds the engine for a provider name. An empty name selects Vision.
func New(ctx context.Context, provider string, opts Options) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderVision:
		e, err := NewVisionEngine(ctx, opts.CredentialsFile, WithLanguageHints(opts.Hints...))
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderTesseract:
		return NewTesseractEngine(opts.Languages, opts.TessdataPrefix), nil
	default:
		return nil, fmt.Errorf("unknown OCR provider: %q", provider)
	}
}

// AnnotateAll runs engine over every image and concatenates the annotations
// in image order. An image that fails is skipped; its error is joined into
// the returned error and the remaining images are still processed.
func AnnotateAll(ctx context.Context, engine Engine, images [][]byte) ([]string, error) {
	var (
		all  []string
		errs []error
	)
	for i, img := range images {
		annotations, err := engine.Annotate(ctx, img)
		if err != nil {
			errs = append(errs, fmt.Errorf("image %d: %w", i, err))
			continue
		}
		all = append(all, annotations...)
	}
	return all, errors.Join(errs...)
}

// timeoutEngine bounds every call of the wrapped engine.
type timeoutEngine struct {
	engine  Engine
	timeout time.Duration
}

// WithTimeout wraps engine so that each Annotate call gets its own deadline.
// A non-positive timeout returns engine unchanged.
func WithTimeout(engine Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return engine
	}
	return &timeoutEngine{engine: engine, timeout: timeout}
}

func (e *timeoutEngine) Annotate(ctx context.Context, image []byte) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.engine.Annotate(ctx, image)
}
