package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// ErrEmptyImage is returned when an engine is handed no image bytes.
var ErrEmptyImage = errors.New("ocr: empty image")

// VisionOption configures a VisionEngine.
type VisionOption func(*VisionEngine)

// WithLanguageHints passes BCP-47 language hints to Vision. Tesseract-style
// codes are not translated; leave empty for automatic detection.
func WithLanguageHints(langs ...string) VisionOption {
	return func(e *VisionEngine) {
		e.hints = append(e.hints[:0], langs...)
	}
}

// VisionEngine performs TEXT_DETECTION through Google Cloud Vision.
type VisionEngine struct {
	svc   *vision.Service
	hints []string
}

// NewVisionEngine creates an engine authenticated with a service-account
// credentials file.
func NewVisionEngine(ctx context.Context, credentialsFile string, opts ...VisionOption) (*VisionEngine, error) {
	if credentialsFile == "" {
		return nil, errors.New("vision: credentials file is required")
	}
	return NewVisionEngineWithOptions(ctx, []option.ClientOption{option.WithCredentialsFile(credentialsFile)}, opts...)
}

// NewVisionEngineWithOptions creates an engine from raw client options,
// e.g. a custom endpoint.
func NewVisionEngineWithOptions(ctx context.Context, clientOpts []option.ClientOption, opts ...VisionOption) (*VisionEngine, error) {
	svc, err := vision.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	e := &VisionEngine{svc: svc}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Annotate returns every text annotation Vision finds, the full text first.
func (e *VisionEngine) Annotate(ctx context.Context, image []byte) ([]string, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	req := &vision.AnnotateImageRequest{
		Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []*vision.Feature{{Type: "TEXT_DETECTION"}},
	}
	if len(e.hints) > 0 {
		req.ImageContext = &vision.ImageContext{LanguageHints: e.hints}
	}

	resp, err := e.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("vision annotate failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, nil
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return nil, fmt.Errorf("vision annotate failed: %s (code %d)", r.Error.Message, r.Error.Code)
	}

	annotations := make([]string, 0, len(r.TextAnnotations))
	for _, a := range r.TextAnnotations {
		if a.Description != "" {
			annotations = append(annotations, a.Description)
		}
	}
	return annotations, nil
}
