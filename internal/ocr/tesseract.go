package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs OCR locally.
type TesseractEngine struct {
	languages []string
	tessdata  string
}

// NewTesseractEngine creates an engine for the given language codes
// (default "eng"). An empty tessdata uses the system language data.
func NewTesseractEngine(languages []string, tessdata string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{languages: languages, tessdata: tessdata}
}

// Annotate returns the full text followed by each recognized word.
//
// Tesseract cannot be interrupted, so ctx is only checked before starting.
func (e *TesseractEngine) Annotate(ctx context.Context, image []byte) ([]string, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdata != "" {
		if err := client.SetTessdataPrefix(e.tessdata); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	var annotations []string
	if full := strings.TrimSpace(text); full != "" {
		annotations = append(annotations, full)
	}

	// Return just the full text if word boxes fail
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return annotations, nil
	}
	for _, box := range boxes {
		if w := strings.TrimSpace(box.Word); w != "" {
			annotations = append(annotations, w)
		}
	}
	return annotations, nil
}

// TesseractVersion returns the installed Tesseract version.
func TesseractVersion() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
