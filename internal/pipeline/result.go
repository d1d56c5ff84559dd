package pipeline

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/classifier"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/detection"
)

// Crop is what one camera contributed to a result.
type Crop struct {
	Camera string        `json:"camera"`
	Box    detection.Box `json:"box"`

	// Frame is the full colour frame the box was found in.
	Frame image.Image `json:"-"`

	// Image is the cropped region sent to OCR; nil when Box is empty.
	Image image.Image `json:"-"`
}

// Result is the outcome of one arrival event.
type Result struct {
	ID        uuid.UUID          `json:"id"`
	At        time.Time          `json:"at"`
	Category  string             `json:"category"`
	Matched   bool               `json:"matched"`
	Score     int                `json:"score"`
	Scores    []classifier.Score `json:"scores"`
	Fragments []string           `json:"fragments"`
	Crops     []Crop             `json:"crops"`
}

func newResult(at time.Time, match classifier.Match, fragments []string, crops []Crop) *Result {
	if fragments == nil {
		fragments = []string{}
	}
	return &Result{
		ID:        uuid.New(),
		At:        at,
		Category:  match.Label(),
		Matched:   match.OK,
		Score:     match.Score,
		Scores:    match.Scores,
		Fragments: fragments,
		Crops:     crops,
	}
}

// Detected returns the crops that contained an object.
func (r *Result) Detected() []Crop {
	var out []Crop
	for _, c := range r.Crops {
		if !c.Box.Empty() {
			out = append(out, c)
		}
	}
	return out
}
