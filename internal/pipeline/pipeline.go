// Package pipeline runs the inspection cycle.
//
// Each cycle polls the arrival signal and captures a frame from every
// healthy camera. Without an arrival the frames only go to the preview hook.
// On an arrival each frame is compared with its camera's reference, the
// changed region is cropped and sent to OCR, the combined text is
// classified and the Result is handed to the sinks.
//
// A Pipeline is driven from a single goroutine (Run); its methods are
// nevertheless safe to call concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/camera"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/classifier"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/control"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/detection"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/imaging"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/log"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/ocr"
)

// ErrNoCameras is returned when every camera has failed.
var ErrNoCameras = errors.New("pipeline: no working cameras")

const (
	DefaultInterval   = 50 * time.Millisecond
	DefaultOCRTimeout = 15 * time.Second
)

// Arrival reports box arrivals. transporter.Signal implements it.
type Arrival interface {
	PollAndReset() bool
}

// Reopener is implemented by arrival signals that can restart their device.
type Reopener interface {
	Reopen() error
}

// Classifier rates OCR fragments. classifier.Classifier implements it.
type Classifier interface {
	Classify(fragments []string) classifier.Match
}

// Frame is one captured camera frame passed to the preview hook.
type Frame struct {
	Camera string
	Image  image.Image
}

// CameraStatus describes one camera branch.
type CameraStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithSinks adds result sinks.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithPreview sets a hook that receives the live frames of cycles without
// an arrival.
func WithPreview(fn func([]Frame)) Option {
	return func(p *Pipeline) { p.preview = fn }
}

// WithInterval sets the delay between cycles in Run.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithOCRTimeout bounds each OCR call. Zero or negative disables the bound.
func WithOCRTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.ocrTimeout = d }
}

// WithJPEGQuality sets the quality of the crops sent to OCR.
func WithJPEGQuality(q int) Option {
	return func(p *Pipeline) { p.quality = q }
}

// WithStatusHook sets a function called for control.Status, in addition to
// logging camera health. Used to report transporter state.
func WithStatusHook(fn func()) Option {
	return func(p *Pipeline) { p.status = fn }
}

// channel is one camera with its reference frame.
type channel struct {
	cam       camera.Camera
	reference *image.Gray
	err       error
}

func (c *channel) healthy() bool {
	return c.err == nil
}

// Pipeline couples the arrival signal, cameras, detector, OCR and
// classifier.
type Pipeline struct {
	arrival    Arrival
	detector   detection.Detector
	engine     ocr.Engine
	classifier Classifier

	sinks      []Sink
	preview    func([]Frame)
	status     func()
	logger     *slog.Logger
	interval   time.Duration
	ocrTimeout time.Duration
	quality    int
	now        func() time.Time

	mu       sync.Mutex
	channels []*channel
}

// New creates a pipeline and captures the first reference frame of every
// camera. Cameras that cannot deliver it are marked failed; if none can,
// New returns ErrNoCameras.
func New(arrival Arrival, detector detection.Detector, engine ocr.Engine, cls Classifier, cameras []camera.Camera, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		arrival:    arrival,
		detector:   detector,
		classifier: cls,
		interval:   DefaultInterval,
		ocrTimeout: DefaultOCRTimeout,
		quality:    imaging.DefaultJPEGQuality,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.With("component", "pipeline")
	}
	p.engine = ocr.WithTimeout(engine, p.ocrTimeout)

	for _, cam := range cameras {
		p.channels = append(p.channels, &channel{cam: cam})
	}
	if err := p.Rebaseline(); err != nil {
		return nil, err
	}
	return p, nil
}

// Rebaseline replaces the reference frame of every healthy camera with its
// current frame.
func (p *Pipeline) Rebaseline() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	updated := 0
	for _, ch := range p.channels {
		if !ch.healthy() {
			continue
		}
		frame, err := ch.cam.Capture()
		if err != nil {
			p.fail(ch, err)
			continue
		}
		// Replaced wholesale, never modified in place
		ch.reference = imaging.ToGray(frame)
		updated++
	}

	if updated == 0 {
		return ErrNoCameras
	}
	p.logger.Info("reference frames updated", "cameras", updated)
	return nil
}

// Step runs one cycle. It returns a nil Result when no box arrived.
func (p *Pipeline) Step(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	triggered := p.arrival.PollAndReset()
	frames, refs := p.capture()
	p.mu.Unlock()

	if len(frames) == 0 {
		return nil, ErrNoCameras
	}

	if !triggered {
		if p.preview != nil {
			p.preview(frames)
		}
		return nil, nil
	}

	at := p.now()
	crops := make([]Crop, 0, len(frames))
	var jpegs [][]byte
	for i, f := range frames {
		crop := Crop{Camera: f.Camera, Frame: f.Image}

		box, err := p.detector.Detect(refs[i], f.Image)
		if err != nil {
			p.logger.Warn("detection failed, consider re-baselining",
				"camera", f.Camera,
				"error", err)
			crops = append(crops, crop)
			continue
		}
		crop.Box = box
		if box.Empty() {
			p.logger.Debug("no object in frame", "camera", f.Camera)
			crops = append(crops, crop)
			continue
		}

		crop.Image = imaging.CropFrame(f.Image, box.Rect())
		crops = append(crops, crop)
		if crop.Image == nil {
			continue
		}

		data, err := imaging.EncodeJPEG(crop.Image, p.quality)
		if err != nil {
			p.logger.Warn("failed to encode crop", "camera", f.Camera, "error", err)
			continue
		}
		jpegs = append(jpegs, data)
	}

	fragments, err := ocr.AnnotateAll(ctx, p.engine, jpegs)
	if err != nil {
		p.logger.Warn("OCR failed for some crops", "error", err)
	}

	match := p.classifier.Classify(fragments)
	result := newResult(at, match, fragments, crops)

	p.logger.Info("box classified",
		"id", result.ID,
		"category", result.Category,
		"score", result.Score,
		"scores", match.Summary(),
		"fragments", len(fragments),
		"crops", len(jpegs))

	for _, s := range p.sinks {
		if err := s.Emit(ctx, result); err != nil {
			p.logger.Warn("sink failed", "error", err)
		}
	}
	return result, nil
}

// capture grabs a frame from every healthy camera together with that
// camera's reference. Cameras that fail are marked failed and left out.
// Must be called with p.mu held.
func (p *Pipeline) capture() ([]Frame, []*image.Gray) {
	frames := make([]Frame, 0, len(p.channels))
	refs := make([]*image.Gray, 0, len(p.channels))
	for _, ch := range p.channels {
		if !ch.healthy() {
			continue
		}
		img, err := ch.cam.Capture()
		if err != nil {
			p.fail(ch, err)
			continue
		}
		frames = append(frames, Frame{Camera: ch.cam.Name(), Image: img})
		refs = append(refs, ch.reference)
	}
	return frames, refs
}

// fail takes a camera out of service. Must be called with p.mu held.
func (p *Pipeline) fail(ch *channel, err error) {
	ch.err = err
	p.logger.Error("camera unavailable, excluding it",
		"camera", ch.cam.Name(),
		"error", err)
	if cerr := ch.cam.Close(); cerr != nil {
		p.logger.Debug("camera close failed", "camera", ch.cam.Name(), "error", cerr)
	}
}

// Cameras reports the state of every camera branch.
func (p *Pipeline) Cameras() []CameraStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CameraStatus, len(p.channels))
	for i, ch := range p.channels {
		out[i] = CameraStatus{Name: ch.cam.Name(), Healthy: ch.healthy()}
		if ch.err != nil {
			out[i].Error = ch.err.Error()
		}
	}
	return out
}

// Run executes Step every interval and handles operator commands until ctx
// is done, a Quit command arrives, or every camera has failed.
func (p *Pipeline) Run(ctx context.Context, commands <-chan control.Command) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if quit := p.handle(cmd); quit {
				return nil
			}

		case <-ticker.C:
			if _, err := p.Step(ctx); err != nil {
				return fmt.Errorf("cycle failed: %w", err)
			}
		}
	}
}

// handle executes one command and reports whether Run should return.
func (p *Pipeline) handle(cmd control.Command) bool {
	p.logger.Info("command", "command", cmd.String())

	switch cmd {
	case control.Quit:
		return true
	case control.Rebaseline:
		if err := p.Rebaseline(); err != nil {
			p.logger.Error("re-baseline failed", "error", err)
		}
	case control.Reopen:
		r, ok := p.arrival.(Reopener)
		if !ok {
			p.logger.Warn("arrival signal cannot be reopened")
			break
		}
		if err := r.Reopen(); err != nil {
			p.logger.Error("reopen failed", "error", err)
		}
	case control.Status:
		for _, c := range p.Cameras() {
			p.logger.Info("camera status", "camera", c.Name, "healthy", c.Healthy, "error", c.Error)
		}
		if p.status != nil {
			p.status()
		}
	}
	return false
}

// Close releases every camera.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, ch := range p.channels {
		if !ch.healthy() {
			continue
		}
		if err := ch.cam.Close(); err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", ch.cam.Name(), err))
		}
	}
	return errors.Join(errs...)
}
