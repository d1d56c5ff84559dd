package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/camera"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/classifier"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/control"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/detection"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/log"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/ocr"
)

// solidFrame creates a frame filled with one gray level.
func solidFrame(width, height int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

// withBox returns a copy of img with a filled dark rectangle.
func withBox(img *image.RGBA, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.Set(x, y, color.RGBA{30, 30, 30, 255})
		}
	}
	return out
}

type fakeCamera struct {
	name string

	mu       sync.Mutex
	frame    image.Image
	err      error
	captures int
	closed   bool
}

var _ camera.Camera = (*fakeCamera)(nil)

func newFakeCamera(name string, frame image.Image) *fakeCamera {
	return &fakeCamera{name: name, frame: frame}
}

func (c *fakeCamera) Name() string { return c.name }

func (c *fakeCamera) Capture() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures++
	if c.err != nil {
		return nil, c.err
	}
	return c.frame, nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCamera) set(frame image.Image, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame, c.err = frame, err
}

func (c *fakeCamera) stats() (captures int, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures, c.closed
}

type fakeArrival struct {
	mu      sync.Mutex
	pending bool
	reopens int
}

func (a *fakeArrival) PollAndReset() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.pending
	a.pending = false
	return v
}

func (a *fakeArrival) Reopen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reopens++
	return nil
}

func (a *fakeArrival) trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = true
}

// detectorFunc adapts a function to detection.Detector.
type detectorFunc func(reference *image.Gray, frame image.Image) (detection.Box, error)

func (f detectorFunc) Detect(reference *image.Gray, frame image.Image) (detection.Box, error) {
	return f(reference, frame)
}

func fixedBox(b detection.Box) detectorFunc {
	return func(*image.Gray, image.Image) (detection.Box, error) { return b, nil }
}

type recordingSink struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (s *recordingSink) Emit(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func newTestClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	dict, err := classifier.ParseDictionary(strings.NewReader(
		`{"nurofen": ["nurofen forte"], "aspirin": ["aspirin cardio"]}`))
	if err != nil {
		t.Fatalf("ParseDictionary failed: %v", err)
	}
	return classifier.New(dict)
}

func newTestPipeline(t *testing.T, arrival Arrival, det detection.Detector, engine ocr.Engine, cams []camera.Camera, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	p, err := New(arrival, det, engine, newTestClassifier(t), cams, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestStep_NoArrivalGoesToPreview(t *testing.T) {
	cam := newFakeCamera("a", solidFrame(20, 20, 200))
	engine := ocr.NewMock("nurofen forte")

	var previewed []Frame
	p := newTestPipeline(t, &fakeArrival{}, fixedBox(detection.Box{Width: 5, Height: 5}), engine,
		[]camera.Camera{cam},
		WithPreview(func(frames []Frame) { previewed = frames }))

	result, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result != nil {
		t.Errorf("got result %v without an arrival", result)
	}
	if len(previewed) != 1 || previewed[0].Camera != "a" {
		t.Errorf("preview: got %v", previewed)
	}
	if n := len(engine.Calls()); n != 0 {
		t.Errorf("OCR called %d times without an arrival", n)
	}
}

func TestStep_ClassifiesArrival(t *testing.T) {
	belt := solidFrame(160, 120, 200)
	left := newFakeCamera("left", belt)
	right := newFakeCamera("right", belt)
	arrival := &fakeArrival{}
	engine := ocr.NewMock("Nurofen", "FORTE nurofen")
	sink := &recordingSink{}

	p := newTestPipeline(t, arrival, detection.SSIMDetector{}, engine,
		[]camera.Camera{left, right}, WithSinks(sink))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	rect := image.Rect(40, 40, 140, 100)
	left.set(withBox(belt, rect), nil)
	right.set(withBox(belt, rect), nil)
	arrival.trigger()

	result, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result after an arrival")
	}

	if result.Category != "nurofen" || !result.Matched {
		t.Errorf("category: got %q matched=%v, want nurofen", result.Category, result.Matched)
	}
	if !result.At.Equal(at) {
		t.Errorf("At: got %v, want %v", result.At, at)
	}
	if len(result.Crops) != 2 || len(result.Detected()) != 2 {
		t.Fatalf("crops: got %d (%d detected), want 2", len(result.Crops), len(result.Detected()))
	}
	for _, c := range result.Crops {
		if !c.Box.Rect().Overlaps(rect) {
			t.Errorf("camera %s: box %v misses the object at %v", c.Camera, c.Box, rect)
		}
		if c.Image == nil {
			t.Errorf("camera %s: missing crop image", c.Camera)
		}
	}
	if n := len(engine.Calls()); n != 2 {
		t.Errorf("OCR calls: got %d, want one per camera", n)
	}
	if len(result.Fragments) != 4 {
		t.Errorf("fragments: got %v", result.Fragments)
	}
	if len(sink.results) != 1 || sink.results[0] != result {
		t.Errorf("sink: got %d results", len(sink.results))
	}

	// The latch was consumed; the next cycle is idle
	if again, _ := p.Step(context.Background()); again != nil {
		t.Error("second Step without arrival returned a result")
	}
}

func TestStep_LogsScoreSummary(t *testing.T) {
	var buf bytes.Buffer
	arrival := &fakeArrival{}
	p := newTestPipeline(t, arrival, fixedBox(detection.Box{Width: 8, Height: 8}), ocr.NewMock("nurofen forte"),
		[]camera.Camera{newFakeCamera("a", solidFrame(20, 20, 200))},
		WithLogger(log.New(&buf, "info", "text")))

	arrival.trigger()
	if _, err := p.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "box classified") || !strings.Contains(out, "nurofen=100") {
		t.Errorf("log should carry the score summary, got:\n%s", out)
	}
}

func TestStep_EmptyBoxSkipsOCR(t *testing.T) {
	arrival := &fakeArrival{}
	engine := ocr.NewMock("nurofen forte")
	p := newTestPipeline(t, arrival, fixedBox(detection.Box{}), engine,
		[]camera.Camera{newFakeCamera("a", solidFrame(20, 20, 200))})

	arrival.trigger()
	result, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if n := len(engine.Calls()); n != 0 {
		t.Errorf("OCR called %d times for an empty box", n)
	}
	if result.Category != classifier.Unknown || result.Matched {
		t.Errorf("category: got %q matched=%v, want unknown", result.Category, result.Matched)
	}
	if len(result.Crops) != 1 || result.Crops[0].Image != nil {
		t.Errorf("crops: got %+v", result.Crops)
	}
	if len(result.Fragments) != 0 || result.Fragments == nil {
		t.Errorf("fragments: got %#v, want empty slice", result.Fragments)
	}
}

func TestStep_DetectionErrorSkipsCamera(t *testing.T) {
	det := detectorFunc(func(_ *image.Gray, frame image.Image) (detection.Box, error) {
		if frame.Bounds().Dx() == 10 {
			return detection.Box{}, errors.New("size mismatch")
		}
		return detection.Box{X: 2, Y: 2, Width: 8, Height: 8}, nil
	})
	arrival := &fakeArrival{}
	engine := ocr.NewMock("aspirin cardio")
	p := newTestPipeline(t, arrival, det, engine, []camera.Camera{
		newFakeCamera("small", solidFrame(10, 10, 200)),
		newFakeCamera("large", solidFrame(20, 20, 200)),
	})

	arrival.trigger()
	result, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if n := len(engine.Calls()); n != 1 {
		t.Errorf("OCR calls: got %d, want 1", n)
	}
	if result.Category != "aspirin" {
		t.Errorf("category: got %q, want aspirin", result.Category)
	}
	if len(result.Crops) != 2 || !result.Crops[0].Box.Empty() {
		t.Errorf("crops: got %+v", result.Crops)
	}
}

func TestStep_OCRFailureOnOneCrop(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	engine := &ocr.Mock{AnnotateFunc: func(ctx context.Context, image []byte) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("quota exceeded")
		}
		return []string{"nurofen forte"}, nil
	}}

	arrival := &fakeArrival{}
	p := newTestPipeline(t, arrival, fixedBox(detection.Box{Width: 8, Height: 8}), engine, []camera.Camera{
		newFakeCamera("a", solidFrame(20, 20, 200)),
		newFakeCamera("b", solidFrame(20, 20, 200)),
	})

	arrival.trigger()
	result, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if result.Category != "nurofen" {
		t.Errorf("category: got %q, want nurofen from the surviving crop", result.Category)
	}
}

func TestStep_CameraFailure(t *testing.T) {
	a := newFakeCamera("a", solidFrame(20, 20, 200))
	b := newFakeCamera("b", solidFrame(20, 20, 200))
	arrival := &fakeArrival{}
	p := newTestPipeline(t, arrival, fixedBox(detection.Box{}), ocr.NewMock(), []camera.Camera{a, b})

	a.set(nil, errors.New("device unplugged"))
	arrival.trigger()
	result, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if len(result.Crops) != 1 || result.Crops[0].Camera != "b" {
		t.Errorf("crops: got %+v, want only camera b", result.Crops)
	}

	status := p.Cameras()
	if status[0].Healthy || status[0].Error != "device unplugged" || !status[1].Healthy {
		t.Errorf("status: got %+v", status)
	}
	if _, closed := a.stats(); !closed {
		t.Error("failed camera was not closed")
	}

	// A failed camera is not retried
	before, _ := a.stats()
	p.Step(context.Background())
	if after, _ := a.stats(); after != before {
		t.Errorf("failed camera captured again: %d -> %d", before, after)
	}

	b.set(nil, errors.New("device unplugged"))
	if _, err := p.Step(context.Background()); !errors.Is(err, ErrNoCameras) {
		t.Errorf("all cameras failed: got %v, want ErrNoCameras", err)
	}
}

func TestNew_NoCameras(t *testing.T) {
	broken := newFakeCamera("a", nil)
	broken.set(nil, errors.New("no device"))

	tests := []struct {
		name string
		cams []camera.Camera
	}{
		{"none", nil},
		{"all broken", []camera.Camera{broken}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&fakeArrival{}, fixedBox(detection.Box{}), ocr.NewMock(), newTestClassifier(t),
				tt.cams, WithLogger(log.Discard()))
			if !errors.Is(err, ErrNoCameras) {
				t.Errorf("got %v, want ErrNoCameras", err)
			}
		})
	}
}

func TestRebaseline(t *testing.T) {
	var mu sync.Mutex
	var seen uint8
	det := detectorFunc(func(ref *image.Gray, _ image.Image) (detection.Box, error) {
		mu.Lock()
		seen = ref.GrayAt(0, 0).Y
		mu.Unlock()
		return detection.Box{}, nil
	})

	cam := newFakeCamera("a", solidFrame(8, 8, 100))
	arrival := &fakeArrival{}
	p := newTestPipeline(t, arrival, det, ocr.NewMock(), []camera.Camera{cam})

	cam.set(solidFrame(8, 8, 180), nil)
	arrival.trigger()
	p.Step(context.Background())
	if seen != 100 {
		t.Errorf("reference before re-baseline: got %d, want 100", seen)
	}

	if err := p.Rebaseline(); err != nil {
		t.Fatalf("Rebaseline failed: %v", err)
	}
	arrival.trigger()
	p.Step(context.Background())
	if seen != 180 {
		t.Errorf("reference after re-baseline: got %d, want 180", seen)
	}
}

func TestRun_Commands(t *testing.T) {
	cam := newFakeCamera("a", solidFrame(8, 8, 100))
	arrival := &fakeArrival{}
	statusCalls := 0
	p := newTestPipeline(t, arrival, fixedBox(detection.Box{}), ocr.NewMock(), []camera.Camera{cam},
		WithInterval(time.Hour),
		WithStatusHook(func() { statusCalls++ }))

	commands := make(chan control.Command)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), commands) }()

	for _, cmd := range []control.Command{control.Rebaseline, control.Reopen, control.Status, control.Quit} {
		commands <- cmd
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: got %v, want nil after quit", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after quit")
	}

	if captures, _ := cam.stats(); captures != 2 {
		t.Errorf("captures: got %d, want 2 (initial and re-baseline)", captures)
	}
	if arrival.reopens != 1 {
		t.Errorf("reopens: got %d, want 1", arrival.reopens)
	}
	if statusCalls != 1 {
		t.Errorf("status hook: got %d calls, want 1", statusCalls)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	cam := newFakeCamera("a", solidFrame(8, 8, 100))
	p := newTestPipeline(t, &fakeArrival{}, fixedBox(detection.Box{}), ocr.NewMock(), []camera.Camera{cam},
		WithInterval(time.Millisecond))

	commands := make(chan control.Command)
	close(commands)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx, commands); err != nil {
		t.Errorf("Run: got %v, want nil on cancel", err)
	}
}

func TestRun_StopsWhenCamerasFail(t *testing.T) {
	cam := newFakeCamera("a", solidFrame(8, 8, 100))
	p := newTestPipeline(t, &fakeArrival{}, fixedBox(detection.Box{}), ocr.NewMock(), []camera.Camera{cam},
		WithInterval(time.Millisecond))
	cam.set(nil, errors.New("gone"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Run(ctx, nil); !errors.Is(err, ErrNoCameras) {
		t.Errorf("Run: got %v, want ErrNoCameras", err)
	}
}

func TestClose(t *testing.T) {
	a := newFakeCamera("a", solidFrame(8, 8, 100))
	b := newFakeCamera("b", solidFrame(8, 8, 100))
	p := newTestPipeline(t, &fakeArrival{}, fixedBox(detection.Box{}), ocr.NewMock(), []camera.Camera{a, b})

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, c := range []*fakeCamera{a, b} {
		if _, closed := c.stats(); !closed {
			t.Errorf("camera %s not closed", c.name)
		}
	}
}
