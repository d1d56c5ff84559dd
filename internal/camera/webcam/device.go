// Package webcam captures frames from V4L2/UVC cameras through OpenCV.
//
// Building this package requires OpenCV 4 and cgo (see gocv.io for install
// instructions).
package webcam

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/camera"
)

// DefaultWarmup is how long a freshly opened camera is given to settle its
// sensor before the first frame is used.
const DefaultWarmup = 2 * time.Second

// manualExposure selects manual exposure on the V4L2 backend.
const manualExposure = 1

// Config describes one device camera.
type Config struct {
	// Index is the /dev/videoN device number.
	Index int

	// Focus is the fixed focus value. Autofocus is always disabled so the
	// reference frame stays comparable with live frames.
	Focus float64

	// Warmup is the settle time after opening. Zero selects DefaultWarmup;
	// negative disables it.
	Warmup time.Duration
}

// Device is an OpenCV-backed camera.Camera.
type Device struct {
	cfg  Config
	name string

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

var _ camera.Camera = (*Device)(nil)

// Open opens the camera, fixes focus and exposure, and waits for warm-up.
func Open(cfg Config) (*Device, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", cfg.Index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d is not available", cfg.Index)
	}

	vc.Set(gocv.VideoCaptureAutoFocus, 0)
	vc.Set(gocv.VideoCaptureAutoExposure, manualExposure)
	vc.Set(gocv.VideoCaptureFocus, cfg.Focus)

	warmup := cfg.Warmup
	if warmup == 0 {
		warmup = DefaultWarmup
	}
	if warmup > 0 {
		time.Sleep(warmup)
	}

	return &Device{
		cfg:  cfg,
		name: fmt.Sprintf("video%d", cfg.Index),
		vc:   vc,
		mat:  gocv.NewMat(),
	}, nil
}

func (d *Device) Name() string {
	return d.name
}

// Capture reads one frame and converts it to an image.Image.
func (d *Device) Capture() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil, camera.ErrClosed
	}
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, fmt.Errorf("camera %s returned no frame", d.name)
	}

	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera %s: failed to convert frame: %w", d.name, err)
	}
	return img, nil
}

// Close releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.mat.Close()
	d.vc = nil
	return err
}
