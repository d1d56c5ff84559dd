// Package camera provides the frame sources watched by the pipeline.
//
// A Camera returns full colour frames on demand. Device cameras live in the
// webcam subpackage because they need OpenCV; Replay serves recorded frames
// from disk and needs nothing but the image decoders.
package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/imaging"
)

// ErrClosed is returned by Capture after Close.
var ErrClosed = errors.New("camera: closed")

// Camera is a source of colour frames.
type Camera interface {
	// Name identifies the camera in logs and results.
	Name() string

	// Capture returns the current frame. The returned image must not be
	// modified by the caller.
	Capture() (image.Image, error)

	Close() error
}

// Replay is a camera that cycles through the image files of a directory in
// name order. Frames are decoded once and served from memory afterwards.
type Replay struct {
	name  string
	paths []string
	cache *imaging.ImageCache

	mu     sync.Mutex
	next   int
	closed bool
}

// NewReplay creates a replay camera over dir. The directory must contain at
// least one PNG, JPEG or GIF file.
func NewReplay(name, dir string) (*Replay, error) {
	paths, err := imaging.ListImages(dir)
	if err != nil {
		return nil, fmt.Errorf("replay camera %s: %w", name, err)
	}
	if name == "" {
		name = dir
	}
	return &Replay{name: name, paths: paths, cache: imaging.NewImageCache()}, nil
}

func (r *Replay) Name() string {
	return r.name
}

// Capture returns the next frame, wrapping around after the last file.
func (r *Replay) Capture() (image.Image, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	path := r.paths[r.next]
	r.next = (r.next + 1) % len(r.paths)
	r.mu.Unlock()

	img, err := r.cache.Load(path)
	if err != nil {
		return nil, fmt.Errorf("replay camera %s: %w", r.name, err)
	}
	return img, nil
}

// Len returns the number of frames in the replay.
func (r *Replay) Len() int {
	return len(r.paths)
}

// Close releases the cached frames.
func (r *Replay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cache.Clear()
	return nil
}
