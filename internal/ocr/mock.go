package ocr

import (
	"context"
	"sync"
)

// Mock implements Engine for testing.
type Mock struct {
	// AnnotateFunc is called when Annotate is invoked. A nil func returns
	// no annotations.
	AnnotateFunc func(ctx context.Context, image []byte) ([]string, error)

	mu    sync.Mutex
	calls [][]byte
}

// NewMock returns a mock that answers every call with annotations.
func NewMock(annotations ...string) *Mock {
	return &Mock{
		AnnotateFunc: func(ctx context.Context, image []byte) ([]string, error) {
			return annotations, nil
		},
	}
}

// Annotate records the image and calls AnnotateFunc.
func (m *Mock) Annotate(ctx context.Context, image []byte) ([]string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, image)
	m.mu.Unlock()

	if m.AnnotateFunc == nil {
		return nil, nil
	}
	return m.AnnotateFunc(ctx, image)
}

// Calls returns the images passed to Annotate, in call order.
func (m *Mock) Calls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.calls...)
}
