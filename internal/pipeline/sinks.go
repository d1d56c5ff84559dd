package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/classifier"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/imaging"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/log"
)

// Sink receives every classified result.
type Sink interface {
	Emit(ctx context.Context, r *Result) error
}

// MultiSink emits to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, r *Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink logs each result and, when Out is set, prints the category on its
// own line for the operator console.
type LogSink struct {
	Logger *slog.Logger
	Out    io.Writer
}

func (s *LogSink) Emit(_ context.Context, r *Result) error {
	logger := s.Logger
	if logger == nil {
		logger = log.L()
	}

	top := make([]string, 0, 3)
	for _, sc := range (classifier.Match{Scores: r.Scores}).Top(3) {
		top = append(top, fmt.Sprintf("%s=%d", sc.Category, sc.Score))
	}
	logger.Info("result",
		"id", r.ID,
		"category", r.Category,
		"matched", r.Matched,
		"top", strings.Join(top, ","),
		"cameras", len(r.Detected()))

	if s.Out != nil {
		if _, err := fmt.Fprintln(s.Out, r.Category); err != nil {
			return fmt.Errorf("failed to print result: %w", err)
		}
	}
	return nil
}

// DefaultRedisChannel is the channel results are published on.
const DefaultRedisChannel = "boxes"

// publisher is the part of *redis.Client used by RedisSink.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes each result as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  publisher
	channel string
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return newRedisSink(client, channel)
}

func newRedisSink(client publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// NewRedisSinkFromURL connects to the server at url and checks it answers.
func NewRedisSinkFromURL(ctx context.Context, url, channel string) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisSink(client, channel), nil
}

// Channel returns the channel results are published on.
func (s *RedisSink) Channel() string {
	return s.channel
}

func (s *RedisSink) Emit(ctx context.Context, r *Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// SnapshotSink writes, for every camera that saw the box, the frame with the
// box outlined and the crop sent to OCR as JPEG files:
//
//	<dir>/<id>-<camera>.jpg
//	<dir>/<id>-<camera>-crop.jpg
type SnapshotSink struct {
	Dir       string
	Color     string // hex, defaults to imaging.DefaultOutlineColor
	Thickness int
	Quality   int
}

func (s *SnapshotSink) Emit(_ context.Context, r *Result) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	outline := imaging.ParseColor(s.Color)
	thickness := s.Thickness
	if thickness < 1 {
		thickness = 2
	}
	quality := s.Quality
	if quality <= 0 {
		quality = imaging.DefaultJPEGQuality
	}

	var errs []error
	for _, c := range r.Detected() {
		base := filepath.Join(s.Dir, fmt.Sprintf("%s-%s", r.ID, fileSafe(c.Camera)))

		if c.Frame != nil {
			annotated := imaging.Annotate(c.Frame, []imaging.Annotation{
				{Rect: c.Box.Rect(), Label: r.Category},
			}, outline, thickness)
			if err := writeJPEG(base+".jpg", annotated, quality); err != nil {
				errs = append(errs, err)
			}
		}
		if c.Image != nil {
			if err := writeJPEG(base+"-crop.jpg", c.Image, quality); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func writeJPEG(path string, img image.Image, quality int) error {
	data, err := imaging.EncodeJPEG(img, quality)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// fileSafe maps a camera name to something usable in a file name.
func fileSafe(name string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "camera"
	}
	return safe
}
