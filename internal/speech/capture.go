// Package speech converts caller audio to utterances and replies to audio.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var (
	// ErrCapture wraps recognition failures.
	ErrCapture = errors.New("speech: capture failed")
	// ErrCaptureNotActive is returned when audio or stop arrives with no capture running.
	ErrCaptureNotActive = errors.New("speech: capture not active")
	// ErrCaptureActive is returned by Start while a capture is already running.
	ErrCaptureActive = errors.New("speech: capture already active")
)

// StreamRecognizer performs continuous recognition. It reads audio until the
// channel is closed or ctx ends and reports each result through emit.
type StreamRecognizer interface {
	Stream(ctx context.Context, language string, audio <-chan []byte, emit func(text string, final bool)) error
}

// Transcriber performs single-shot recognition of a complete recording.
type Transcriber interface {
	Transcribe(ctx context.Context, language string, audio []byte) (string, error)
}

// Mode selects how a capture recognizes audio.
type Mode int

const (
	ModeSingleShot Mode = iota
	ModeContinuous
)

// EventKind classifies capture events.
type EventKind int

const (
	// EventPartial carries the interim transcript of the current segment.
	EventPartial EventKind = iota
	// EventSegment carries a finalized segment in continuous mode.
	EventSegment
	// EventError reports a recognition failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventSegment:
		return "segment"
	default:
		return "error"
	}
}

// Event is emitted on the capture's event stream.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// CaptureConfig configures a Capture.
type CaptureConfig struct {
	Mode        Mode
	Language    string
	Streamer    StreamRecognizer
	Transcriber Transcriber
	Logger      *logging.Logger
	// EventBuffer sizes the event channel. Partials are dropped when it is full.
	EventBuffer int
}

// Capture is one session's recognizer. Its event stream has a single consumer.
type Capture struct {
	mode        Mode
	language    string
	streamer    StreamRecognizer
	transcriber Transcriber
	logger      *logging.Logger
	events      chan Event

	mu       sync.Mutex
	active   bool
	closed   bool
	cancel   context.CancelFunc
	audio    chan []byte
	done     chan struct{}
	segments []string
	partial  string
	recorded bytes.Buffer
	err      error
}

// NewCapture creates an idle capture.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.Mode == ModeContinuous && cfg.Streamer == nil {
		panic("speech: continuous capture requires a stream recognizer")
	}
	if cfg.Mode == ModeSingleShot && cfg.Transcriber == nil {
		panic("speech: single-shot capture requires a transcriber")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 32
	}
	return &Capture{
		mode:        cfg.Mode,
		language:    cfg.Language,
		streamer:    cfg.Streamer,
		transcriber: cfg.Transcriber,
		logger:      cfg.Logger,
		events:      make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the capture's event stream. It is closed by Close.
func (c *Capture) Events() <-chan Event {
	return c.events
}

// Active reports whether audio is being captured.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start begins a capture. In continuous mode recognition starts immediately.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCaptureNotActive
	}
	if c.active {
		return ErrCaptureActive
	}

	c.active = true
	c.segments = nil
	c.partial = ""
	c.err = nil
	c.recorded.Reset()

	if c.mode == ModeSingleShot {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.audio = make(chan []byte, 64)
	c.done = make(chan struct{})
	go c.run(streamCtx, c.audio, c.done)
	return nil
}

func (c *Capture) run(ctx context.Context, audio <-chan []byte, done chan struct{}) {
	defer close(done)
	err := c.streamer.Stream(ctx, c.language, audio, func(text string, final bool) {
		c.mu.Lock()
		if final {
			if t := strings.TrimSpace(text); t != "" {
				c.segments = append(c.segments, t)
			}
			c.partial = ""
		} else {
			c.partial = text
		}
		c.mu.Unlock()

		if final {
			c.emit(Event{Kind: EventSegment, Text: text})
		} else {
			c.emit(Event{Kind: EventPartial, Text: text})
		}
	})
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	err = fmt.Errorf("%w: %w", ErrCapture, err)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.logger.Warn("speech recognition failed", "error", err)
	c.emit(Event{Kind: EventError, Err: err})
}

// Write feeds an audio chunk to the running capture.
func (c *Capture) Write(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrCaptureNotActive
	}
	if c.mode == ModeSingleShot {
		c.recorded.Write(chunk)
		return nil
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	select {
	case c.audio <- buf:
		return nil
	default:
		return fmt.Errorf("%w: audio buffer full", ErrCapture)
	}
}

// Stop ends the capture and returns the finalized utterance: the joined
// segments in continuous mode, or the transcription of the recording in
// single-shot mode. An unfinished interim tail is kept.
func (c *Capture) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return "", ErrCaptureNotActive
	}
	c.active = false

	if c.mode == ModeSingleShot {
		recorded := append([]byte(nil), c.recorded.Bytes()...)
		c.recorded.Reset()
		c.mu.Unlock()
		if len(recorded) == 0 {
			return "", nil
		}
		text, err := c.transcriber.Transcribe(ctx, c.language, recorded)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCapture, err)
			c.emit(Event{Kind: EventError, Err: err})
			return "", err
		}
		return strings.TrimSpace(text), nil
	}

	close(c.audio)
	done, cancel := c.done, c.cancel
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
	}
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	parts := append([]string(nil), c.segments...)
	if tail := strings.TrimSpace(c.partial); tail != "" {
		parts = append(parts, tail)
	}
	c.segments, c.partial = nil, ""
	return strings.Join(parts, " "), nil
}

// Cancel aborts the capture and discards whatever was recognized.
func (c *Capture) Cancel() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.segments, c.partial = nil, ""
	c.recorded.Reset()
	cancel, done := c.cancel, c.done
	if c.mode == ModeContinuous {
		close(c.audio)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close cancels any capture and closes the event stream.
func (c *Capture) Close() {
	c.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *Capture) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("capture event dropped", "kind", ev.Kind.String())
	}
}
