// Package telemetry sets up structured logging and the engine's
// progress/status/error event channel — the "signal/slot GUI callbacks"
// design note of spec §9, translated into a message-passing channel the
// out-of-scope GUI subscribes to.
package telemetry

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/openmined/syncengine/internal/utils"
)

// NewLogger builds the engine's default logger: a colored handler on
// stdout (plain text when not a terminal) fanned out to a plain text
// handler on logFile, matching the teacher's dual-handler setup.
func NewLogger(logFile io.Writer) *slog.Logger {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	if logFile == nil {
		return slog.New(stdoutHandler)
	}

	interceptor := utils.NewLogInterceptor(logFile)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	return slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
}

// EventKind distinguishes the events the engine publishes to external
// collaborators (the GUI, §1).
type EventKind uint8

const (
	EventProgress EventKind = iota
	EventStatusChanged
	EventError
	EventPassCompleted
	EventRestartRequested
)

// Event is a single message on the engine's event channel.
type Event struct {
	Kind     EventKind
	Path     string
	Progress float64 // 0..1, only meaningful for EventProgress
	Err      error
}

// Sink is a bounded fan-out channel of Events. The engine owns the send
// side; external collaborators own the receive side via Subscribe.
type Sink struct {
	ch chan Event
}

// NewSink creates a Sink with the given channel buffer depth.
func NewSink(buffer int) *Sink {
	return &Sink{ch: make(chan Event, buffer)}
}

// Publish enqueues an event, dropping it if the channel is full rather than
// blocking the pipeline — progress events are best-effort.
func (s *Sink) Publish(e Event) {
	select {
	case s.ch <- e:
	default:
		slog.Debug("telemetry: event dropped, sink full", "kind", e.Kind, "path", e.Path)
	}
}

// Subscribe returns the receive-only channel external collaborators read
// from.
func (s *Sink) Subscribe() <-chan Event {
	return s.ch
}

// Close shuts down the sink. Safe to call once.
func (s *Sink) Close() {
	close(s.ch)
}
