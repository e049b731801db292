package llm

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/norachat/agentic/domain"
)

type eventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan domain.Event
}

// newEventStream runs the producer in its own goroutine and funnels its
// terminal error into the stream as an EventError. Closing the stream
// cancels the producer.
func newEventStream(ctx context.Context, run func(context.Context, chan<- domain.Event) error) domain.Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		ctx:    streamCtx,
		cancel: cancel,
		events: make(chan domain.Event, 16),
	}
	go func() {
		defer close(s.events)
		if err := run(streamCtx, s.events); err != nil {
			// The buffer may be full when the consumer has gone away;
			// drop the event rather than block the producer forever.
			select {
			case s.events <- domain.Event{Type: domain.EventError, Err: err}:
			case <-streamCtx.Done():
			}
		}
	}()
	return s
}

func (s *eventStream) Recv() (domain.Event, error) {
	// Drain buffered events before checking ctx.Done so a cancel racing
	// already-produced fragments does not drop them.
	select {
	case event, ok := <-s.events:
		if !ok {
			return domain.Event{}, io.EOF
		}
		return event, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return domain.Event{}, s.ctx.Err()
	case event, ok := <-s.events:
		if !ok {
			return domain.Event{}, io.EOF
		}
		return event, nil
	}
}

func (s *eventStream) Close() error {
	s.cancel()
	return nil
}

// wrapStreamErr tags a backend failure so the turn handler can classify it
// without matching on error text.
func wrapStreamErr(backend string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return domain.NewGenerationError(domain.ErrorTimeout, backend, err)
	}
	return domain.NewGenerationError(domain.ErrorBackend, backend, err)
}
