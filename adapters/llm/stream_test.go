package llm

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/norachat/agentic/domain"
)

func collectEvents(t *testing.T, stream domain.Stream) []domain.Event {
	t.Helper()
	var events []domain.Event
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		events = append(events, event)
	}
}

func TestEventStreamDeliversEventsThenEOF(t *testing.T) {
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- domain.Event) error {
		events <- domain.Event{Type: domain.EventTextDelta, Text: "a"}
		events <- domain.Event{Type: domain.EventTextDelta, Text: "b"}
		events <- domain.Event{Type: domain.EventDone}
		return nil
	})
	defer stream.Close()

	events := collectEvents(t, stream)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Text != "a" || events[1].Text != "b" {
		t.Errorf("deltas out of order: %+v", events)
	}
	if events[2].Type != domain.EventDone {
		t.Errorf("last event type = %v, want EventDone", events[2].Type)
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("Recv after exhaustion = %v, want io.EOF", err)
	}
}

func TestEventStreamFunnelsProducerError(t *testing.T) {
	cause := errors.New("boom")
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- domain.Event) error {
		events <- domain.Event{Type: domain.EventTextDelta, Text: "partial"}
		return cause
	})
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil || event.Text != "partial" {
		t.Fatalf("first Recv = (%+v, %v), want the partial delta", event, err)
	}

	event, err = stream.Recv()
	if err != nil {
		t.Fatalf("second Recv error = %v, want error carried as event", err)
	}
	if event.Type != domain.EventError || !errors.Is(event.Err, cause) {
		t.Errorf("second event = %+v, want EventError wrapping the cause", event)
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("Recv after error = %v, want io.EOF", err)
	}
}

func TestEventStreamDrainsBufferedEventsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	produced := make(chan struct{})
	stream := newEventStream(ctx, func(ctx context.Context, events chan<- domain.Event) error {
		events <- domain.Event{Type: domain.EventTextDelta, Text: "buffered"}
		close(produced)
		<-ctx.Done()
		return nil
	})
	defer stream.Close()

	<-produced
	cancel()

	event, err := stream.Recv()
	if err != nil || event.Text != "buffered" {
		t.Errorf("Recv = (%+v, %v), want the buffered delta despite cancellation", event, err)
	}
}

func TestEventStreamCloseCancelsProducer(t *testing.T) {
	started := make(chan struct{})
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- domain.Event) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	stream.Close()

	// The cancellation surfaces as a Recv error, as io.EOF when the
	// producer drops its terminal event, or as an EventError it managed
	// to funnel into the buffer before exiting.
	event, err := stream.Recv()
	switch {
	case err != nil:
		if err != io.EOF && !errors.Is(err, context.Canceled) {
			t.Errorf("Recv after Close = %v, want termination", err)
		}
	case event.Type == domain.EventError:
		if !errors.Is(event.Err, context.Canceled) {
			t.Errorf("error event carries %v, want context.Canceled", event.Err)
		}
	default:
		t.Errorf("Recv after Close = (%+v, nil), want termination", event)
	}
}

func TestEventStreamCloseReleasesAbandonedProducer(t *testing.T) {
	before := runtime.NumGoroutine()

	// Fill the buffer completely, then fail; the terminal error event has
	// nowhere to go once the consumer closes the stream without draining.
	for i := 0; i < 10; i++ {
		stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- domain.Event) error {
			for j := 0; j < 16; j++ {
				select {
				case events <- domain.Event{Type: domain.EventTextDelta, Text: "x"}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return errors.New("late failure")
		})
		stream.Close()
	}

	deadline := time.After(2 * time.Second)
	for runtime.NumGoroutine() > before {
		select {
		case <-deadline:
			t.Fatalf("%d goroutines still running, want at most %d: producers stuck on a terminal send",
				runtime.NumGoroutine(), before)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWrapStreamErrClassification(t *testing.T) {
	if kind := domain.KindOf(wrapStreamErr("openai", context.DeadlineExceeded)); kind != domain.ErrorTimeout {
		t.Errorf("deadline exceeded classified as %q, want timeout", kind)
	}
	if kind := domain.KindOf(wrapStreamErr("openai", errors.New("bad gateway"))); kind != domain.ErrorBackend {
		t.Errorf("generic failure classified as %q, want backend", kind)
	}
}

func TestMockGeneratorScriptsTurns(t *testing.T) {
	mock := NewMockGenerator("mock").
		AddTextResponse("first").
		AddError(errors.New("second fails"))

	stream, err := mock.Stream(context.Background(), domain.GenerationRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collectEvents(t, stream)
	var text strings.Builder
	for _, event := range events {
		if event.Type == domain.EventTextDelta {
			text.WriteString(event.Text)
		}
	}
	if text.String() != "first" {
		t.Errorf("first turn text = %q, want %q", text.String(), "first")
	}

	stream, err = mock.Stream(context.Background(), domain.GenerationRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	event, err := stream.Recv()
	if err != nil || event.Type != domain.EventError {
		t.Fatalf("second turn Recv = (%+v, %v), want EventError", event, err)
	}

	if _, err := mock.Stream(context.Background(), domain.GenerationRequest{}); err == nil {
		t.Error("Stream beyond the script succeeded, want error")
	}
	if len(mock.Requests) != 3 {
		t.Errorf("recorded %d requests, want 3", len(mock.Requests))
	}
}

func TestMockGeneratorHonoursChunkDelay(t *testing.T) {
	mock := NewMockGenerator("mock").AddTurn(MockTurn{
		Chunks:     []string{"a", "b"},
		ChunkDelay: 10 * time.Millisecond,
	})

	stream, err := mock.Stream(context.Background(), domain.GenerationRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	start := time.Now()
	collectEvents(t, stream)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("stream finished in %v, want at least 20ms of chunk delays", elapsed)
	}
}

func TestChunkText(t *testing.T) {
	const text = "the quick brown fox jumps over the lazy dog"
	chunks := chunkText(text, 10)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want the text split up", len(chunks))
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Errorf("chunks reassemble to %q, want original text", got)
	}
	for i, chunk := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(chunk, " ") {
			t.Errorf("chunk %d %q does not break at a word boundary", i, chunk)
		}
	}

	if chunks := chunkText("", 10); chunks != nil {
		t.Errorf("chunkText(\"\") = %v, want nil", chunks)
	}
	if chunks := chunkText("short", 10); len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("chunkText(short) = %v, want single chunk", chunks)
	}
}
