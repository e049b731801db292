package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/norachat/agentic/domain"
	"github.com/norachat/agentic/utils/log"
	"github.com/norachat/agentic/utils/metrics"
	"github.com/norachat/agentic/utils/sysinfo"
)

const (
	cancelledResponse = "Inference cancelled."
	bytesPerMiB       = 1048576.0
)

// ChatRequest carries one conversation turn: the new user message, the
// prior transcript, and the generation parameters for this request.
type ChatRequest struct {
	Message string
	History []domain.Turn
	Config  domain.GenerationConfig
}

// ChatService drives a single streaming conversation turn against the
// remote or local backend, emitting transcript snapshots as fragments
// arrive and recording metrics at each lifecycle point.
type ChatService struct {
	remote  domain.Generator
	local   domain.Generator
	metrics *metrics.Recorder
	memory  func() uint64
}

type Option func(*ChatService)

// WithMemorySampler overrides the resident-memory source used for the
// diagnostic suffix.
func WithMemorySampler(sample func() uint64) Option {
	return func(s *ChatService) {
		s.memory = sample
	}
}

func NewChatService(remote, local domain.Generator, recorder *metrics.Recorder, opts ...Option) *ChatService {
	s := &ChatService{
		remote:  remote,
		local:   local,
		metrics: recorder,
		memory:  sysinfo.ResidentMemory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Respond produces a finite sequence of successively longer transcripts:
// the prior history plus the latest turn with its response growing as
// fragments arrive. The final emission carries either the annotated
// response, a cancellation notice, or a classified error string; nothing
// propagates to the caller as an error. Cancellation is cooperative via
// ctx and observed only at fragment boundaries. The caller must drain the
// channel; it closes once the turn has terminated.
func (s *ChatService) Respond(ctx context.Context, req ChatRequest) <-chan []domain.Turn {
	updates := make(chan []domain.Turn)
	go func() {
		defer close(updates)
		s.respond(ctx, req, updates)
	}()
	return updates
}

func (s *ChatService) respond(ctx context.Context, req ChatRequest, updates chan<- []domain.Turn) {
	s.metrics.RequestStarted()
	start := time.Now()
	baseline := s.memory()

	generator := s.remote
	if req.Config.UseLocalModel {
		generator = s.local
		s.metrics.LocalModelUsed()
	} else {
		s.metrics.APIModelUsed()
	}

	tokenCount := 0
	defer func() {
		s.metrics.ObserveTokenCount(tokenCount)
		s.metrics.ObserveDuration(time.Since(start))
	}()

	emit := func(response string) {
		updates <- snapshot(req.History, req.Message, response)
	}

	failed := func(err error) {
		kind := domain.KindOf(err)
		s.metrics.RequestFailed(kind)
		log.WithCtx(ctx).Warn("generation failed",
			zap.String("backend", generator.Name()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		emit(fmt.Sprintf("%s: %v", kind.Label(), err))
	}

	if ctx.Err() != nil {
		emit(cancelledResponse)
		return
	}

	messages := domain.BuildMessages(req.Config.SystemMessage, req.History, req.Message)

	stream, err := generator.Stream(ctx, domain.GenerationRequest{
		Messages:    messages,
		MaxTokens:   req.Config.MaxTokens,
		Temperature: req.Config.Temperature,
		TopP:        req.Config.TopP,
	})
	if err != nil {
		failed(err)
		return
	}
	defer stream.Close()

	var response strings.Builder
loop:
	for {
		if ctx.Err() != nil {
			emit(cancelledResponse)
			return
		}

		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				emit(cancelledResponse)
				return
			}
			failed(err)
			return
		}

		switch event.Type {
		case domain.EventTextDelta:
			if event.Text == "" {
				continue
			}
			response.WriteString(event.Text)
			tokenCount++
			emit(response.String())
		case domain.EventError:
			if ctx.Err() != nil {
				emit(cancelledResponse)
				return
			}
			failed(event.Err)
			return
		case domain.EventDone:
			break loop
		}
	}

	// The local path never incremented this in the source; kept as observed.
	if !req.Config.UseLocalModel {
		s.metrics.RequestSucceeded()
	}

	elapsed := time.Since(start).Seconds()
	memoryMB := (float64(s.memory()) - float64(baseline)) / bytesPerMiB
	emit(fmt.Sprintf("%s\n\n(Generated in %.2f seconds, Memory used: %.6f MB)",
		response.String(), elapsed, memoryMB))
}

// snapshot builds a fresh transcript; the caller's history is never
// mutated in place.
func snapshot(history []domain.Turn, message, response string) []domain.Turn {
	out := make([]domain.Turn, len(history), len(history)+1)
	copy(out, history)
	return append(out, domain.Turn{User: message, Assistant: response})
}
