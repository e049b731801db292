package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/norachat/agentic/domain"
	"github.com/norachat/agentic/usecase"
	"github.com/norachat/agentic/utils/log"
)

type Server struct {
	upgrader websocket.Upgrader
	svc      *usecase.ChatService
	store    domain.ConversationStore
	broker   domain.MessageBroker
	defaults domain.GenerationConfig
	hub      *Hub
}

func NewServer(svc *usecase.ChatService, store domain.ConversationStore, broker domain.MessageBroker, defaults domain.GenerationConfig) *Server {
	server := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		svc:      svc,
		store:    store,
		broker:   broker,
		defaults: defaults,
		hub:      NewHub(),
	}

	// Route cancel notices from the HTTP surface to live sessions
	go server.startCancelListener()

	return server
}

func (s *Server) RunWebsocketHub() {
	s.hub.Run()
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// startCancelListener delivers broker cancel notices to the session
// holding the named conversation.
func (s *Server) startCancelListener() {
	ctx := context.Background()

	messages, err := s.broker.Subscribe(ctx, domain.CancelTopic, "")
	if err != nil {
		log.WithCtx(ctx).Error("Failed to subscribe to cancel topic", zap.Error(err))
		return
	}

	log.WithCtx(ctx).Info("WebSocket server listening for cancel notices")

	for msg := range messages {
		var notice domain.CancelNotice
		if err := json.Unmarshal(msg.Payload, &notice); err != nil {
			log.WithCtx(ctx).Error("Failed to unmarshal cancel notice", zap.Error(err))
			continue
		}

		client := s.hub.GetClientByConversation(notice.ConversationID)
		if client == nil {
			log.WithCtx(ctx).Debug("Cancel notice for conversation with no live session",
				zap.String("conversation_id", notice.ConversationID))
			continue
		}

		client.CancelGeneration()
		log.WithCtx(ctx).Info("Delivered cancel notice",
			zap.String("conversation_id", notice.ConversationID))
	}

	log.WithCtx(ctx).Info("Cancel listener stopped: broker closed")
}
