package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/gemchat/backend/internal/service/conversation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	outboundBuffer = 16
)

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	ChatID    string      `json:"chatId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newFrame(kind, chatID string, data interface{}) outgoingMessage {
	return outgoingMessage{Type: kind, ChatID: chatID, Data: data, Timestamp: time.Now().Unix()}
}

func errorFrame(chatID, message string) outgoingMessage {
	return newFrame("error", chatID, map[string]string{"message": message})
}

// session 一个连接到对话的WebSocket客户端，只有 writeLoop 写 conn
type session struct {
	conn   *websocket.Conn
	conv   *conversation.Conversation
	out    chan outgoingMessage
	logger zerolog.Logger

	submits sync.WaitGroup
}

// handleWebSocket 处理WebSocket连接：对话每次变化推送 view 帧，接收
// {"type":"submit","text":...} 帧。断开连接不会取消进行中的问答。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	conv, release, err := h.registry.Acquire(r.Context(), owner(r), chatID)
	if err != nil {
		h.respondAcquireError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		h.logger.Warn().Err(err).Str("chat_id", chatID).Msg("websocket upgrade failed")
		return
	}

	s := &session{
		conn:   conn,
		conv:   conv,
		out:    make(chan outgoingMessage, outboundBuffer),
		logger: h.logger.With().Str("chat_id", chatID).Logger(),
	}
	s.logger.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	views, stopWatch := conv.Watch()
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, views)
	}()

	s.readLoop(ctx)

	cancel()
	stopWatch()
	<-writerDone
	_ = conn.Close()
	s.logger.Info().Msg("websocket disconnected")

	// 这里发起的问答保存完之前，对话保持注册
	go func() {
		s.submits.Wait()
		release()
	}()
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.enqueue(ctx, errorFrame(s.conv.ID(), "invalid message"))
			continue
		}

		switch msg.Type {
		case "submit":
			s.submits.Add(1)
			go func(text string) {
				defer s.submits.Done()
				s.submit(ctx, text)
			}(msg.Text)
		default:
			s.enqueue(ctx, errorFrame(s.conv.ID(), "unsupported message type: "+msg.Type))
		}
	}
}

func (s *session) submit(ctx context.Context, text string) {
	outcome, err := s.conv.Submit(context.WithoutCancel(ctx), text)
	if errors.Is(err, conversation.ErrBusy) {
		s.enqueue(ctx, errorFrame(s.conv.ID(), err.Error()))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("submit failed")
		s.enqueue(ctx, errorFrame(s.conv.ID(), "submit failed"))
		return
	}
	logOutcome(s.logger, s.conv.ID(), outcome)
	s.enqueue(ctx, newFrame("outcome", s.conv.ID(), newOutcomeResponse(outcome)))
}

func (s *session) enqueue(ctx context.Context, msg outgoingMessage) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc, views <-chan conversation.View) {
	// 写失败即结束会话，关闭连接让 readLoop 退出
	defer func() {
		cancel()
		_ = s.conn.Close()
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg outgoingMessage
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			msg = newFrame("view", s.conv.ID(), view)
		case msg = <-s.out:
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(msg); err != nil {
			s.logger.Debug().Err(err).Str("type", msg.Type).Msg("websocket write failed")
			return
		}
	}
}
