// Package conversation 通过 REST 与 WebSocket 提供消息提交流程。
package conversation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/gemchat/backend/internal/logging"
	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/service/conversation"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Handler 对话的HTTP处理器
type Handler struct {
	registry *conversation.Registry
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New 创建对话处理器
func New(registry *conversation.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logging.Component("conversation-handler"),
	}
}

// RegisterRoutes 注册提交与WebSocket路由，r 必须位于 middleware.Authenticate 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chats/{chatID}/messages", h.handleSubmit)
	r.Get("/chats/{chatID}/ws", h.handleWebSocket)
}

type outcomeResponse struct {
	Status conversation.Status `json:"status"`
	User   *chat.Message       `json:"user,omitempty"`
	Bot    *chat.Message       `json:"bot,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// 客户端只拿到固定的错误描述，上游错误细节只进服务端日志。
const (
	failedMessage  = "the completion service could not produce a reply"
	unsavedMessage = "the exchange could not be saved"
)

func newOutcomeResponse(o conversation.Outcome) outcomeResponse {
	resp := outcomeResponse{Status: o.Status}
	if o.Status != conversation.StatusDiscarded {
		user, bot := o.User, o.Bot
		resp.User, resp.Bot = &user, &bot
	}
	switch o.Status {
	case conversation.StatusFailed:
		resp.Error = failedMessage
	case conversation.StatusUnsaved:
		resp.Error = unsavedMessage
	}
	return resp
}

// logOutcome 记录失败交换的详细错误
func logOutcome(logger zerolog.Logger, chatID string, o conversation.Outcome) {
	if o.Err == nil {
		return
	}
	logger.Warn().Err(o.Err).Str("chat_id", chatID).Str("status", string(o.Status)).Msg("exchange did not complete")
}

func owner(r *http.Request) string {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.UID
}

// handleSubmit 完成一次问答，消息对保存后返回结果
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, release, err := h.registry.Acquire(r.Context(), owner(r), chi.URLParam(r, "chatID"))
	if err != nil {
		h.respondAcquireError(w, err)
		return
	}
	defer release()

	outcome, err := conv.Submit(r.Context(), payload.Text)
	if errors.Is(err, conversation.ErrBusy) {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", conv.ID()).Msg("submit failed")
		utils.RespondError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	logOutcome(h.logger, conv.ID(), outcome)
	switch outcome.Status {
	case conversation.StatusDiscarded:
		w.WriteHeader(http.StatusNoContent)
	case conversation.StatusUnsaved:
		utils.RespondJSON(w, http.StatusInternalServerError, newOutcomeResponse(outcome))
	default:
		utils.RespondJSON(w, http.StatusOK, newOutcomeResponse(outcome))
	}
}

func (h *Handler) respondAcquireError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrIdentityRequired):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chatService.ErrTranscriptNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Msg("open conversation failed")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
	}
}
