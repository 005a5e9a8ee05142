package chat

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/store/transcript"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Handler 聊天列表的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由，r 必须位于 middleware.Authenticate 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats", h.handleList)
	r.Post("/chats", h.handleCreate)
	r.Patch("/chats/{chatID}", h.handleRename)
	r.Get("/chats/{chatID}/messages", h.handleMessages)
}

func owner(r *http.Request) string {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.UID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.chatSvc.List(r.Context(), owner(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	summaries := make([]chat.Summary, 0, len(list))
	for _, t := range list {
		summaries = append(summaries, t.Summary())
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

// handleCreate 创建会话，空请求体创建空白会话，{text, messages} 创建带初始消息的会话
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text     string         `json:"text"`
		Messages []chat.Message `json:"messages"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		created chat.Transcript
		err     error
	)
	if len(payload.Messages) == 0 && payload.Text == "" {
		created, err = h.chatSvc.Create(r.Context(), owner(r))
	} else {
		firstText := payload.Text
		if firstText == "" {
			firstText = payload.Messages[0].Text
		}
		created, err = h.chatSvc.CreateWithMessages(r.Context(), owner(r), firstText, payload.Messages)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	if err := h.chatSvc.Rename(r.Context(), owner(r), chatID, payload.Title); err != nil {
		respondServiceError(w, err)
		return
	}

	t, err := h.chatSvc.Get(r.Context(), owner(r), chatID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, t.Summary())
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.Load(r.Context(), owner(r), chi.URLParam(r, "chatID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrIdentityRequired):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chatService.ErrTitleRequired), errors.Is(err, transcript.ErrInvalidMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrTranscriptNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("chat request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
