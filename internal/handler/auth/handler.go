package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	authService "github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Handler 身份认证的HTTP处理器
type Handler struct {
	provider *authService.Provider
}

// New 创建认证处理器
func New(provider *authService.Provider) *Handler {
	return &Handler{provider: provider}
}

// RegisterRoutes 注册认证路由，需要会话的路由挂在 authn 之后
func (h *Handler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/signup", h.handleSignUp)
		auth.Post("/signin", h.handleSignIn)
		auth.Post("/anonymous", h.handleAnonymous)

		auth.Group(func(session chi.Router) {
			session.Use(authn)
			session.Post("/signout", h.handleSignOut)
			session.Get("/me", h.handleMe)
			session.Get("/events", h.handleEvents)
		})
	})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return credentials{}, false
	}
	if payload.Email == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "email and password are required")
		return credentials{}, false
	}
	return payload, true
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.provider.SignUp(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.provider.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	session, err := h.provider.SignInAnonymously(r.Context())
	if err != nil {
		respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.SignOut(r.Context(), middleware.TokenFrom(r.Context())); err != nil {
		respondAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	utils.RespondJSON(w, http.StatusOK, id)
}

// handleEvents 以SSE推送当前会话的身份变化，直到客户端断开
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	changes, err := h.provider.Subscribe(r.Context(), middleware.TokenFrom(r.Context()))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "identity stream unavailable")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for change := range changes {
		if err := utils.SendSSEEvent(w, flusher, "identity", change); err != nil {
			log.Debug().Err(err).Msg("identity stream closed by client")
			return
		}
	}
}

func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authService.ErrInvalidEmail), errors.Is(err, authService.ErrWeakPassword):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authService.ErrEmailInUse):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authService.ErrUserNotFound), errors.Is(err, authService.ErrWrongPassword):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authService.ErrInvalidToken):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Error().Err(err).Msg("auth request failed")
		utils.RespondError(w, http.StatusInternalServerError, "authentication failed")
	}
}
