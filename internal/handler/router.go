package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/gemchat/backend/internal/handler/auth"
	"github.com/zhouzirui/gemchat/backend/internal/handler/chat"
	"github.com/zhouzirui/gemchat/backend/internal/handler/conversation"
	"github.com/zhouzirui/gemchat/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/gemchat/backend/internal/middleware"
	authService "github.com/zhouzirui/gemchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	conversationService "github.com/zhouzirui/gemchat/backend/internal/service/conversation"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(provider *authService.Provider, chatSvc *chatService.Service, registry *conversationService.Registry) http.Handler {
	r := chi.NewRouter()

	accessLog := logging.Component("http")
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.AccessLog(&accessLog))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	authn := middlewarePkg.Authenticate(provider)
	authHandler := auth.New(provider)
	chatHandler := chat.New(chatSvc)
	conversationHandler := conversation.New(registry)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth)

		authHandler.RegisterRoutes(api, authn)

		api.Group(func(protected chi.Router) {
			protected.Use(authn)
			chatHandler.RegisterRoutes(protected)
			conversationHandler.RegisterRoutes(protected)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gemchat"})
}
