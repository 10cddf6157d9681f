package handler

import (
	"errors"
	"net/http"

	"matchroom/backend/internal/chathub"
	"matchroom/backend/internal/chatroom"
	"matchroom/backend/internal/ledger"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

// Handler holds the services behind the HTTP API.
type Handler struct {
	Hub     *chathub.ManagerService
	Ledger  *ledger.Ledger
	Rooms   *chatroom.Registry
	Matcher *chathub.MatcherService
	Users   storage.Directory
	Secret  []byte

	policy *bluemonday.Policy
}

func NewHandler(hub *chathub.ManagerService, users storage.Directory, secret []byte) *Handler {
	return &Handler{
		Hub:     hub,
		Ledger:  hub.Ledger,
		Rooms:   hub.Rooms,
		Matcher: hub.Matcher,
		Users:   users,
		Secret:  secret,
		policy:  bluemonday.StrictPolicy(),
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/api/v1")
	v1.POST("/login", h.Login)

	auth := v1.Group("", h.AuthMiddleware())
	auth.GET("/ws", h.ServeWebSocket)

	auth.GET("/me/session", h.GetSession)
	auth.GET("/candidates", h.ListCandidates)
	auth.PUT("/me/preferences", h.UpdatePreferences)
	auth.PUT("/me/location", h.UpdateLocation)
	auth.PUT("/me/bio", h.UpdateBio)

	auth.GET("/requests", h.ListRequests)
	auth.GET("/requests/:target", h.GetRequest)
	auth.POST("/requests/:target", h.Interact)
	auth.DELETE("/requests/:target", h.CancelRequest)

	auth.GET("/rooms/:id", h.GetRoom)
	auth.GET("/rooms/:id/messages", h.ListMessages)
	auth.POST("/rooms/:id/messages", h.SendMessage)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrSelfRequest),
		errors.Is(err, ledger.ErrInvalidUser),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, chatroom.ErrEmptyMessage),
		errors.Is(err, chatroom.ErrInvalidRoom),
		errors.Is(err, errInvalidLocation):
		return http.StatusBadRequest
	case errors.Is(err, chatroom.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, chatroom.ErrRoomNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInconsistentPair):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.FullPath(), "user_id", currentUser(c), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
