package handler

import (
	"errors"
	"net/http"
	"strings"

	"matchroom/backend/internal/models"
	"matchroom/backend/internal/navigation"

	"github.com/gin-gonic/gin"
)

var errInvalidLocation = errors.New("latitude must be within ±90 and longitude within ±180")

// GetSession reports the caller's live websocket session: whether one is
// connected and which screens it has open.
func (h *Handler) GetSession(c *gin.Context) {
	userID := currentUser(c)
	routes := h.Hub.Routes(userID)
	if routes == nil {
		routes = []navigation.Route{}
	}
	c.JSON(http.StatusOK, gin.H{
		"connected": h.Hub.IsConnected(userID),
		"routes":    routes,
	})
}

func (h *Handler) ListCandidates(c *gin.Context) {
	shuffle := c.Query("shuffle") == "true" || c.Query("shuffle") == "1"
	users, err := h.Matcher.Candidates(c.Request.Context(), currentUser(c), c.Query("q"), shuffle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": users})
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	var prefs models.MatchingPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if prefs.MaxSearchDistance < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_search_distance must not be negative"})
		return
	}

	if err := h.Matcher.SavePreferences(c.Request.Context(), currentUser(c), prefs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	var loc models.Coordinates
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		respondError(c, errInvalidLocation)
		return
	}

	if err := h.Users.UpdateLocation(c.Request.Context(), currentUser(c), loc); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bioRequest struct {
	Bio string `json:"bio"`
}

func (h *Handler) UpdateBio(c *gin.Context) {
	var req bioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.Users.GetUserByID(ctx, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	user.Bio = strings.TrimSpace(h.policy.Sanitize(req.Bio))
	if err := h.Users.SaveUser(ctx, user); err != nil {
		respondError(c, err)
		return
	}
	h.Matcher.CacheAccount(ctx, user)
	c.JSON(http.StatusOK, gin.H{"user": user})
}
