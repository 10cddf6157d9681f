package handler

import (
	"net/http"

	"matchroom/backend/internal/models"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListRequests(c *gin.Context) {
	entries, err := h.Ledger.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": entries})
}

func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.Ledger.Status(c.Request.Context(), currentUser(c), c.Param("target"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// Interact runs the request state machine against :target. Once matched it
// also returns the pair's room, creating it on first use.
func (h *Handler) Interact(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.Ledger.Interact(ctx, currentUser(c), c.Param("target"))
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{"status": res.Status}
	if res.RoomID != "" {
		room, _, err := h.Rooms.GetOrCreateByID(ctx, res.RoomID)
		if err != nil {
			respondError(c, err)
			return
		}
		body["room"] = room
		body["room_id"] = room.ID
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) CancelRequest(c *gin.Context) {
	if err := h.Ledger.Cancel(c.Request.Context(), currentUser(c), c.Param("target")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.StatusAbsent})
}
