package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.Rooms.GetFor(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room": room,
		// Whether a connected participant is driving the timer on this node.
		"timer_running": h.Hub.Timers.Running(room.ID),
	})
}

func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Rooms.GetFor(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.Rooms.Messages(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type messageRequest struct {
	Body string `json:"body"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Rooms.SendMessage(c.Request.Context(), c.Param("id"), currentUser(c), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
