package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mojochat/internal/events"
	"mojochat/internal/models"
	"mojochat/internal/service/assistant"
)

type createReservationRequest struct {
	Details json.RawMessage `json:"details"`
}

type updateReservationRequest struct {
	HasCompletedPayment *bool `json:"hasCompletedPayment"`
}

func (h *Handler) createReservation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	r, err := h.assistant.CreateReservation(c.Request.Context(), userID, req.Details)
	if err != nil {
		h.reservationError(c, "create reservation failed", err)
		return
	}
	h.publish(c, events.ReservationCreated, r)
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) getReservation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	r, err := h.assistant.GetReservation(c.Request.Context(), userID, id)
	if err != nil {
		h.reservationError(c, "get reservation failed", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) updateReservation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	var req updateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.HasCompletedPayment == nil || !*req.HasCompletedPayment {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hasCompletedPayment must be true"})
		return
	}
	r, err := h.assistant.MarkReservationPaid(c.Request.Context(), userID, id)
	if err != nil {
		h.reservationError(c, "update reservation failed", err)
		return
	}
	h.publish(c, events.ReservationPaid, r)
	c.JSON(http.StatusOK, r)
}

// publish never fails the request; the reservation is already stored.
func (h *Handler) publish(c *gin.Context, eventType string, r *models.Reservation) {
	err := h.events.Publish(c.Request.Context(), events.ReservationEvent{
		Type:                eventType,
		ReservationID:       r.ID,
		UserID:              r.UserID,
		HasCompletedPayment: r.HasCompletedPayment,
	})
	if err != nil {
		h.logger.Warn("publish reservation event failed",
			zap.String("event", eventType),
			zap.String("reservation_id", r.ID),
			zap.Error(err),
		)
	}
}

func (h *Handler) reservationError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, assistant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
	case errors.Is(err, assistant.ErrForbidden):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: User does not own this reservation"})
	case errors.Is(err, assistant.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.internalError(c, msg, err)
	}
}
