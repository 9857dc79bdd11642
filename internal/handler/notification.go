package handler

import (
	"net/http"
	"strconv"
	"strings"

	"quotewatch/internal/domain"

	"github.com/gin-gonic/gin"
)

// ListNotifications godoc
// @Summary      List the caller's notifications
// @Tags         notifications
// @Produce      json
// @Param        X-Owner-ID  header  string  true   "Caller identity"
// @Param        unread      query   bool    false  "Only unread notifications"
// @Param        limit       query   int     false  "Number of notifications (default 50, max 200)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-notifications")
	defer span.End()

	filter := domain.NotificationFilter{
		OwnerID:    owner,
		UnreadOnly: strings.EqualFold(strings.TrimSpace(c.Query("unread")), "true"),
	}
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		filter.Limit = n
	}

	notifications, err := h.notificationService.List(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkNotificationRead godoc
// @Summary      Mark a notification as read
// @Tags         notifications
// @Produce      json
// @Param        X-Owner-ID  header  string  true  "Caller identity"
// @Param        id          path    int     true  "Notification ID"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/notifications/{id}/read [post]
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.mark-notification-read")
	defer span.End()

	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}

	if err := h.notificationService.MarkRead(ctx, id, owner); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// GetPreferences godoc
// @Summary      Get the caller's notification preferences
// @Tags         preferences
// @Produce      json
// @Param        X-Owner-ID  header  string  true  "Caller identity"
// @Success      200  {object}  domain.NotificationPreference
// @Router       /api/preferences [get]
func (h *Handler) GetPreferences(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-preferences")
	defer span.End()

	pref, err := h.notificationService.GetPreferences(ctx, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

// UpdatePreferences godoc
// @Summary      Update the caller's notification preferences
// @Tags         preferences
// @Accept       json
// @Produce      json
// @Param        X-Owner-ID   header  string                          true  "Caller identity"
// @Param        preferences  body    domain.NotificationPreference   true  "New preferences"
// @Success      200  {object}  domain.NotificationPreference
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/preferences [put]
func (h *Handler) UpdatePreferences(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.update-preferences")
	defer span.End()

	var pref domain.NotificationPreference
	if err := c.ShouldBindJSON(&pref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	pref.OwnerID = owner

	updated, err := h.notificationService.UpdatePreferences(ctx, &pref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
