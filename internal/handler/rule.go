package handler

import (
	"net/http"
	"strconv"
	"strings"

	"quotewatch/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// CreateRule godoc
// @Summary      Create an alert rule
// @Description  Registers a condition rule for the caller; new rules start active
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        X-Owner-ID  header  string                    true  "Caller identity"
// @Param        rule        body    service.CreateRuleInput   true  "Rule definition"
// @Success      201  {object}  domain.AlertRule
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.create-rule")
	defer span.End()

	var input service.CreateRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	input.OwnerID = owner
	span.SetAttributes(attribute.String("symbol", input.Symbol))

	rule, err := h.ruleService.Create(ctx, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// ListRules godoc
// @Summary      List the caller's alert rules
// @Tags         rules
// @Produce      json
// @Param        X-Owner-ID  header  string  true  "Caller identity"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-rules")
	defer span.End()

	rules, err := h.ruleService.ListByOwner(ctx, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// GetRule godoc
// @Summary      Get one alert rule
// @Tags         rules
// @Produce      json
// @Param        id  path  int  true  "Rule ID"
// @Success      200  {object}  domain.AlertRule
// @Failure      404  {object}  map[string]string
// @Router       /api/rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-rule")
	defer span.End()

	id, ok := ruleID(c)
	if !ok {
		return
	}
	rule, err := h.ruleService.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ToggleRule godoc
// @Summary      Toggle a rule between active and inactive
// @Description  Triggered rules cannot be toggled; re-arm them instead
// @Tags         rules
// @Produce      json
// @Param        id  path  int  true  "Rule ID"
// @Success      200  {object}  domain.AlertRule
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/rules/{id}/toggle [post]
func (h *Handler) ToggleRule(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.toggle-rule")
	defer span.End()

	id, ok := ruleID(c)
	if !ok {
		return
	}
	rule, err := h.ruleService.Toggle(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// RearmRule godoc
// @Summary      Re-arm a triggered rule
// @Description  Returns a triggered rule to active so it can fire again
// @Tags         rules
// @Produce      json
// @Param        id  path  int  true  "Rule ID"
// @Success      200  {object}  domain.AlertRule
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/rules/{id}/rearm [post]
func (h *Handler) RearmRule(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.rearm-rule")
	defer span.End()

	id, ok := ruleID(c)
	if !ok {
		return
	}
	rule, err := h.ruleService.Rearm(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.scanner != nil {
		h.scanner.Forget(id)
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule godoc
// @Summary      Delete an alert rule
// @Tags         rules
// @Produce      json
// @Param        id  path  int  true  "Rule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  map[string]string
// @Router       /api/rules/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-rule")
	defer span.End()

	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.ruleService.Delete(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	if h.scanner != nil {
		h.scanner.Forget(id)
	}
	c.Status(http.StatusNoContent)
}

func ruleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}
