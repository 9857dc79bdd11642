package handler

import (
	"errors"
	"net/http"
	"strings"

	"quotewatch/internal/domain"
	"quotewatch/internal/scanner"
	"quotewatch/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// X-Owner-ID identifies the caller; upstream auth is expected to set it.
const ownerHeader = "X-Owner-ID"

type Handler struct {
	tracer              trace.Tracer
	ruleService         *service.RuleService
	quoteService        *service.QuoteService
	notificationService *service.NotificationService
	scanner             *scanner.Scanner
}

func New(
	tracer trace.Tracer,
	ruleService *service.RuleService,
	quoteService *service.QuoteService,
	notificationService *service.NotificationService,
	sc *scanner.Scanner,
) *Handler {
	return &Handler{
		tracer:              tracer,
		ruleService:         ruleService,
		quoteService:        quoteService,
		notificationService: notificationService,
		scanner:             sc,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/quotes/:symbol", h.GetQuote)
	r.POST("/api/rules", h.CreateRule)
	r.GET("/api/rules", h.ListRules)
	r.GET("/api/rules/:id", h.GetRule)
	r.POST("/api/rules/:id/toggle", h.ToggleRule)
	r.POST("/api/rules/:id/rearm", h.RearmRule)
	r.DELETE("/api/rules/:id", h.DeleteRule)
	r.GET("/api/notifications", h.ListNotifications)
	r.POST("/api/notifications/:id/read", h.MarkNotificationRead)
	r.GET("/api/preferences", h.GetPreferences)
	r.PUT("/api/preferences", h.UpdatePreferences)
	r.POST("/api/sweep", h.TriggerSweep)
}

// Health godoc
// @Summary      Health check
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "violations": verr.Violations})
		return
	}
	var nerr *domain.NotFoundError
	if errors.As(err, &nerr) {
		c.JSON(http.StatusNotFound, gin.H{"error": nerr.Error()})
		return
	}
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": perr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func ownerID(c *gin.Context) (string, bool) {
	owner := strings.TrimSpace(c.GetHeader(ownerHeader))
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + ownerHeader + " header"})
		return "", false
	}
	return owner, true
}
