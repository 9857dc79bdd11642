package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetQuote godoc
// @Summary      Get the latest market sample for a symbol
// @Tags         quotes
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., PETR4)"
// @Success      200  {object}  domain.MarketSample
// @Failure      502  {object}  map[string]string
// @Router       /api/quotes/{symbol} [get]
func (h *Handler) GetQuote(c *gin.Context) {
	if h.quoteService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quote service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-quote")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	span.SetAttributes(attribute.String("symbol", symbol))

	sample, err := h.quoteService.GetQuote(ctx, symbol)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sample)
}

// TriggerSweep godoc
// @Summary      Run one evaluation sweep over all active rules
// @Tags         sweep
// @Produce      json
// @Success      200  {object}  scanner.SweepStats
// @Failure      503  {object}  map[string]string
// @Router       /api/sweep [post]
func (h *Handler) TriggerSweep(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scanner unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-sweep")
	defer span.End()

	stats, err := h.scanner.SweepAll(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
