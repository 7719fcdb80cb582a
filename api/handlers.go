package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"leadflow/notify"
	"leadflow/provider"
)

// Triggerer runs the notification engine for one provider.
type Triggerer interface {
	Trigger(ctx context.Context, p notify.TriggerParams) (notify.Result, error)
}

// Handler exposes the notification engine over HTTP.
type Handler struct {
	runner Triggerer
	log    zerolog.Logger
}

func NewHandler(runner Triggerer, log zerolog.Logger) *Handler {
	return &Handler{runner: runner, log: log}
}

type triggerRequest struct {
	ProviderSlug string `json:"provider_slug"`
	Kind         string `json:"kind"`
	Mode         string `json:"mode"`
	TestLeadID   string `json:"test_lead_id"`
	Lang         string `json:"lang"`
}

// Trigger handles POST /v1/notifications/trigger. Gated runs and config
// failures come back as 200 with a structured reason; only bad requests
// and unknown providers map to error statuses.
func (h *Handler) Trigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.runner.Trigger(c.Request.Context(), notify.TriggerParams{
		ProviderSlug: req.ProviderSlug,
		Kind:         notify.Kind(req.Kind),
		Mode:         notify.Mode(req.Mode),
		TestLeadID:   req.TestLeadID,
		Lang:         req.Lang,
	})
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provider.ErrUnknownProvider):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		default:
			h.log.Error().Err(err).Str("provider_slug", req.ProviderSlug).Msg("trigger failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// Help handles GET /v1/notifications/help.
func (h *Handler) Help(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"kinds": gin.H{
			string(notify.KindReminder):     "upcoming-slot reminders within the provider's window",
			string(notify.KindReactivation): "win-back messages for lapsed, cooled-off leads",
		},
		"modes": gin.H{
			string(notify.ModeNormal): "full admission pipeline",
			string(notify.ModeTest):   "one synthetic send for test_lead_id, bypassing quiet hours and cap",
		},
		"reasons": []string{
			notify.ReasonQuietHours,
			notify.ReasonCapExhausted,
			notify.ReasonConfigUnavailable,
			notify.ReasonRunInProgress,
			notify.ReasonReadFailure,
		},
	})
}
