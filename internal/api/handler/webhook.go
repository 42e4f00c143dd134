package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/logger"
	"github.com/ureshii/partner/internal/queue"
)

// Runner executes one delivery attempt for a job (service.Executor).
type Runner interface {
	Execute(ctx context.Context, jobID string) error
}

// WebhookHandler receives push-delivered execution triggers from the
// HTTP-push queue backend. Verification is fail-closed: no valid
// signature, no execution, no job mutation.
type WebhookHandler struct {
	runner     Runner
	currentKey string
	nextKey    string
}

// NewWebhookHandler creates a webhook handler with the configured signing
// keys (current plus next, for rotation).
func NewWebhookHandler(runner Runner, currentKey, nextKey string) *WebhookHandler {
	return &WebhookHandler{
		runner:     runner,
		currentKey: currentKey,
		nextKey:    nextKey,
	}
}

// HandlePush handles POST /api/v1/webhooks/qstash. A 2xx acknowledges the
// delivery to the push service only after execution returns; a non-2xx
// asks it to redeliver the same callback, which is safe because the
// executor is idempotent per stage.
func (h *WebhookHandler) HandlePush(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if err := queue.VerifySignature(c.GetHeader(queue.SignatureHeader), body, h.currentKey, h.nextKey); err != nil {
		logger.CtxWarn(c.Request.Context(), "Webhook rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload queue.PushPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.JobID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid payload"})
		return
	}

	err = h.runner.Execute(c.Request.Context(), payload.JobID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "job_id": payload.JobID})
	case domain.IsVerdict(err):
		// The job record holds the outcome (including exhausted
		// attempts); acknowledge the delivery.
		c.JSON(http.StatusOK, gin.H{"status": "done", "job_id": payload.JobID})
	default:
		// A retryable attempt or an infrastructure failure that may
		// never have touched the job: let the push service redeliver.
		c.JSON(http.StatusInternalServerError, gin.H{"status": "retry", "job_id": payload.JobID})
	}
}
