package queue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/domain"
)

// SignatureHeader carries the QStash HMAC over the delivered request body.
const SignatureHeader = "Upstash-Signature"

// QStashQueue is the HTTP-push backend: Enqueue publishes the job ID to
// the QStash service, which later delivers an HTTP callback to this
// system's webhook ingress. Delivery and retry policy belong to QStash.
type QStashQueue struct {
	client      *resty.Client
	publishURL  string
	destination string
	currentKey  string
	nextKey     string
}

// PushPayload is the body published to QStash and delivered back to the
// webhook ingress.
type PushPayload struct {
	JobID string `json:"job_id"`
}

// NewQStashQueue creates the HTTP-push backend from configuration.
func NewQStashQueue(cfg *config.QStashConfig) (*QStashQueue, error) {
	if cfg.Token == "" || cfg.DestinationURL == "" {
		return nil, fmt.Errorf("qstash backend requires a token and a destination URL")
	}

	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "https://qstash.upstash.io"
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.Token)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(20 * time.Second)

	return &QStashQueue{
		client:      client,
		publishURL:  baseURL + "/v2/publish",
		destination: cfg.DestinationURL,
		currentKey:  cfg.CurrentSigningKey,
		nextKey:     cfg.NextSigningKey,
	}, nil
}

// Enqueue publishes the job ID for later webhook delivery.
func (q *QStashQueue) Enqueue(ctx context.Context, jobID string) error {
	resp, err := q.client.R().
		SetContext(ctx).
		SetHeader("Upstash-Forward-Url", q.destination).
		SetBody(PushPayload{JobID: jobID}).
		Post(q.publishURL)
	if err != nil {
		return fmt.Errorf("failed to publish to qstash: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("qstash publish returned HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// VerifySignature checks the HMAC-SHA256 signature over the raw request
// body against the current signing key and, to support rotation, the next
// signing key. Fail-closed: missing header, missing keys, or a mismatch
// all reject.
func (q *QStashQueue) VerifySignature(header string, body []byte) error {
	return VerifySignature(header, body, q.currentKey, q.nextKey)
}

// VerifySignature is the key-rotation-aware HMAC check used by the
// webhook ingress. Acceptance if the signature matches under either key.
func VerifySignature(header string, body []byte, currentKey, nextKey string) error {
	if header == "" {
		return fmt.Errorf("%w: missing %s header", domain.ErrInvalidSignature, SignatureHeader)
	}

	// Allow either "sha256=<b64>" or a bare base64 digest
	provided := strings.TrimSpace(strings.TrimPrefix(header, "sha256="))

	for _, key := range []string{currentKey, nextKey} {
		if key == "" {
			continue
		}
		if hmac.Equal([]byte(provided), []byte(computeDigest(key, body))) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// computeDigest returns base64(HMAC-SHA256(body)) under key. Keys may be
// base64-encoded or raw secrets.
func computeDigest(key string, body []byte) string {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		keyBytes = []byte(key)
	}
	mac := hmac.New(sha256.New, keyBytes)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Ping verifies the publish endpoint is configured. QStash exposes no
// cheap health check; reachability failures surface on publish.
func (q *QStashQueue) Ping(ctx context.Context) error {
	if q.publishURL == "" || q.destination == "" {
		return fmt.Errorf("qstash backend not configured")
	}
	return nil
}

// Close is a no-op; resty manages its own transport.
func (q *QStashQueue) Close() error { return nil }
