// File: internal/notification/webhook.go
package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

const (
	payloadSource  = "pdr-utils"
	payloadVersion = "1.0"

	// EventContractsChanged is sent when a refresh adds or removes contracts
	EventContractsChanged = "contracts_changed"
)

// WebhookSender posts contract change notifications to a webhook
type WebhookSender struct {
	config *config.NotifyConfig
	http   *resty.Client
	logger *logrus.Entry
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      *ContractChange `json:"data"`
	Version   string          `json:"version"`
}

// NewWebhookSender creates a webhook sender
func NewWebhookSender(cfg *config.NotifyConfig) (*WebhookSender, error) {
	if err := ValidateWebhookConfig(cfg); err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "pdr-utils/"+payloadVersion).
		SetHeaders(cfg.Headers)

	return &WebhookSender{
		config: cfg,
		http:   client,
		logger: utils.NewSublogger("webhook-sender").WithField("url", cfg.WebhookURL),
	}, nil
}

// ValidateWebhookConfig fills defaults and rejects an unusable configuration
func ValidateWebhookConfig(cfg *config.NotifyConfig) error {
	if cfg.WebhookURL == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Webhook URL is required", "")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return nil
}

// NotifyContractsChanged posts change, retrying with exponential backoff.
// Client errors (4xx) are not retried.
func (ws *WebhookSender) NotifyContractsChanged(ctx context.Context, change *ContractChange) error {
	payload := &WebhookPayload{
		Event:     EventContractsChanged,
		Timestamp: time.Now().UTC(),
		Source:    payloadSource,
		Data:      change,
		Version:   payloadVersion,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ws.config.RetryDelay
	policy.MaxInterval = 30 * time.Second
	retry := backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(ws.config.RetryAttempts-1)), ctx)

	attempt := 0
	start := time.Now()
	err := backoff.Retry(func() error {
		attempt++
		err := ws.send(ctx, payload)
		if err != nil {
			ws.logger.WithError(err).WithField("attempt", attempt).Warn("Webhook attempt failed")
		}
		return err
	}, retry)

	fields := logrus.Fields{
		"added":       len(change.Added),
		"removed":     len(change.Removed),
		"attempts":    attempt,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		ws.logger.WithFields(fields).WithError(err).Error("Webhook failed")
		return err
	}
	ws.logger.WithFields(fields).Debug("Webhook sent successfully")
	return nil
}

func (ws *WebhookSender) send(ctx context.Context, payload *WebhookPayload) error {
	resp, err := ws.http.R().
		SetContext(ctx).
		SetHeader("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10)).
		SetBody(payload).
		Post(ws.config.WebhookURL)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to send webhook", err.Error())
	}

	if resp.IsSuccess() {
		return nil
	}

	body := resp.String()
	if len(body) > 1024 {
		body = body[:1024]
	}
	appErr := utils.NewAppError(utils.ErrCodeConnection, "Webhook returned non-success status",
		fmt.Sprintf("status: %d, body: %s", resp.StatusCode(), body))
	if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
		return backoff.Permanent(appErr)
	}
	return appErr
}
