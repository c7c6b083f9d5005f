package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/skylineops/invoice-alerts/internal/core/ports"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/resilience"
)

const (
	defaultTimeout       = 10 * time.Second
	responseTextMaxChars = 500
)

// Client posts fee alerts to a Slack incoming webhook. Every outcome is a
// DeliveryResult; the caller owns state transitions and there is no retry
// here, because a timed-out post may still have been delivered.
type Client struct {
	webhookURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	debug      bool
}

type Options struct {
	Timeout            time.Duration
	RequestsPerSecond  float64
	Burst              int
	ResilienceExecutor *resilience.Executor
	Debug              bool
}

func New(webhookURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := options.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := options.Burst
	if burst <= 0 {
		burst = 3
	}
	return &Client{
		webhookURL: strings.TrimSpace(webhookURL),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		executor:   options.ResilienceExecutor,
		debug:      options.Debug,
	}
}

func (c *Client) Configured() bool {
	return c.webhookURL != ""
}

func (c *Client) PostAlert(ctx context.Context, msg ports.AlertMessage) ports.DeliveryResult {
	return c.post(ctx, renderAlert(msg))
}

func (c *Client) PostTest(ctx context.Context) ports.DeliveryResult {
	return c.post(ctx, map[string]any{
		"text": fmt.Sprintf("✅ invoice-alerts webhook test, %s", time.Now().UTC().Format(time.RFC3339)),
	})
}

func (c *Client) post(ctx context.Context, payload map[string]any) ports.DeliveryResult {
	if !c.Configured() {
		return ports.DeliveryResult{Skipped: true, Reason: "slack webhook not configured"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return ports.DeliveryResult{Error: fmt.Sprintf("rate limit wait: %v", err)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.DeliveryResult{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	var result ports.DeliveryResult
	call := func(ctx context.Context) error {
		result = c.send(ctx, body)
		if !result.OK {
			return fmt.Errorf("slack post failed: status=%d %s", result.StatusCode, result.Error)
		}
		return nil
	}

	if c.executor == nil {
		_ = call(ctx)
		return result
	}

	err = c.executor.Execute(ctx, "slack.post", call, classifyDeliveryError)
	if resilience.IsCircuitOpen(err) {
		return ports.DeliveryResult{Error: "slack circuit open"}
	}
	return result
}

func (c *Client) send(ctx context.Context, body []byte) ports.DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return ports.DeliveryResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.DeliveryResult{Error: fmt.Sprintf("post webhook: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	result := ports.DeliveryResult{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
	}
	if !result.OK {
		result.Error = fmt.Sprintf("webhook returned %d", resp.StatusCode)
	}
	if c.debug || !result.OK {
		text := string(respBody)
		if len(text) > responseTextMaxChars {
			text = text[:responseTextMaxChars]
		}
		result.ResponseText = text
	}
	return result
}

// classifyDeliveryError feeds the breaker without enabling retries: a failed
// post finalizes the alert as error and operators reopen it explicitly.
func classifyDeliveryError(error) resilience.ErrorClassification {
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// renderAlert builds the Block Kit payload: a header, one section with the
// five alert fields, an always-present PDF line ("—" when no signed URL), and
// a context footer. The plain text line doubles as the notification preview.
func renderAlert(msg ports.AlertMessage) map[string]any {
	amountText := "—"
	if msg.FeeAmount > 0 {
		amountText = strings.TrimSpace(fmt.Sprintf("%.2f %s", msg.FeeAmount, msg.Currency))
	}
	feeName := msg.FeeName
	if feeName == "" {
		feeName = "—"
	}

	pdfLine := "—"
	if msg.SignedPDFURL != "" {
		pdfLine = fmt.Sprintf("<%s|Open PDF>", msg.SignedPDFURL)
	}

	return map[string]any{
		"text": fmt.Sprintf("🚨 %s | %s | %s | %s", msg.FeeName, msg.FBO, msg.AirportCode, msg.Tail),
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": "🚨 Fee Alert"},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": "*FBO:*\n" + msg.FBO},
					{"type": "mrkdwn", "text": "*Airport Code:*\n" + msg.AirportCode},
					{"type": "mrkdwn", "text": "*Tail:*\n" + msg.Tail},
					{"type": "mrkdwn", "text": "*Fee name:*\n" + feeName},
					{"type": "mrkdwn", "text": "*Fee amount:*\n" + amountText},
				},
			},
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*PDF:*\n" + pdfLine},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("Rule: `%s` • document_id: `%s`", msg.RuleName, msg.DocumentID)},
				},
			},
		},
	}
}
