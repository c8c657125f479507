package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/rule"
	"github.com/c360/ruleflow/template"
)

// execWebhook sends an interpolated payload to the configured URL. The call
// is bounded by the action's timeout_ms and gated by the tenant's rate
// limiter. There is no transport-level retry: a failed call is recorded and
// the rule moves on.
func (d *Dispatcher) execWebhook(ctx context.Context, cfg *rule.WebhookConfig, evalCtx *rule.Context, ctxMap map[string]any, simulate bool) (map[string]any, error) {
	url := template.Interpolate(cfg.URL, ctxMap)
	payload := template.InterpolateValue(cfg.Payload, ctxMap)
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = template.Interpolate(v, ctxMap)
	}

	output := map[string]any{
		"url":     url,
		"method":  cfg.Method,
		"payload": payload,
	}
	if simulate {
		output["simulated"] = true
		return output, nil
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return output, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	if err := d.tenantLimiter(tenantID(evalCtx)).Wait(callCtx); err != nil {
		return output, fmt.Errorf("webhook rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, cfg.Method, url, body)
	if err != nil {
		return output, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return output, fmt.Errorf("webhook call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	output["status_code"] = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return output, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return output, nil
}

// execSlack posts an incoming-webhook message with a fixed timeout
func (d *Dispatcher) execSlack(ctx context.Context, cfg *rule.SlackConfig, ctxMap map[string]any, simulate bool) (map[string]any, error) {
	message := template.Interpolate(cfg.Message, ctxMap)

	payload := map[string]any{"text": message}
	if cfg.Channel != "" {
		payload["channel"] = cfg.Channel
	}
	if cfg.Username != "" {
		payload["username"] = cfg.Username
	}
	if cfg.IconEmoji != "" {
		payload["icon_emoji"] = cfg.IconEmoji
	}

	output := map[string]any{
		"webhook_url": cfg.WebhookURL,
		"payload":     payload,
	}
	if simulate {
		output["simulated"] = true
		return output, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return output, fmt.Errorf("marshal payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return output, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return output, fmt.Errorf("slack call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	output["status_code"] = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return output, fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return output, nil
}

// execNotify hands the rendered message to the sink once per channel
func (d *Dispatcher) execNotify(ctx context.Context, cfg *rule.NotifyConfig, evalCtx *rule.Context, ctxMap map[string]any, simulate bool) (map[string]any, error) {
	message := template.Interpolate(cfg.Message, ctxMap)

	output := map[string]any{
		"message":  message,
		"level":    cfg.Level,
		"channels": cfg.Channels,
	}
	if simulate {
		output["simulated"] = true
		return output, nil
	}

	// Channels are independent: one failing channel never blocks delivery
	// to the rest. Failures are collected and reported together.
	var errs []error
	for _, channel := range cfg.Channels {
		n := Notification{
			TenantID: tenantID(evalCtx),
			RecordID: recordID(evalCtx),
			RuleID:   ruleID(evalCtx),
			Channel:  channel,
			Level:    cfg.Level,
			Message:  message,
		}
		if err := d.notifyChannel(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify channel %s: %w", channel, err))
		}
	}
	return output, errors.Join(errs...)
}

func (d *Dispatcher) notifyChannel(ctx context.Context, n Notification) error {
	callCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	return d.sink.Notify(callCtx, n)
}

// execTag mutates a record field with set semantics. The new value is
// computed from the record snapshot in the evaluation context; per-record
// serialization upstream keeps that snapshot current.
func (d *Dispatcher) execTag(ctx context.Context, cfg *rule.TagConfig, evalCtx *rule.Context, simulate bool) (map[string]any, error) {
	current := evalCtx.Record.Fields[cfg.Field]

	var newValue any
	switch cfg.Operation {
	case rule.TagSet:
		newValue = cfg.Value
	case rule.TagAdd:
		values, _ := field.AsStringSlice(current)
		newValue = addToSet(values, cfg.Value)
	case rule.TagRemove:
		values, _ := field.AsStringSlice(current)
		newValue = removeFromSet(values, cfg.Value)
	default:
		return nil, fmt.Errorf("unknown tag operation %q", cfg.Operation)
	}

	output := map[string]any{
		"field":     cfg.Field,
		"operation": cfg.Operation,
		"value":     newValue,
	}
	if simulate {
		output["simulated"] = true
		return output, nil
	}

	if err := d.updateField(ctx, evalCtx, cfg.Field, newValue); err != nil {
		return output, fmt.Errorf("update record field: %w", err)
	}
	// keep the snapshot current for later actions in this dispatch
	evalCtx.Record.Fields[cfg.Field] = newValue
	return output, nil
}

// execRate sets a rating field, idempotently
func (d *Dispatcher) execRate(ctx context.Context, cfg *rule.RateConfig, evalCtx *rule.Context, simulate bool) (map[string]any, error) {
	output := map[string]any{
		"field": cfg.Field,
		"value": cfg.Value,
	}
	if simulate {
		output["simulated"] = true
		return output, nil
	}

	if err := d.updateField(ctx, evalCtx, cfg.Field, cfg.Value); err != nil {
		return output, fmt.Errorf("update record field: %w", err)
	}
	evalCtx.Record.Fields[cfg.Field] = cfg.Value
	return output, nil
}

// updateField writes one record field through the store with the shared
// action timeout.
func (d *Dispatcher) updateField(ctx context.Context, evalCtx *rule.Context, name string, value any) error {
	callCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	return d.records.UpdateRecordField(callCtx, tenantID(evalCtx), recordID(evalCtx), name, value)
}

// addToSet appends a value only if absent
func addToSet(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

// removeFromSet drops every occurrence of a value
func removeFromSet(values []string, v string) []string {
	out := make([]string, 0, len(values))
	for _, existing := range values {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}
