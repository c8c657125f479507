package rule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, a Action)
		wantErr bool
	}{
		{
			name:  "webhook with full config",
			input: `{"type":"webhook","url":"https://example.com/hook","method":"PUT","headers":{"X-Token":"abc"},"payload":{"name":"{{record.fields.name}}"},"timeout_ms":5000}`,
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Webhook)
				assert.Equal(t, "https://example.com/hook", a.Webhook.URL)
				assert.Equal(t, "PUT", a.Webhook.Method)
				assert.Equal(t, "abc", a.Webhook.Headers["X-Token"])
				assert.Equal(t, 5000, a.Webhook.TimeoutMS)
			},
		},
		{
			name:  "notify",
			input: `{"type":"notify","message":"deal closed","level":"warning","channels":["ui","email"]}`,
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Notify)
				assert.Equal(t, "deal closed", a.Notify.Message)
				assert.Equal(t, LevelWarning, a.Notify.Level)
				assert.Equal(t, []string{"ui", "email"}, a.Notify.Channels)
			},
		},
		{
			name:  "tag",
			input: `{"type":"tag","field":"labels","value":"vip","operation":"add"}`,
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Tag)
				assert.Equal(t, "labels", a.Tag.Field)
				assert.Equal(t, "vip", a.Tag.Value)
				assert.Equal(t, TagAdd, a.Tag.Operation)
			},
		},
		{
			name:  "rate",
			input: `{"type":"rate","field":"priority","value":4}`,
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Rate)
				assert.Equal(t, "priority", a.Rate.Field)
				assert.Equal(t, 4, a.Rate.Value)
			},
		},
		{
			name:  "slack",
			input: `{"type":"slack","webhook_url":"https://hooks.slack.com/T1","channel":"#sales","message":"hi","username":"bot","icon_emoji":":tada:"}`,
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Slack)
				assert.Equal(t, "#sales", a.Slack.Channel)
				assert.Equal(t, ":tada:", a.Slack.IconEmoji)
			},
		},
		{
			name:    "unknown type",
			input:   `{"type":"email"}`,
			wantErr: true,
		},
		{
			name:    "rate with string value",
			input:   `{"type":"rate","field":"priority","value":"high"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Action
			err := json.Unmarshal([]byte(tt.input), &a)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, a)
		})
	}
}

func TestActionMarshalRoundTrip(t *testing.T) {
	original := Action{
		Type: ActionWebhook,
		Webhook: &WebhookConfig{
			URL:       "https://example.com/hook",
			Method:    "POST",
			TimeoutMS: 10000,
			Payload:   map[string]any{"id": "{{record.id}}"},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"webhook","url":"https://example.com/hook","method":"POST","timeout_ms":10000,"payload":{"id":"{{record.id}}"}}`, string(data))

	var decoded Action
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestActionApplyDefaults(t *testing.T) {
	t.Run("webhook defaults and clamping", func(t *testing.T) {
		a := Action{Type: ActionWebhook, Webhook: &WebhookConfig{URL: "https://x.test"}}
		a.ApplyDefaults()
		assert.Equal(t, "POST", a.Webhook.Method)
		assert.Equal(t, WebhookTimeoutDefault, a.Webhook.TimeoutMS)

		low := Action{Type: ActionWebhook, Webhook: &WebhookConfig{URL: "https://x.test", TimeoutMS: 50}}
		low.ApplyDefaults()
		assert.Equal(t, WebhookTimeoutMin, low.Webhook.TimeoutMS)

		high := Action{Type: ActionWebhook, Webhook: &WebhookConfig{URL: "https://x.test", TimeoutMS: 90000}}
		high.ApplyDefaults()
		assert.Equal(t, WebhookTimeoutMax, high.Webhook.TimeoutMS)
	})

	t.Run("notify defaults", func(t *testing.T) {
		a := Action{Type: ActionNotify, Notify: &NotifyConfig{Message: "m"}}
		a.ApplyDefaults()
		assert.Equal(t, LevelInfo, a.Notify.Level)
		assert.Equal(t, []string{ChannelUI}, a.Notify.Channels)
	})

	t.Run("tag default operation", func(t *testing.T) {
		a := Action{Type: ActionTag, Tag: &TagConfig{Field: "labels", Value: "vip"}}
		a.ApplyDefaults()
		assert.Equal(t, TagSet, a.Tag.Operation)
	})
}

func TestActionValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr string
	}{
		{
			name: "valid webhook",
			action: Action{Type: ActionWebhook, Webhook: &WebhookConfig{
				URL: "https://x.test", Method: "POST", TimeoutMS: 10000,
			}},
		},
		{
			name:    "webhook missing url",
			action:  Action{Type: ActionWebhook, Webhook: &WebhookConfig{Method: "POST", TimeoutMS: 10000}},
			wantErr: "requires url",
		},
		{
			name: "webhook bad method",
			action: Action{Type: ActionWebhook, Webhook: &WebhookConfig{
				URL: "https://x.test", Method: "FETCH", TimeoutMS: 10000,
			}},
			wantErr: "invalid method",
		},
		{
			name:    "notify empty message",
			action:  Action{Type: ActionNotify, Notify: &NotifyConfig{Level: LevelInfo, Channels: []string{ChannelUI}}},
			wantErr: "requires message",
		},
		{
			name:    "notify bad channel",
			action:  Action{Type: ActionNotify, Notify: &NotifyConfig{Message: "m", Level: LevelInfo, Channels: []string{"pager"}}},
			wantErr: "invalid channel",
		},
		{
			name:    "rate out of range",
			action:  Action{Type: ActionRate, Rate: &RateConfig{Field: "priority", Value: 6}},
			wantErr: "outside 1-5",
		},
		{
			name:    "tag bad operation",
			action:  Action{Type: ActionTag, Tag: &TagConfig{Field: "labels", Value: "vip", Operation: "toggle"}},
			wantErr: "invalid operation",
		},
		{
			name:    "slack missing webhook url",
			action:  Action{Type: ActionSlack, Slack: &SlackConfig{Message: "m"}},
			wantErr: "requires webhook_url",
		},
		{
			name:    "unknown type",
			action:  Action{Type: "email"},
			wantErr: "unknown action type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
