package rule

import (
	"encoding/json"
	"fmt"
)

// ActionType discriminates the action union
type ActionType string

// Action types
const (
	ActionWebhook ActionType = "webhook"
	ActionNotify  ActionType = "notify"
	ActionTag     ActionType = "tag"
	ActionRate    ActionType = "rate"
	ActionSlack   ActionType = "slack"
)

// Valid reports whether t is a known action type
func (t ActionType) Valid() bool {
	switch t {
	case ActionWebhook, ActionNotify, ActionTag, ActionRate, ActionSlack:
		return true
	default:
		return false
	}
}

// Notification levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification channels
const (
	ChannelUI    = "ui"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Tag operations
const (
	TagSet    = "set"
	TagAdd    = "add"
	TagRemove = "remove"
)

// Webhook timeout bounds in milliseconds
const (
	WebhookTimeoutMin     = 1000
	WebhookTimeoutMax     = 30000
	WebhookTimeoutDefault = 10000
)

// WebhookConfig configures an outbound HTTP call. Payload string values may
// contain {{dot.path}} placeholders resolved against the evaluation context.
type WebhookConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   map[string]any    `json:"payload,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`
}

// NotifyConfig configures an in-app/email/sms notification. Message is
// template-bearing.
type NotifyConfig struct {
	Message  string   `json:"message"`
	Level    string   `json:"level,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// TagConfig configures a record field mutation with set semantics
type TagConfig struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	Operation string `json:"operation,omitempty"`
}

// RateConfig sets a rating field to a fixed 1-5 value
type RateConfig struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

// SlackConfig configures a Slack incoming-webhook message. Message is
// template-bearing.
type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel,omitempty"`
	Message    string `json:"message"`
	Username   string `json:"username,omitempty"`
	IconEmoji  string `json:"icon_emoji,omitempty"`
}

// Action is a tagged union: Type selects exactly one populated config.
// The dispatcher switches exhaustively on Type, so adding a variant here
// must be matched with a dispatch branch.
type Action struct {
	Type    ActionType
	Webhook *WebhookConfig
	Notify  *NotifyConfig
	Tag     *TagConfig
	Rate    *RateConfig
	Slack   *SlackConfig
}

// actionEnvelope is the flat wire form: {"type": "...", ...config fields}
type actionEnvelope struct {
	Type ActionType `json:"type"`

	// webhook
	URL       string            `json:"url,omitempty"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   map[string]any    `json:"payload,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`

	// notify + slack
	Message  string   `json:"message,omitempty"`
	Level    string   `json:"level,omitempty"`
	Channels []string `json:"channels,omitempty"`

	// tag + rate
	Field     string `json:"field,omitempty"`
	Value     any    `json:"value,omitempty"`
	Operation string `json:"operation,omitempty"`

	// slack
	WebhookURL string `json:"webhook_url,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
	IconEmoji  string `json:"icon_emoji,omitempty"`
}

// UnmarshalJSON decodes the flat wire form into the union
func (a *Action) UnmarshalJSON(data []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	*a = Action{Type: env.Type}
	switch env.Type {
	case ActionWebhook:
		a.Webhook = &WebhookConfig{
			URL:       env.URL,
			Method:    env.Method,
			Headers:   env.Headers,
			Payload:   env.Payload,
			TimeoutMS: env.TimeoutMS,
		}
	case ActionNotify:
		a.Notify = &NotifyConfig{
			Message:  env.Message,
			Level:    env.Level,
			Channels: env.Channels,
		}
	case ActionTag:
		value, _ := env.Value.(string)
		a.Tag = &TagConfig{
			Field:     env.Field,
			Value:     value,
			Operation: env.Operation,
		}
	case ActionRate:
		value, ok := env.Value.(float64)
		if !ok {
			return fmt.Errorf("rate action value must be a number, got %T", env.Value)
		}
		a.Rate = &RateConfig{
			Field: env.Field,
			Value: int(value),
		}
	case ActionSlack:
		a.Slack = &SlackConfig{
			WebhookURL: env.WebhookURL,
			Channel:    env.Channel,
			Message:    env.Message,
			Username:   env.Username,
			IconEmoji:  env.IconEmoji,
		}
	default:
		return fmt.Errorf("unknown action type: %q", env.Type)
	}

	return nil
}

// MarshalJSON encodes the union back into the flat wire form
func (a Action) MarshalJSON() ([]byte, error) {
	env := actionEnvelope{Type: a.Type}

	switch a.Type {
	case ActionWebhook:
		if a.Webhook != nil {
			env.URL = a.Webhook.URL
			env.Method = a.Webhook.Method
			env.Headers = a.Webhook.Headers
			env.Payload = a.Webhook.Payload
			env.TimeoutMS = a.Webhook.TimeoutMS
		}
	case ActionNotify:
		if a.Notify != nil {
			env.Message = a.Notify.Message
			env.Level = a.Notify.Level
			env.Channels = a.Notify.Channels
		}
	case ActionTag:
		if a.Tag != nil {
			env.Field = a.Tag.Field
			env.Value = a.Tag.Value
			env.Operation = a.Tag.Operation
		}
	case ActionRate:
		if a.Rate != nil {
			env.Field = a.Rate.Field
			env.Value = a.Rate.Value
		}
	case ActionSlack:
		if a.Slack != nil {
			env.WebhookURL = a.Slack.WebhookURL
			env.Channel = a.Slack.Channel
			env.Message = a.Slack.Message
			env.Username = a.Slack.Username
			env.IconEmoji = a.Slack.IconEmoji
		}
	default:
		return nil, fmt.Errorf("unknown action type: %q", a.Type)
	}

	return json.Marshal(env)
}

// ApplyDefaults fills optional fields with their documented defaults and
// clamps the webhook timeout into its allowed range.
func (a *Action) ApplyDefaults() {
	switch a.Type {
	case ActionWebhook:
		if a.Webhook == nil {
			return
		}
		if a.Webhook.Method == "" {
			a.Webhook.Method = "POST"
		}
		if a.Webhook.TimeoutMS == 0 {
			a.Webhook.TimeoutMS = WebhookTimeoutDefault
		}
		if a.Webhook.TimeoutMS < WebhookTimeoutMin {
			a.Webhook.TimeoutMS = WebhookTimeoutMin
		}
		if a.Webhook.TimeoutMS > WebhookTimeoutMax {
			a.Webhook.TimeoutMS = WebhookTimeoutMax
		}
	case ActionNotify:
		if a.Notify == nil {
			return
		}
		if a.Notify.Level == "" {
			a.Notify.Level = LevelInfo
		}
		if len(a.Notify.Channels) == 0 {
			a.Notify.Channels = []string{ChannelUI}
		}
	case ActionTag:
		if a.Tag != nil && a.Tag.Operation == "" {
			a.Tag.Operation = TagSet
		}
	case ActionRate, ActionSlack:
		// no defaults
	}
}

// Validate checks the populated variant's configuration. Callers are
// expected to ApplyDefaults first.
func (a *Action) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type: %q", a.Type)
	}

	switch a.Type {
	case ActionWebhook:
		if a.Webhook == nil {
			return fmt.Errorf("webhook action missing configuration")
		}
		if a.Webhook.URL == "" {
			return fmt.Errorf("webhook action requires url")
		}
		switch a.Webhook.Method {
		case "GET", "POST", "PUT", "PATCH", "DELETE":
		default:
			return fmt.Errorf("webhook action has invalid method %q", a.Webhook.Method)
		}
		if a.Webhook.TimeoutMS < WebhookTimeoutMin || a.Webhook.TimeoutMS > WebhookTimeoutMax {
			return fmt.Errorf("webhook timeout_ms %d outside %d-%d",
				a.Webhook.TimeoutMS, WebhookTimeoutMin, WebhookTimeoutMax)
		}
	case ActionNotify:
		if a.Notify == nil {
			return fmt.Errorf("notify action missing configuration")
		}
		if a.Notify.Message == "" {
			return fmt.Errorf("notify action requires message")
		}
		switch a.Notify.Level {
		case LevelInfo, LevelWarning, LevelError:
		default:
			return fmt.Errorf("notify action has invalid level %q", a.Notify.Level)
		}
		for _, ch := range a.Notify.Channels {
			switch ch {
			case ChannelUI, ChannelEmail, ChannelSMS:
			default:
				return fmt.Errorf("notify action has invalid channel %q", ch)
			}
		}
	case ActionTag:
		if a.Tag == nil {
			return fmt.Errorf("tag action missing configuration")
		}
		if a.Tag.Field == "" {
			return fmt.Errorf("tag action requires field")
		}
		if a.Tag.Value == "" {
			return fmt.Errorf("tag action requires value")
		}
		switch a.Tag.Operation {
		case TagSet, TagAdd, TagRemove:
		default:
			return fmt.Errorf("tag action has invalid operation %q", a.Tag.Operation)
		}
	case ActionRate:
		if a.Rate == nil {
			return fmt.Errorf("rate action missing configuration")
		}
		if a.Rate.Field == "" {
			return fmt.Errorf("rate action requires field")
		}
		if a.Rate.Value < 1 || a.Rate.Value > 5 {
			return fmt.Errorf("rate action value %d outside 1-5", a.Rate.Value)
		}
	case ActionSlack:
		if a.Slack == nil {
			return fmt.Errorf("slack action missing configuration")
		}
		if a.Slack.WebhookURL == "" {
			return fmt.Errorf("slack action requires webhook_url")
		}
		if a.Slack.Message == "" {
			return fmt.Errorf("slack action requires message")
		}
	}

	return nil
}
