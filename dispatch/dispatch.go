// Package dispatch executes a matched rule's actions. Actions run strictly
// sequentially in declaration order so log output and record mutations are
// deterministic, and each action is isolated: one failure (or panic) is
// captured in its result and the remaining actions still run.
//
// With simulate set, every branch renders the exact payload or mutation it
// would perform and returns it in the result output without touching the
// network or the record store.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/ruleflow/rule"
)

// RecordStore applies record field mutations for tag and rate actions
type RecordStore interface {
	UpdateRecordField(ctx context.Context, tenantID, recordID, field string, value any) error
}

// Notification is one rendered notify delivery
type Notification struct {
	TenantID string `json:"tenant_id"`
	RecordID string `json:"record_id"`
	RuleID   string `json:"rule_id"`
	Channel  string `json:"channel"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}

// NotificationSink accepts rendered notifications for delivery
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// HTTPDoer is the outbound HTTP surface, satisfied by *http.Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Summary is the outcome of dispatching one rule's action list
type Summary struct {
	Results  []rule.ActionResult
	Executed int
	Failed   int
}

// Dispatcher executes action lists against their side-effect collaborators
type Dispatcher struct {
	client  HTTPDoer
	records RecordStore
	sink    NotificationSink
	logger  *slog.Logger

	// per-tenant outbound webhook throttle
	webhookRate  rate.Limit
	webhookBurst int
	limiterMu    sync.Mutex
	limiters     map[string]*rate.Limiter
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithHTTPClient replaces the outbound HTTP client
func WithHTTPClient(client HTTPDoer) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithWebhookRateLimit sets the per-tenant outbound webhook throttle
func WithWebhookRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		d.webhookRate = rate.Limit(perSecond)
		d.webhookBurst = burst
	}
}

// Dispatcher defaults
const (
	DefaultWebhookRate  = 10.0
	DefaultWebhookBurst = 20

	// actionTimeout bounds every external call that does not carry its own
	// configured timeout: slack posts, sink notifications, record updates.
	actionTimeout = 10 * time.Second
)

// NewDispatcher creates an action dispatcher
func NewDispatcher(records RecordStore, sink NotificationSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:       &http.Client{},
		records:      records,
		sink:         sink,
		logger:       slog.Default().With("component", "action-dispatcher"),
		webhookRate:  rate.Limit(DefaultWebhookRate),
		webhookBurst: DefaultWebhookBurst,
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs every action in order. The summary counts every action as
// executed regardless of outcome; Failed counts the subset that failed.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []rule.Action, evalCtx *rule.Context, simulate bool) Summary {
	summary := Summary{Results: make([]rule.ActionResult, 0, len(actions))}
	ctxMap := evalCtx.Map()

	for i := range actions {
		result := d.dispatchOne(ctx, &actions[i], evalCtx, ctxMap, simulate)
		summary.Executed++
		if !result.Success {
			summary.Failed++
			d.logger.Warn("action failed",
				"action_type", result.ActionType,
				"rule_id", ruleID(evalCtx),
				"error", result.Error)
		}
		summary.Results = append(summary.Results, result)
	}

	return summary
}

// dispatchOne executes a single action with panic isolation
func (d *Dispatcher) dispatchOne(ctx context.Context, action *rule.Action, evalCtx *rule.Context, ctxMap map[string]any, simulate bool) (result rule.ActionResult) {
	start := time.Now()
	result = rule.ActionResult{ActionType: action.Type}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("action panicked: %v", r)
		}
		result.DurationMS = time.Since(start).Milliseconds()
	}()

	action.ApplyDefaults()

	var (
		output map[string]any
		err    error
	)
	switch action.Type {
	case rule.ActionWebhook:
		output, err = d.execWebhook(ctx, action.Webhook, evalCtx, ctxMap, simulate)
	case rule.ActionSlack:
		output, err = d.execSlack(ctx, action.Slack, ctxMap, simulate)
	case rule.ActionNotify:
		output, err = d.execNotify(ctx, action.Notify, evalCtx, ctxMap, simulate)
	case rule.ActionTag:
		output, err = d.execTag(ctx, action.Tag, evalCtx, simulate)
	case rule.ActionRate:
		output, err = d.execRate(ctx, action.Rate, evalCtx, simulate)
	default:
		err = fmt.Errorf("unknown action type: %q", action.Type)
	}

	result.Output = output
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// tenantLimiter returns the webhook limiter for a tenant, creating it on
// first use
func (d *Dispatcher) tenantLimiter(tenantID string) *rate.Limiter {
	d.limiterMu.Lock()
	defer d.limiterMu.Unlock()
	l, ok := d.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(d.webhookRate, d.webhookBurst)
		d.limiters[tenantID] = l
	}
	return l
}

func ruleID(evalCtx *rule.Context) string {
	if evalCtx.Rule != nil {
		return evalCtx.Rule.ID
	}
	return ""
}

func tenantID(evalCtx *rule.Context) string {
	if evalCtx.Tenant != nil {
		return evalCtx.Tenant.ID
	}
	return ""
}

func recordID(evalCtx *rule.Context) string {
	if evalCtx.Record != nil {
		return evalCtx.Record.ID
	}
	return ""
}
