package engine

import (
	"context"
	"fmt"
	"time"

	"halcyon-hq/switchboard/pkg/alert"
	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
)

// Transfer and hangup lines spoken when an edge case or transfer rule does
// not author its own, and the downgrade line for unauthorized transfers.
const (
	defaultTransferMessage = "One moment while I transfer you."
	defaultFarewellMessage = "Thanks for calling. Goodbye."
	defaultHandoffMessage  = "Let me take your information and have someone get back to you."
)

// Engine evaluates compiled policies against proposed responses. It is
// stateless across turns and safe for concurrent use.
type Engine struct {
	cfg     *EngineConfig
	logger  *logging.Logger
	metrics *metrics.PolicyMetrics
	alerts  *alert.Dispatcher
}

// New creates a policy engine. metrics and alerts may be nil.
func New(cfg *EngineConfig, logger *logging.Logger, pm *metrics.PolicyMetrics, alerts *alert.Dispatcher) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: pm,
		alerts:  alerts,
	}, nil
}

// Apply runs the four policy stages over one proposed response and returns
// the final turn decision.
//
// Apply is total: it never returns an error and never panics outward. Any
// panic during evaluation is recovered into a degraded result that serves
// the proposed text unmodified, because a policy bug must never take a
// live call down.
func (e *Engine) Apply(ctx context.Context, pol *policy.Policy, proposed, utterance string, info TurnInfo) (result *Result) {
	if pol == nil {
		pol = &policy.Policy{}
	}

	st := &evalState{
		text:   proposed,
		action: ActionRespond,
		start:  time.Now(),
	}
	if e.cfg.EnableTrace {
		st.trace = &Trace{}
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e.logger.ErrorContext(ctx, "policy evaluation panicked, serving response unmodified",
			"tenant_id", pol.TenantID,
			"call_id", info.CallID,
			"panic", fmt.Sprint(r))
		if e.metrics != nil {
			e.metrics.RecordDegraded(pol.TenantID)
		}
		result = &Result{
			ResponseText:   proposed,
			Action:         ActionRespond,
			Degraded:       true,
			EvaluationTime: time.Since(st.start),
		}
	}()

	if !pol.Empty() {
		e.applyEdgeCases(pol, utterance, info, st)
		if !st.stopped {
			e.applyTransfers(ctx, pol, utterance, info, st)
		}
		if !st.stopped {
			e.applyGuardrails(pol, st)
		}
		if !st.stopped {
			e.applyBehavior(pol, info, st)
		}
	}

	return e.finish(ctx, pol, info, st)
}

// finish assembles the result and applies the advisory budget checks.
func (e *Engine) finish(ctx context.Context, pol *policy.Policy, info TurnInfo, st *evalState) *Result {
	elapsed := time.Since(st.start)

	res := &Result{
		ResponseText:   st.text,
		Action:         st.action,
		TransferTarget: st.target,
		Flags:          st.flags,
		Applied:        st.applied,
		EvaluationTime: elapsed,
		Trace:          st.trace,
	}
	if res.Trace != nil {
		res.Trace.TotalTime = elapsed
	}

	if elapsed > e.cfg.Budget {
		e.logger.WarnContext(ctx, "policy evaluation exceeded budget",
			"tenant_id", pol.TenantID,
			"call_id", info.CallID,
			"elapsed_ms", elapsed.Milliseconds(),
			"budget_ms", e.cfg.Budget.Milliseconds())
		if e.metrics != nil {
			e.metrics.RecordBudgetOverrun(pol.TenantID)
		}

		alertThreshold := time.Duration(float64(e.cfg.Budget) * e.cfg.BudgetAlertMultiplier)
		if elapsed > alertThreshold {
			e.alerts.Dispatch(ctx, alert.Alert{
				Severity:  alert.SeverityCritical,
				Component: "policy_engine",
				Message:   "policy evaluation far over budget",
				Fields: map[string]any{
					"tenant_id":  pol.TenantID,
					"call_id":    info.CallID,
					"elapsed_ms": elapsed.Milliseconds(),
					"budget_ms":  e.cfg.Budget.Milliseconds(),
				},
			})
		}
	}

	if e.metrics != nil {
		e.metrics.RecordApply(pol.TenantID, string(res.Action), elapsed)
	}

	return res
}
