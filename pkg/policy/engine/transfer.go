package engine

import (
	"context"

	"halcyon-hq/switchboard/pkg/alert"
	"halcyon-hq/switchboard/pkg/policy"
)

// applyTransfers runs the second stage. Transfer rules are evaluated in
// document order; the first hit decides the turn and short-circuits the
// guardrail and behavior stages, since the announcement is authored
// wording.
//
// A hit whose action tag is not on the policy's allowed list does not
// transfer. The response is downgraded to a generic hand-off line and the
// attempt is recorded as a security violation; the turn itself completes
// normally.
func (e *Engine) applyTransfers(ctx context.Context, pol *policy.Policy, utterance string, info TurnInfo, st *evalState) {
	for _, tr := range pol.Transfers {
		if !tr.Pattern.Matches(utterance) {
			continue
		}

		if !pol.ActionAllowed(tr.Rule.Action) {
			st.text = defaultHandoffMessage
			st.apply("transfer_denied:" + tr.Rule.Name)
			st.addTrace("transfer", tr.Rule.Name, "action "+tr.Rule.Action+" not authorized")
			st.stop()

			e.logger.WarnContext(ctx, "unauthorized transfer attempt downgraded",
				"tenant_id", pol.TenantID,
				"call_id", info.CallID,
				"transfer", tr.Rule.Name,
				"action", tr.Rule.Action,
				"target", tr.Rule.Target)
			if e.metrics != nil {
				e.metrics.RecordTransferDenied(pol.TenantID)
			}
			e.alerts.Dispatch(ctx, alert.Alert{
				Severity:  alert.SeverityWarning,
				Component: "policy_engine",
				Message:   "unauthorized transfer attempt",
				Fields: map[string]any{
					"tenant_id": pol.TenantID,
					"call_id":   info.CallID,
					"transfer":  tr.Rule.Name,
					"action":    tr.Rule.Action,
				},
			})
			return
		}

		st.action = ActionTransfer
		st.target = tr.Rule.Target
		if tr.Rule.Message != "" {
			st.text = tr.Rule.Message
		} else {
			st.text = defaultTransferMessage
		}
		st.apply("transfer:" + tr.Rule.Name)
		st.addTrace("transfer", tr.Rule.Name, "routing to "+tr.Rule.Target)
		st.stop()
		return
	}
}
