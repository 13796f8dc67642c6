package engine

import (
	"halcyon-hq/switchboard/pkg/policy"
)

// applyEdgeCases runs the first stage. Edge cases are evaluated in document
// order; the first non-flag-only hit decides the turn and short-circuits
// everything after it. flag_only hits raise their flag and let evaluation
// continue, so one utterance can trip several of them.
func (e *Engine) applyEdgeCases(pol *policy.Policy, utterance string, info TurnInfo, st *evalState) {
	for _, ec := range pol.EdgeCases {
		rule := ec.Rule
		if rule.MinSpamScore > 0 && info.SpamScore < rule.MinSpamScore {
			continue
		}
		if !ec.Pattern.Matches(utterance) {
			continue
		}

		st.apply("edge_case:" + rule.Name)
		st.addTrace("edge_case", rule.Name, "matched "+ec.Pattern.String())
		if rule.FlagCaller {
			st.addFlag(FlagCaller)
		}

		switch rule.Kind {
		case policy.EdgeOverrideResponse:
			st.text = rule.Response
			st.stop()

		case policy.EdgeForceTransfer:
			st.action = ActionTransfer
			st.target = rule.Target
			if rule.Response != "" {
				st.text = rule.Response
			} else {
				st.text = defaultTransferMessage
			}
			st.stop()

		case policy.EdgePoliteHangup:
			st.action = ActionHangup
			if rule.Response != "" {
				st.text = rule.Response
			} else {
				st.text = defaultFarewellMessage
			}
			st.stop()

		case policy.EdgeFlagOnly:
			// Flag raised above; the turn continues.
		}

		if st.stopped {
			return
		}
	}
}
