package turn

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"halcyon-hq/switchboard/pkg/completion"
	"halcyon-hq/switchboard/pkg/policy/engine"
	"halcyon-hq/switchboard/pkg/session"
	"halcyon-hq/switchboard/pkg/triage"
)

// Built-in lines for turns no tenant content covers.
const (
	takeMessageResponse = "I can take a message for the team. Could I get your name, a callback number, and what this is regarding?"
	genericResponse     = "Thanks for calling. Could you tell me a bit more about what you need so I can point you the right way?"
)

// silenceStage runs the consecutive-silence ladder. Any caller speech this
// turn resets it, including barge-in fragments and fragments queued from
// earlier turns, which the normalize stage promotes to input.
type silenceStage struct{ o *Orchestrator }

func (s *silenceStage) Name() string { return StageSilence }

func (s *silenceStage) Run(ctx context.Context, tc *Context) (Update, error) {
	if strings.TrimSpace(tc.Input) != "" || tc.Interruption != "" || len(tc.Session.QueuedInterruptions) > 0 {
		s.o.deps.Machine.RecordSpeech(tc.Session)
		return Update{}, nil
	}

	out := s.o.deps.Machine.HandleSilence(tc.Session)
	if out.Decision == session.DecisionHangup {
		return Update{
			Final:        out.Response,
			Action:       ActionHangup,
			ShortCircuit: true,
			Audit:        []string{"silence:hangup"},
		}, nil
	}
	return Update{
		Final:        out.Response,
		ShortCircuit: true,
		Audit:        []string{fmt.Sprintf("silence:prompt_%d", tc.Session.SilentTurns)},
	}, nil
}

// interruptionStage classifies caller speech captured while the agent was
// talking. Urgent fragments take over the turn and stop the agent's speech
// in flight; ordinary fragments queue behind an acknowledgment; noise is
// discarded.
type interruptionStage struct{ o *Orchestrator }

func (s *interruptionStage) Name() string { return StageInterruption }

func (s *interruptionStage) Run(ctx context.Context, tc *Context) (Update, error) {
	if tc.Interruption == "" {
		return Update{}, nil
	}

	intr := s.o.deps.Machine.ClassifyInterruption(tc.Interruption)
	if s.o.deps.Metrics != nil {
		s.o.deps.Metrics.RecordInterruption(tc.TenantID, string(intr.Kind))
	}

	switch intr.Kind {
	case session.InterruptionUrgent:
		return Update{
			CleanedInput: intr.Fragment,
			Audit:        []string{"interruption:urgent"},
			Effects:      []SideEffect{{Kind: EffectSuppressOutput}},
		}, nil
	case session.InterruptionQueued:
		tc.Session.QueueInterruption(intr.Fragment)
		return Update{
			Final:        intr.Acknowledgment,
			ShortCircuit: true,
			Audit:        []string{"interruption:queued"},
		}, nil
	default:
		return Update{Audit: []string{"interruption:ignored"}}, nil
	}
}

// normalizeStage produces the cleaned input later stages operate on. A turn
// with no utterance of its own drains fragments queued by earlier barge-ins
// and answers them instead.
type normalizeStage struct{ o *Orchestrator }

func (s *normalizeStage) Name() string { return StageNormalize }

func (s *normalizeStage) Run(ctx context.Context, tc *Context) (Update, error) {
	upd := Update{}

	input := tc.Input
	if strings.TrimSpace(input) == "" {
		if frags := tc.Session.DrainInterruptions(); len(frags) > 0 {
			input = strings.Join(frags, " ")
			upd.Audit = append(upd.Audit, "input:dequeued")
		}
	}

	upd.CleanedInput = triage.NormalizeText(input)
	return upd, nil
}

// classifyStage resolves the turn's input to a service category. Authored
// rules win over the model classifier; when neither understands the input,
// the catch-all's action decides between message-taking, escalation, and
// the clarification ladder.
type classifyStage struct{ o *Orchestrator }

func (s *classifyStage) Name() string { return StageClassify }

func (s *classifyStage) Run(ctx context.Context, tc *Context) (Update, error) {
	o := s.o

	set, err := o.deps.Compiler.Compile(ctx, tc.TenantID)
	if err != nil {
		o.deps.Logger.ErrorContext(ctx, "rule compile failed, handing call to a human",
			"tenant_id", tc.TenantID,
			"call_id", tc.CallID,
			"error", err)
		return o.safeDefault(tc.TenantID, "rule_compile_failed"), nil
	}

	var cls *completion.Classification
	if o.deps.Completion != nil && strings.TrimSpace(tc.Input) != "" {
		cls, err = o.deps.Completion.Classify(ctx, completion.ClassifyRequest{
			TenantID:  tc.TenantID,
			Utterance: tc.Input,
		})
		if err != nil {
			cls = nil
			if o.deps.Metrics != nil {
				o.deps.Metrics.RecordClassifyFallback(tc.TenantID)
			}
			o.deps.Logger.WarnContext(ctx, "classifier unavailable, matching on raw input",
				"call_id", tc.CallID,
				"error", err)
		}
	}

	aux := tc.AuxKeywords
	if cls != nil && len(cls.Keywords) > 0 {
		aux = append(slices.Clone(aux), cls.Keywords...)
	}

	match, err := o.deps.Matcher.Match(set, tc.Input, aux)
	if err != nil {
		o.deps.Logger.ErrorContext(ctx, "rule set unusable, handing call to a human",
			"tenant_id", tc.TenantID,
			"call_id", tc.CallID,
			"error", err)
		return o.safeDefault(tc.TenantID, "no_catch_all"), nil
	}

	upd := Update{rules: set}

	if !match.CatchAll {
		o.deps.Machine.RecordUnderstanding(tc.Session, match.Rule.Classification)
		c := &Classification{
			Category:        match.Rule.Classification,
			Action:          match.Rule.Action,
			Source:          string(match.Rule.Source),
			MatchedKeywords: match.MatchedKeywords,
		}
		if cls != nil {
			c.Entities = cls.Entities
		}
		upd.Classification = c
		upd.Audit = append(upd.Audit, "classify:"+c.Source+":"+c.Category)
		if c.Action == triage.ActionEscalate {
			if o.deps.Metrics != nil {
				o.deps.Metrics.RecordEscalation(tc.TenantID, "rule")
			}
			upd.Action = ActionTransfer
			upd.TransferTarget = o.cfg.EscalationTarget
			upd.Audit = append(upd.Audit, "classify:escalate")
		}
		return upd, nil
	}

	// No authored rule matched. A confident classifier intent still counts
	// as understanding the caller.
	if cls != nil && usableIntent(cls, o.cfg.MinClassifierConfidence) {
		o.deps.Machine.RecordUnderstanding(tc.Session, cls.Intent)
		upd.Classification = &Classification{
			Category:   cls.Intent,
			Action:     triage.ActionContinue,
			Source:     "llm",
			Confidence: cls.Confidence,
			Entities:   cls.Entities,
		}
		upd.Audit = append(upd.Audit, "classify:llm:"+cls.Intent)
		if cls.ShortCircuit && cls.Response != "" {
			upd.Proposed = cls.Response
			upd.Audit = append(upd.Audit, "classify:short_circuit")
		}
		return upd, nil
	}

	// Nothing understood the input.
	upd.Classification = &Classification{
		Category: match.Rule.Classification,
		Action:   match.Rule.Action,
		Source:   string(match.Rule.Source),
	}
	switch match.Rule.Action {
	case triage.ActionEscalate:
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordEscalation(tc.TenantID, "rule")
		}
		upd.Action = ActionTransfer
		upd.TransferTarget = o.cfg.EscalationTarget
		upd.Audit = append(upd.Audit, "classify:escalate")
		return upd, nil
	case triage.ActionTakeMessage:
		upd.Audit = append(upd.Audit, "classify:take_message")
		return upd, nil
	}

	out := o.deps.Machine.HandleMisunderstanding(tc.Session)
	if out.Decision == session.DecisionEscalate {
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordEscalation(tc.TenantID, "misunderstanding")
		}
		upd.Final = out.Response
		upd.Action = ActionTransfer
		upd.TransferTarget = o.cfg.EscalationTarget
		upd.ShortCircuit = true
		upd.Audit = append(upd.Audit, "misunderstanding:escalate")
		return upd, nil
	}
	upd.Final = out.Response
	upd.ShortCircuit = true
	upd.Audit = append(upd.Audit, fmt.Sprintf("misunderstanding:prompt_%d", tc.Session.Misunderstandings))
	return upd, nil
}

// usableIntent reports whether a classifier result is trustworthy enough to
// stand in for an authored rule.
func usableIntent(cls *completion.Classification, minConfidence float64) bool {
	return cls.Intent != "" &&
		cls.Intent != triage.ClassificationUnknown &&
		cls.Confidence >= minConfidence
}

// generateStage produces the proposed response: the tenant's response pool
// first, then the model, then a built-in line keyed on the triage action.
type generateStage struct{ o *Orchestrator }

func (s *generateStage) Name() string { return StageGenerate }

func (s *generateStage) Run(ctx context.Context, tc *Context) (Update, error) {
	if tc.Proposed != "" {
		return Update{}, nil
	}
	o := s.o

	category := triage.ClassificationUnknown
	action := triage.ActionContinue
	if tc.Classification != nil {
		if tc.Classification.Category != "" {
			category = tc.Classification.Category
		}
		if tc.Classification.Action != "" {
			action = tc.Classification.Action
		}
	}

	if tc.rules != nil {
		// TurnNumber seeds the rotation so consecutive turns in one call
		// do not repeat the same canned line.
		if text, ok := tc.rules.PoolResponse(category, uint64(tc.TurnNumber-1)); ok {
			return Update{Proposed: text, Audit: []string{"generate:pool"}}, nil
		}
	}

	if o.deps.Completion != nil && strings.TrimSpace(tc.Input) != "" {
		req := completion.GenerateRequest{
			TenantID:  tc.TenantID,
			Utterance: tc.Input,
		}
		if !tc.Classification.Unknown() {
			req.Classification = &completion.Classification{
				Intent:     category,
				Entities:   tc.Classification.Entities,
				Confidence: tc.Classification.Confidence,
			}
		}
		gen, err := o.deps.Completion.Generate(ctx, req)
		if err != nil {
			o.deps.Logger.WarnContext(ctx, "generation failed, using built-in response",
				"call_id", tc.CallID,
				"error", err)
		} else if strings.TrimSpace(gen.Text) != "" {
			return Update{Proposed: gen.Text, Audit: []string{"generate:llm"}}, nil
		}
	}

	line := genericResponse
	switch {
	case tc.Action == ActionTransfer, action == triage.ActionEscalate:
		line = handoffResponse
	case action == triage.ActionTakeMessage:
		line = takeMessageResponse
	}
	return Update{Proposed: line, Audit: []string{"generate:builtin"}}, nil
}

// policyStage runs the tenant's active policy over the proposed response.
// A policy that cannot be loaded fails open: the proposed text is served
// with a marker in the trail, because blocking every call on a policy
// store outage is worse than serving unreviewed text.
type policyStage struct{ o *Orchestrator }

func (s *policyStage) Name() string { return StagePolicy }

func (s *policyStage) Run(ctx context.Context, tc *Context) (Update, error) {
	o := s.o

	pol, err := o.deps.Policies.Active(ctx, tc.TenantID)
	if err != nil {
		o.deps.Logger.ErrorContext(ctx, "policy load failed, serving response unreviewed",
			"tenant_id", tc.TenantID,
			"call_id", tc.CallID,
			"error", err)
		return Update{Final: tc.Proposed, Audit: []string{"policy:load_failed"}}, nil
	}

	res := o.deps.Engine.Apply(ctx, pol, tc.Proposed, tc.Input, engine.TurnInfo{
		CallID:          tc.CallID,
		TurnNumber:      tc.TurnNumber,
		SpamScore:       tc.SpamScore,
		CollectedFields: tc.Session.CollectedFields,
	})

	upd := Update{Final: res.ResponseText, Audit: res.Applied}
	if res.Degraded {
		upd.Audit = append(upd.Audit, "policy:degraded")
	}
	// The engine starts every evaluation at respond, so respond here means
	// it has no opinion and an escalation decided upstream stands.
	if res.Action != engine.ActionRespond {
		upd.Action = Action(res.Action)
		upd.TransferTarget = res.TransferTarget
	}
	for _, flag := range res.Flags {
		tc.Session.AddFlag(flag)
		upd.Effects = append(upd.Effects, SideEffect{Kind: EffectFlagCaller, Detail: flag})
	}
	return upd, nil
}

// finalizeStage persists extracted entities into the call's collected
// fields and guarantees the turn leaves with speakable text.
type finalizeStage struct{ o *Orchestrator }

func (s *finalizeStage) Name() string { return StageFinalize }

func (s *finalizeStage) Run(ctx context.Context, tc *Context) (Update, error) {
	if tc.Classification != nil {
		for name, value := range tc.Classification.Entities {
			tc.Session.SetField(name, value)
		}
	}

	upd := Update{}
	if tc.Final == "" {
		if tc.Proposed != "" {
			upd.Final = tc.Proposed
		} else {
			upd.Final = emptyResponseFallback
			upd.Audit = []string{"finalize:empty_response"}
		}
	}
	return upd, nil
}
