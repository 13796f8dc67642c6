package turn

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"halcyon-hq/switchboard/pkg/completion"
	"halcyon-hq/switchboard/pkg/policy"
	"halcyon-hq/switchboard/pkg/policy/engine"
	"halcyon-hq/switchboard/pkg/session"
	"halcyon-hq/switchboard/pkg/store"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
	"halcyon-hq/switchboard/pkg/telemetry/tracing"
	"halcyon-hq/switchboard/pkg/triage"
)

// handoffResponse is spoken when the call is handed to a human, including
// the safe default taken when classification is impossible.
const handoffResponse = "Let me connect you with someone who can help you directly."

// emptyResponseFallback is the absolute last resort when every stage left
// the response blank.
const emptyResponseFallback = "I want to make sure you get the right help. Could you tell me a little more about what you need?"

// defaultStages is the pipeline order used when the configuration does
// not author one.
var defaultStages = []string{
	StageSilence,
	StageInterruption,
	StageNormalize,
	StageClassify,
	StageGenerate,
	StagePolicy,
	StageFinalize,
}

// Config controls the turn pipeline.
type Config struct {
	// Stages is the ordered list of stage names to run. Default: all
	// built-in stages in their natural order.
	Stages []string

	// TenantStages overrides the stage list per tenant. Tenants absent
	// from the map run Stages.
	TenantStages map[string][]string

	// MaxUtteranceLength caps accepted utterance length in bytes; longer
	// input is truncated at a rune boundary. Default: 2048.
	MaxUtteranceLength int

	// EscalationTarget is the transfer destination for hand-offs to a
	// human. Default: "operator".
	EscalationTarget string

	// MinClassifierConfidence is the lowest completion-service confidence
	// accepted as a classification when no authored rule matched.
	// Default: 0.5.
	MinClassifierConfidence float64
}

// AuditRecord is the per-turn decision record handed to the auditor.
type AuditRecord struct {
	// CallID identifies the call.
	CallID string

	// TenantID identifies the tenant.
	TenantID string

	// TurnNumber is 1-based across the call.
	TurnNumber int

	// Input is the cleaned utterance the decision was made on.
	Input string

	// Category is the triage classification, empty if the turn never
	// reached the classify stage.
	Category string

	// Action is the final disposition.
	Action string

	// ResponseText is what was spoken to the caller.
	ResponseText string

	// TransferTarget is set for transfer actions.
	TransferTarget string

	// ShortCircuited reports that a stage stopped the pipeline early.
	ShortCircuited bool

	// Trail is the turn's audit trail: stage decisions, fired guardrails,
	// denied transfers, failure markers.
	Trail []string

	// Duration is the wall time the turn took.
	Duration time.Duration
}

// Auditor receives finished turn records. Implementations must not block;
// the pipeline hands records off on the serving path.
type Auditor interface {
	RecordTurn(ctx context.Context, rec AuditRecord)
}

// Deps are the collaborators the pipeline runs against. Sessions, Machine,
// Compiler, Matcher, Policies, Engine, and Logger are required; the rest
// degrade gracefully when nil.
type Deps struct {
	// Sessions stores per-call state between turns.
	Sessions session.Store

	// Machine implements the misunderstanding, silence, and barge-in
	// ladders.
	Machine *session.Machine

	// Compiler produces the tenant's compiled rule set.
	Compiler *triage.Compiler

	// Matcher evaluates input against the compiled rule set.
	Matcher *triage.Matcher

	// Policies loads the tenant's compiled active policy.
	Policies *policy.Manager

	// Engine applies the policy to a proposed response.
	Engine *engine.Engine

	// Completion classifies input and generates response text. Nil means
	// triage rules and response pools carry every turn.
	Completion completion.Client

	// Archive receives finished-call records. Nil disables archiving.
	Archive store.SessionArchive

	// Auditor receives per-turn decision records. Nil disables auditing.
	Auditor Auditor

	// Logger is required.
	Logger *logging.Logger

	// Metrics instruments the pipeline. Nil disables instrumentation.
	Metrics *metrics.TurnMetrics
}

// Orchestrator runs the turn pipeline. One orchestrator serves all calls
// and tenants; per-call state lives in the session store.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	stages map[string]Stage
}

// New creates an orchestrator, filling zero config fields with defaults.
// Stage names in the configuration are checked here so a typo fails at
// startup, not mid-call.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store is required")
	case deps.Machine == nil:
		return nil, fmt.Errorf("session machine is required")
	case deps.Compiler == nil:
		return nil, fmt.Errorf("rule compiler is required")
	case deps.Matcher == nil:
		return nil, fmt.Errorf("matcher is required")
	case deps.Policies == nil:
		return nil, fmt.Errorf("policy manager is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("policy engine is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	if len(cfg.Stages) == 0 {
		cfg.Stages = append([]string(nil), defaultStages...)
	}
	if cfg.MaxUtteranceLength <= 0 {
		cfg.MaxUtteranceLength = 2048
	}
	if cfg.EscalationTarget == "" {
		cfg.EscalationTarget = "operator"
	}
	if cfg.MinClassifierConfidence <= 0 {
		cfg.MinClassifierConfidence = 0.5
	}

	o := &Orchestrator{cfg: cfg, deps: deps}
	o.stages = map[string]Stage{
		StageSilence:      &silenceStage{o},
		StageInterruption: &interruptionStage{o},
		StageNormalize:    &normalizeStage{o},
		StageClassify:     &classifyStage{o},
		StageGenerate:     &generateStage{o},
		StagePolicy:       &policyStage{o},
		StageFinalize:     &finalizeStage{o},
	}

	for _, name := range cfg.Stages {
		if _, ok := o.stages[name]; !ok {
			return nil, fmt.Errorf("unknown stage %q", name)
		}
	}
	for tenant, stages := range cfg.TenantStages {
		for _, name := range stages {
			if _, ok := o.stages[name]; !ok {
				return nil, fmt.Errorf("unknown stage %q for tenant %q", name, tenant)
			}
		}
	}

	return o, nil
}

// RunTurn processes one caller turn. It returns an error only for invalid
// requests; every runtime failure inside the pipeline resolves to a usable
// response on the returned context instead.
func (o *Orchestrator) RunTurn(ctx context.Context, req Request) (*Context, error) {
	if req.CallID == "" {
		return nil, fmt.Errorf("call id cannot be empty")
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}

	ctx, span := tracing.StartTurn(ctx, req.CallID, req.TenantID)
	defer span.End()

	start := time.Now()
	if o.deps.Metrics != nil {
		o.deps.Metrics.TurnStarted()
	}

	st := o.loadSession(ctx, req)
	st.TurnCount++

	raw, truncated := truncateRunes(req.Utterance, o.cfg.MaxUtteranceLength)
	fragment, _ := truncateRunes(req.Interruption, o.cfg.MaxUtteranceLength)

	tc := &Context{
		CallID:       req.CallID,
		TenantID:     req.TenantID,
		TurnNumber:   st.TurnCount,
		SpamScore:    req.SpamScore,
		RawInput:     raw,
		Interruption: fragment,
		AuxKeywords:  req.AuxKeywords,
		Input:        raw,
		Action:       ActionRespond,
		Session:      st,
	}
	if truncated {
		tc.Audit = append(tc.Audit, "input:truncated")
	}

	for _, name := range o.stagesFor(req.TenantID) {
		s, ok := o.stages[name]
		if !ok {
			// Construction validates the static config; this guards
			// hot-reloaded tenant overrides.
			o.deps.Logger.WarnContext(ctx, "skipping unknown pipeline stage",
				"stage", name,
				"tenant_id", req.TenantID)
			continue
		}
		tc.apply(o.runStage(ctx, s, tc))
		if tc.ShortCircuited {
			o.deps.Logger.DebugContext(ctx, "pipeline short-circuited",
				"stage", name,
				"call_id", tc.CallID)
			break
		}
	}

	o.finish(ctx, tc, start)

	category := ""
	if tc.Classification != nil {
		category = tc.Classification.Category
	}
	tracing.SetTurnResult(span, tc.TurnNumber, string(tc.Action), category, tc.ShortCircuited)

	return tc, nil
}

// runStage executes one stage with panic isolation. A panicking or failing
// stage contributes nothing to the turn.
func (o *Orchestrator) runStage(ctx context.Context, s Stage, tc *Context) (upd Update) {
	ctx, span := tracing.StartStage(ctx, s.Name())
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			upd = Update{}
			if o.deps.Metrics != nil {
				o.deps.Metrics.RecordStagePanic(s.Name())
			}
			o.deps.Logger.ErrorContext(ctx, "pipeline stage panicked, continuing without it",
				"stage", s.Name(),
				"call_id", tc.CallID,
				"panic", fmt.Sprint(r))
			tracing.SetStatus(span, fmt.Errorf("stage panic: %v", r))
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordStage(s.Name(), time.Since(start))
		}
		span.End()
	}()

	u, err := s.Run(ctx, tc)
	if err != nil {
		o.deps.Logger.WarnContext(ctx, "pipeline stage failed, continuing without it",
			"stage", s.Name(),
			"call_id", tc.CallID,
			"error", err)
		tracing.SetStatus(span, err)
		return Update{}
	}
	return u
}

// finish guarantees the response contract, persists or retires the session,
// and hands the turn to the auditor. It runs for every turn, including
// short-circuited ones.
func (o *Orchestrator) finish(ctx context.Context, tc *Context, start time.Time) {
	if tc.Final == "" {
		if tc.Proposed != "" {
			tc.Final = tc.Proposed
		} else {
			tc.Final = emptyResponseFallback
			tc.Audit = append(tc.Audit, "finalize:empty_response")
		}
	}
	if tc.Action == "" {
		tc.Action = ActionRespond
	}
	tc.Session.LastAction = string(tc.Action)

	// The caller hanging up is exactly when end-of-call writes happen, so
	// they must not die with the request context.
	dctx := context.WithoutCancel(ctx)

	if tc.Action == ActionHangup || tc.Action == ActionTransfer {
		o.archiveSession(dctx, tc)
		if err := o.deps.Sessions.Delete(dctx, tc.CallID); err != nil {
			o.deps.Logger.WarnContext(ctx, "session delete failed",
				"call_id", tc.CallID,
				"error", err)
		}
	} else if err := o.deps.Sessions.Save(dctx, tc.Session); err != nil {
		o.deps.Logger.WarnContext(ctx, "turn served but session not persisted",
			"call_id", tc.CallID,
			"error", err)
	}

	if o.deps.Auditor != nil {
		category := ""
		if tc.Classification != nil {
			category = tc.Classification.Category
		}
		o.deps.Auditor.RecordTurn(dctx, AuditRecord{
			CallID:         tc.CallID,
			TenantID:       tc.TenantID,
			TurnNumber:     tc.TurnNumber,
			Input:          tc.Input,
			Category:       category,
			Action:         string(tc.Action),
			ResponseText:   tc.Final,
			TransferTarget: tc.TransferTarget,
			ShortCircuited: tc.ShortCircuited,
			Trail:          tc.Audit,
			Duration:       time.Since(start),
		})
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordTurn(tc.TenantID, string(tc.Action), time.Since(start))
	}

	o.deps.Logger.InfoContext(ctx, "turn complete",
		"call_id", tc.CallID,
		"tenant_id", tc.TenantID,
		"turn", tc.TurnNumber,
		"action", string(tc.Action),
		"short_circuited", tc.ShortCircuited,
		"duration_ms", time.Since(start).Milliseconds())
}

// archiveSession writes the finished call's record. Archive failures are
// logged and dropped; the turn already resolved.
func (o *Orchestrator) archiveSession(ctx context.Context, tc *Context) {
	if o.deps.Archive == nil {
		return
	}
	st := tc.Session
	rec := &store.SessionRecord{
		CallID:             st.CallID,
		TenantID:           st.TenantID,
		Turns:              st.TurnCount,
		Misunderstandings:  st.Misunderstandings,
		FinalAction:        string(tc.Action),
		LastClassification: st.LastClassification,
		CollectedFields:    st.CollectedFields,
		Flags:              st.Flags,
		StartedAt:          st.StartedAt,
		EndedAt:            time.Now().UTC(),
	}
	if err := o.deps.Archive.ArchiveSession(ctx, rec); err != nil {
		o.deps.Logger.WarnContext(ctx, "session archive failed",
			"call_id", tc.CallID,
			"error", err)
	}
}

// loadSession fetches the call's state or starts fresh. A broken session
// store degrades to single-turn state rather than failing the call.
func (o *Orchestrator) loadSession(ctx context.Context, req Request) *session.State {
	st, ok, err := o.deps.Sessions.Load(ctx, req.CallID)
	if err != nil {
		o.deps.Logger.WarnContext(ctx, "session load failed, starting fresh",
			"call_id", req.CallID,
			"error", err)
	}
	if !ok || st == nil {
		return session.NewState(req.CallID, req.TenantID)
	}
	return st
}

// stagesFor returns the stage order for a tenant.
func (o *Orchestrator) stagesFor(tenantID string) []string {
	if stages, ok := o.cfg.TenantStages[tenantID]; ok {
		return stages
	}
	return o.cfg.Stages
}

// safeDefault is the maximally safe disposition: hand the call to a human.
// Used when classification is impossible, never for ordinary mismatches.
func (o *Orchestrator) safeDefault(tenantID, reason string) Update {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordSafeDefault(tenantID)
		o.deps.Metrics.RecordEscalation(tenantID, reason)
	}
	return Update{
		Final:          handoffResponse,
		Action:         ActionTransfer,
		TransferTarget: o.cfg.EscalationTarget,
		ShortCircuit:   true,
		Audit:          []string{"safe_default:" + reason},
	}
}

// truncateRunes caps s at max bytes without splitting a rune.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
