package turn

import "context"

// Stage names accepted in the pipeline configuration.
const (
	StageSilence      = "silence"
	StageInterruption = "interruption"
	StageNormalize    = "normalize"
	StageClassify     = "classify"
	StageGenerate     = "generate"
	StagePolicy       = "policy"
	StageFinalize     = "finalize"
)

// Stage is one step of the turn pipeline. Run receives the accumulated
// turn context and returns a partial update; it must not retain tc past
// the call.
//
// Returning an error marks the stage a no-op for this turn. Stages that
// can fall back to something safer than nothing should do so themselves
// and describe it in the update's audit entries.
type Stage interface {
	// Name is the configuration name of the stage.
	Name() string

	// Run executes the stage against the accumulated turn context.
	Run(ctx context.Context, tc *Context) (Update, error)
}
