package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"halcyon-hq/switchboard/pkg/cache"
	"halcyon-hq/switchboard/pkg/cli"
	"halcyon-hq/switchboard/pkg/store"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/triage"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Offline checks for rule fixtures",
	Long: `Work with rule fixtures offline, before they reach the document store.

A rule fixture is a YAML file holding one tenant's manual rules, generated
rules, and response pools. The lint subcommand checks fixtures for the
problems that would make the compiler skip or reject rules; the compile
subcommand runs the real compiler and prints the evaluation order the
matcher would walk.`,
}

var rulesLintFlags struct {
	file   string
	dir    string
	strict bool
	format string
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate rule fixtures",
	Long: `Validate rule fixtures for the problems the compiler would reject.

Checks mirror compilation: every rule needs an ID, a classification, and
at least one required keyword; priorities must not be negative; actions
must be known; keyword counts must stay under the per-rule cap. Warnings
cover rules that compile but probably do not do what the author meant,
like inactive generated rules or pools no rule classification references.

Examples:
  # Lint a single fixture
  switchboard rules lint --file rules.yaml

  # Lint a directory of fixtures
  switchboard rules lint --dir fixtures/

  # Strict mode for CI (warnings fail the build)
  switchboard rules lint --file rules.yaml --strict --format json`,
	RunE: lintRules,
}

var rulesCompileFlags struct {
	file   string
	format string
}

var rulesCompileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a rule fixture and print the evaluation order",
	Long: `Compile a rule fixture with the real rule compiler.

The fixture is loaded into an in-memory store and compiled exactly the way
the server compiles tenant rules: invalid rules are skipped, inactive
generated rules are filtered, the catch-all is appended, and the set is
sorted by priority, source rank, and recency. The output is the order the
matcher walks on every turn, which is the fastest way to answer "why did
rule X not fire".

Examples:
  # Show the evaluation order
  switchboard rules compile --file rules.yaml

  # Full compiled set as JSON
  switchboard rules compile --file rules.yaml --format json`,
	RunE: compileRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd)
	rulesCmd.AddCommand(rulesCompileCmd)

	rulesLintCmd.Flags().StringVarP(&rulesLintFlags.file, "file", "f", "", "rule fixture to validate")
	rulesLintCmd.Flags().StringVarP(&rulesLintFlags.dir, "dir", "d", "", "directory of rule fixtures")
	rulesLintCmd.Flags().BoolVar(&rulesLintFlags.strict, "strict", false, "treat warnings as errors")
	rulesLintCmd.Flags().StringVar(&rulesLintFlags.format, "format", "text", "output format: text, json")

	rulesCompileCmd.Flags().StringVarP(&rulesCompileFlags.file, "file", "f", "", "rule fixture to compile")
	rulesCompileCmd.Flags().StringVar(&rulesCompileFlags.format, "format", "text", "output format: text, json")
}

// ruleFixture is the YAML form of one tenant's rule documents. The triage
// types carry JSON tags for the store and cache, so the fixture keeps its
// own YAML-tagged mirror.
type ruleFixture struct {
	TenantID       string              `yaml:"tenant_id"`
	ManualRules    []fixtureRule       `yaml:"manual_rules"`
	GeneratedRules []fixtureRule       `yaml:"generated_rules"`
	ResponsePools  map[string][]string `yaml:"response_pools"`
}

// fixtureRule covers both manual and generated rules; confidence and
// active only apply to generated ones.
type fixtureRule struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	RequiredKeywords []string `yaml:"required_keywords"`
	ExcludedKeywords []string `yaml:"excluded_keywords"`
	Classification   string   `yaml:"classification"`
	Action           string   `yaml:"action"`
	Priority         int      `yaml:"priority"`
	Rationale        string   `yaml:"rationale"`
	Confidence       float64  `yaml:"confidence"`
	Active           bool     `yaml:"active"`
}

// loadRuleFixture reads and parses one fixture file.
func loadRuleFixture(path string) (*ruleFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx ruleFixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &fx, nil
}

// knownRuleActions are the dispositions a matched rule may instruct.
var knownRuleActions = map[string]bool{
	triage.ActionContinue:            true,
	triage.ActionForwardToClassifier: true,
	triage.ActionTakeMessage:         true,
	triage.ActionEscalate:            true,
}

// maxFixtureKeywords mirrors the compiler's default per-rule keyword cap.
const maxFixtureKeywords = 32

// LintResult is the validation outcome for one fixture file.
type LintResult struct {
	File     string      `json:"file"`
	Valid    bool        `json:"valid"`
	Errors   []LintIssue `json:"errors,omitempty"`
	Warnings []LintIssue `json:"warnings,omitempty"`
}

// LintIssue is a single problem found in a fixture.
type LintIssue struct {
	Rule     string `json:"rule,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func lintRules(cmd *cobra.Command, args []string) error {
	files, err := collectFixtureFiles(rulesLintFlags.file, rulesLintFlags.dir)
	if err != nil {
		return err
	}

	results := make([]LintResult, 0, len(files))
	for _, file := range files {
		results = append(results, lintFixtureFile(file))
	}

	if rulesLintFlags.format == "json" {
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, results); err != nil {
			return err
		}
	} else {
		printLintResults(results)
	}

	totalErrors, totalWarnings := 0, 0
	for _, r := range results {
		totalErrors += len(r.Errors)
		totalWarnings += len(r.Warnings)
	}
	if totalErrors > 0 || (rulesLintFlags.strict && totalWarnings > 0) {
		return cli.NewCommandError("rules lint", fmt.Errorf("validation failed"))
	}
	return nil
}

// collectFixtureFiles resolves the --file and --dir flags into a file list.
func collectFixtureFiles(file, dir string) ([]string, error) {
	if file == "" && dir == "" {
		return nil, fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if file != "" {
		files = append(files, file)
	}
	if dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("list rule fixtures: %w", err)
			}
			files = append(files, matches...)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no rule fixtures found")
	}
	return files, nil
}

// lintFixtureFile checks one fixture for compile-blocking problems and
// likely mistakes.
func lintFixtureFile(path string) LintResult {
	result := LintResult{File: path, Valid: true}

	addError := func(rule, msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, LintIssue{Rule: rule, Message: msg, Severity: "error"})
	}
	addWarning := func(rule, msg string) {
		result.Warnings = append(result.Warnings, LintIssue{Rule: rule, Message: msg, Severity: "warning"})
	}

	fx, err := loadRuleFixture(path)
	if err != nil {
		addError("", err.Error())
		return result
	}

	if fx.TenantID == "" {
		addError("", "missing tenant_id")
	}
	if len(fx.ManualRules) == 0 && len(fx.GeneratedRules) == 0 {
		addWarning("", "fixture has no rules; tenants fall through to the catch-all")
	}

	seen := make(map[string]bool)
	classifications := make(map[string]bool)

	checkRule := func(r fixtureRule, generated bool) {
		label := r.ID
		if label == "" {
			label = "(no id)"
		}

		if r.ID == "" {
			addError(label, "missing rule id")
		} else if seen[r.ID] {
			addError(label, "duplicate rule id")
		}
		seen[r.ID] = true

		if r.Classification == "" {
			addError(label, "missing classification")
		} else {
			classifications[r.Classification] = true
		}
		if len(r.RequiredKeywords) == 0 {
			addError(label, "no required keywords; only the catch-all may match everything")
		}
		if r.Priority < 0 {
			addError(label, "priority must not be negative")
		}
		if r.Action != "" && !knownRuleActions[r.Action] {
			addError(label, fmt.Sprintf("unknown action %q", r.Action))
		}
		if n := len(r.RequiredKeywords) + len(r.ExcludedKeywords); n > maxFixtureKeywords {
			addError(label, fmt.Sprintf("%d keywords exceed the per-rule cap of %d", n, maxFixtureKeywords))
		}
		for _, kw := range r.RequiredKeywords {
			if strings.TrimSpace(kw) == "" {
				addWarning(label, "blank required keyword is dropped at compile time")
				break
			}
		}

		if generated {
			if r.Confidence < 0 || r.Confidence > 1 {
				addError(label, fmt.Sprintf("confidence %g outside [0, 1]", r.Confidence))
			}
			if !r.Active {
				addWarning(label, "generated rule is inactive and will not compile")
			}
		}
	}

	for _, r := range fx.ManualRules {
		checkRule(r, false)
	}
	for _, r := range fx.GeneratedRules {
		checkRule(r, true)
	}

	for classification, responses := range fx.ResponsePools {
		if len(responses) == 0 {
			addWarning(classification, "response pool is empty")
		}
		if !classifications[classification] {
			addWarning(classification, "response pool matches no rule classification")
		}
	}

	return result
}

func printLintResults(results []LintResult) {
	totalErrors, totalWarnings := 0, 0

	for _, result := range results {
		fmt.Printf("Linting %s...\n", result.File)

		if len(result.Errors) == 0 && len(result.Warnings) == 0 {
			fmt.Println("✓ Fixture valid")
		}
		for _, issue := range result.Errors {
			if issue.Rule != "" {
				fmt.Printf("✗ Error: %s: %s\n", issue.Rule, issue.Message)
			} else {
				fmt.Printf("✗ Error: %s\n", issue.Message)
			}
			totalErrors++
		}
		for _, issue := range result.Warnings {
			if issue.Rule != "" {
				fmt.Printf("⚠  Warning: %s: %s\n", issue.Rule, issue.Message)
			} else {
				fmt.Printf("⚠  Warning: %s\n", issue.Message)
			}
			totalWarnings++
		}
		fmt.Println()
	}

	fmt.Println("Summary:")
	fmt.Printf("  %d error(s), %d warning(s)\n", totalErrors, totalWarnings)
	if rulesLintFlags.strict && totalWarnings > 0 {
		fmt.Println("  Strict mode: warnings fail the lint")
	}
}

func compileRules(cmd *cobra.Command, args []string) error {
	if rulesCompileFlags.file == "" {
		return fmt.Errorf("--file must be specified")
	}

	fx, err := loadRuleFixture(rulesCompileFlags.file)
	if err != nil {
		return cli.NewCommandError("rules compile", err)
	}
	if fx.TenantID == "" {
		return cli.NewCommandError("rules compile", fmt.Errorf("fixture is missing tenant_id"))
	}

	set, err := compileFixture(fx)
	if err != nil {
		return cli.NewCommandError("rules compile", err)
	}

	if rulesCompileFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, set)
	}
	printRuleSet(set)
	return nil
}

// compileFixture loads the fixture into an in-memory store and runs the
// same compiler the server runs.
func compileFixture(fx *ruleFixture) (*triage.RuleSet, error) {
	ctx := context.Background()

	st := store.NewMemory()
	defer st.Close()

	for i := range fx.ManualRules {
		r := fx.ManualRules[i]
		err := st.SaveManualRule(ctx, fx.TenantID, &triage.ManualRule{
			ID:               r.ID,
			Name:             r.Name,
			RequiredKeywords: r.RequiredKeywords,
			ExcludedKeywords: r.ExcludedKeywords,
			Classification:   r.Classification,
			Action:           r.Action,
			Priority:         r.Priority,
			Rationale:        r.Rationale,
		})
		if err != nil {
			return nil, fmt.Errorf("load manual rule %q: %w", r.ID, err)
		}
	}
	for i := range fx.GeneratedRules {
		r := fx.GeneratedRules[i]
		err := st.SaveGeneratedRule(ctx, fx.TenantID, &triage.GeneratedRule{
			ID:               r.ID,
			RequiredKeywords: r.RequiredKeywords,
			ExcludedKeywords: r.ExcludedKeywords,
			Classification:   r.Classification,
			Action:           r.Action,
			Priority:         r.Priority,
			Confidence:       r.Confidence,
			Active:           r.Active,
			Rationale:        r.Rationale,
		})
		if err != nil {
			return nil, fmt.Errorf("load generated rule %q: %w", r.ID, err)
		}
	}
	for classification, responses := range fx.ResponsePools {
		if err := st.SaveResponsePool(ctx, fx.TenantID, classification, responses); err != nil {
			return nil, fmt.Errorf("load response pool %q: %w", classification, err)
		}
	}

	// Compiler log lines go to stderr so --format json stays parseable.
	logger, err := logging.New(logging.Config{Level: "warn", Format: "text", Writer: os.Stderr})
	if err != nil {
		return nil, err
	}
	defer logger.Shutdown()

	c := cache.NewMemory(16, 0)
	defer c.Close()

	compiler := triage.NewCompiler(st, c, triage.CompilerConfig{}, logger, nil)
	return compiler.Compile(ctx, fx.TenantID)
}

func printRuleSet(set *triage.RuleSet) {
	fmt.Printf("Compiled rule set for tenant %s: %d rules, %d response pools\n\n",
		set.TenantID, len(set.Rules), len(set.ResponsePools))

	w := newColumnWriter(os.Stdout, "PRIORITY", "SOURCE", "ID", "CLASSIFICATION", "ACTION", "KEYWORDS")
	for _, r := range set.Rules {
		keywords := "(matches everything)"
		if !r.CatchAll {
			keywords = strings.Join(r.RequiredKeywords, ", ")
			if len(r.ExcludedKeywords) > 0 {
				keywords += " / not: " + strings.Join(r.ExcludedKeywords, ", ")
			}
		}
		w.row(
			fmt.Sprintf("%d", r.Priority),
			string(r.Source),
			r.ID,
			r.Classification,
			r.Action,
			keywords,
		)
	}
	w.flush()

	if len(set.ResponsePools) > 0 {
		fmt.Println()
		for classification, responses := range set.ResponsePools {
			fmt.Printf("pool %s: %d responses\n", classification, len(responses))
		}
	}
}

// columnWriter renders simple aligned columns without pulling in a table
// dependency for one subcommand.
type columnWriter struct {
	out     io.Writer
	headers []string
	rows    [][]string
}

func newColumnWriter(out io.Writer, headers ...string) *columnWriter {
	return &columnWriter{out: out, headers: headers}
}

func (w *columnWriter) row(cells ...string) {
	w.rows = append(w.rows, cells)
}

func (w *columnWriter) flush() {
	widths := make([]int, len(w.headers))
	for i, h := range w.headers {
		widths[i] = len(h)
	}
	for _, row := range w.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		var sb strings.Builder
		sb.WriteString("  ")
		for i, cell := range cells {
			sb.WriteString(cell)
			if i < len(cells)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-len(cell)+2))
			}
		}
		fmt.Fprintln(w.out, sb.String())
	}

	printRow(w.headers)
	for _, row := range w.rows {
		printRow(row)
	}
}
