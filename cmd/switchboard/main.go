// Halcyon Switchboard is the decision core of a voice-call automation
// platform.
//
// For every caller turn it runs a staged pipeline: silence and barge-in
// handling, utterance normalization, keyword triage against per-tenant
// rule sets, LLM classification and response generation, and a response
// policy pass that rewrites, blocks, or redirects what the agent is about
// to say. Every decision lands in an auditable trail.
//
// Usage:
//
//	# Start the turn API with the default configuration
//	switchboard run
//
//	# Start with a custom configuration file
//	switchboard run --config /etc/switchboard/config.yaml
//
//	# Check a configuration file without starting anything
//	switchboard validate --config config.yaml
//
//	# Lint a rule fixture before importing it
//	switchboard rules lint --file rules.yaml
//
//	# Show the compiled evaluation order of a rule fixture
//	switchboard rules compile --file rules.yaml
//
//	# Show version information
//	switchboard version
package main

func main() {
	Execute()
}
