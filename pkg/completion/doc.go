// Package completion is the client for the language-model service that
// backs intent extraction and free-text generation.
//
// The service speaks the OpenAI chat-completions wire format, which every
// gateway the platform deploys against can serve. Calls carry a hard
// timeout and a small retry budget with exponential backoff; a caller is
// waiting on the line, so the budget errs toward giving up fast and
// letting the turn pipeline fall back to the raw utterance.
package completion
