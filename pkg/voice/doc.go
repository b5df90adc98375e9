// Package voice handles spoken commands: emergency phrases go straight to
// the dispatcher, everything else is answered from a confidence-aware
// response cache or an OpenAI-compatible model.
package voice
