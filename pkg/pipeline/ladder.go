package pipeline

import (
	"time"
)

// Variant is one rung of the chunk retry ladder.
type Variant struct {
	Label string
	// Build renders the prompt for a command. history is the recent concept
	// window and is only honoured by variants that use it.
	Build func(command string, history []string) string
}

// DefaultLadder returns the escalation order used for each chunk: the normal
// prompt with concept history, a paraphrased request, then a simplified one.
func DefaultLadder() []Variant {
	return []Variant{
		{Label: "normal", Build: normalPrompt},
		{Label: "paraphrase", Build: paraphrasePrompt},
		{Label: "simplify", Build: simplifyPrompt},
	}
}

func normalPrompt(command string, history []string) string {
	return "USER COMMAND: " + command + "\n\n" + sourceOnly + historyBlock(history)
}

func paraphrasePrompt(command string, _ []string) string {
	return "USER COMMAND (rephrased for a neutral educational context): Create study flashcards that cover the following section of the document: " +
		command + "\n\n" + sourceOnly + "\n" + formatReminder
}

func simplifyPrompt(command string, _ []string) string {
	return "USER COMMAND: Create a short set of basic recall flashcards for this section: " +
		command + "\nKeep every answer brief and factual.\n\n" + sourceOnly + "\n" + formatReminder
}

// preDelay is the wait before ladder step (0-based) of a chunk. The first
// generation call of a run does not wait; every later first step waits the
// request delay, and escalation n waits at least retryDelay*n. Delays never
// decrease along the ladder.
func preDelay(requestDelay, retryDelay time.Duration, step int, firstCall bool) time.Duration {
	if step == 0 {
		if firstCall {
			return 0
		}
		return requestDelay
	}
	return max(requestDelay, retryDelay*time.Duration(step))
}

// recentHistory returns at most window trailing entries of history.
func recentHistory(history []string, window int) []string {
	if window <= 0 {
		return nil
	}
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}
