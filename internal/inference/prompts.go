package inference

import (
	"fmt"
	"strings"
)

// Task markers embedded in prompts. The mock engine dispatches on them; the
// real engine ignores them beyond instruction text.
const (
	TaskScoreCaller  = "score_caller"
	TaskScoreAgent   = "score_agent"
	TaskAdaptTargets = "adapt_targets"
)

// header emits the machine-readable preamble every pipeline prompt carries:
// the task marker, a determinism seed, and the parameter vocabulary.
func header(task, seed string, params []string) string {
	return fmt.Sprintf("TASK: %s\nSEED: %s\nPARAMETERS: %s\n\n",
		task, seed, strings.Join(params, ","))
}

// ScoreCallerPrompt asks for caller parameter scores plus durable facts from
// one transcript, in a single completion.
func ScoreCallerPrompt(callID, transcript string, params []string) string {
	var b strings.Builder
	b.WriteString(header(TaskScoreCaller, callID, params))
	b.WriteString("Score the CALLER in this conversation on each listed parameter (0.0-1.0) ")
	b.WriteString("with a confidence (0.0-1.0), and extract durable facts the caller stated about themselves.\n")
	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"scores":[{"parameter_id":"...","score":0.0,"confidence":0.0}],"facts":["..."]}`)
	b.WriteString("\n\nTRANSCRIPT:\n")
	b.WriteString(transcript)
	return b.String()
}

// ScoreAgentPrompt asks for agent-side behavior measurements.
func ScoreAgentPrompt(callID, transcript string, params []string) string {
	var b strings.Builder
	b.WriteString(header(TaskScoreAgent, callID, params))
	b.WriteString("Score the AGENT's behavior in this conversation on each listed parameter (0.0-1.0) ")
	b.WriteString("with a confidence (0.0-1.0).\n")
	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"scores":[{"parameter_id":"...","score":0.0,"confidence":0.0}]}`)
	b.WriteString("\n\nTRANSCRIPT:\n")
	b.WriteString(transcript)
	return b.String()
}

// AdaptTargetsPrompt asks for personalized behavior targets given a summary
// of the caller's current state.
func AdaptTargetsPrompt(callID, callerSummary string, params []string) string {
	var b strings.Builder
	b.WriteString(header(TaskAdaptTargets, callID, params))
	b.WriteString("Given the caller state below, propose a target value (0.0-1.0) for each listed ")
	b.WriteString("agent behavior parameter for the NEXT conversation, with confidence and a one-line reasoning.\n")
	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"targets":[{"parameter_id":"...","target":0.0,"confidence":0.0,"reasoning":"..."}]}`)
	b.WriteString("\n\nCALLER STATE:\n")
	b.WriteString(callerSummary)
	return b.String()
}

// promptField extracts the value of a "KEY: value" line from a prompt.
// Used by the mock engine to honor the contract without a model.
func promptField(prompt, key string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, key+": "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
