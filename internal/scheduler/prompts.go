package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/screenlog/internal/journal"
)

const (
	// UnavailableObservationMessage is recorded when no model session could
	// be obtained or the model returned nothing.
	UnavailableObservationMessage = "Could not describe the screen: the language model is unavailable or returned an empty response."
	// UnavailableReportMessage is the report counterpart.
	UnavailableReportMessage = "Report generation failed: the language model is unavailable or returned an empty response."

	contextSize = 5
)

func captureInstruction(lang string) string {
	return fmt.Sprintf(`You describe screenshots of a person's computer screen.
Describe only what is literally visible: applications, windows, documents, visible text and interface elements.
Do not speculate about intentions and do not mention anything that is not shown.
Answer in %s, in 2 to 3 sentences.`, lang)
}

func reportInstruction(lang string) string {
	return fmt.Sprintf(`You write work reports from a list of timestamped screen observations.
Produce Markdown with exactly these sections:
## Summary
## Timeline
## Outcomes
The timeline is chronological and cites observation times.
Use only facts present in the observations. Never invent file names, people, numbers or results that do not appear in them.
When you infer something that is not stated directly, mark it as (uncertain).
Write in %s.`, lang)
}

func capturePrompt(prior []journal.Observation) string {
	var b strings.Builder
	n := 0
	for _, o := range prior {
		if o.Status != journal.StatusSuccess || o.Text == "" {
			continue
		}
		if n == 0 {
			b.WriteString("Previous observations, newest first:\n")
		}
		fmt.Fprintf(&b, "- %s: %s\n", o.Timestamp.Format(time.TimeOnly), o.Text)
		n++
	}
	if n > 0 {
		b.WriteString("\n")
	}
	b.WriteString("Describe the attached screenshot.")
	return b.String()
}

func reportPrompt(obs []journal.Observation) string {
	chrono := make([]journal.Observation, 0, len(obs))
	for i := len(obs) - 1; i >= 0; i-- {
		chrono = append(chrono, obs[i])
	}

	var b strings.Builder
	b.WriteString("Observations, oldest first:\n")
	n := 0
	for _, o := range chrono {
		if o.Status != journal.StatusSuccess || o.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", o.Timestamp.Format(time.DateTime), o.Text)
		n++
	}
	if n == 0 {
		b.WriteString("- (every capture in this period failed; no descriptions are available)\n")
	}
	return b.String()
}
