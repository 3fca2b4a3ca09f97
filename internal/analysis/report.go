package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Render projects an AnalysisResult into its human-readable Markdown report
// and its canonical JSON form. Rendering is deterministic: the same result
// always yields byte-identical output, which the tests rely on.
func Render(res AnalysisResult) (string, []byte) {
	return renderMarkdown(res), renderJSON(res)
}

func renderJSON(res AnalysisResult) []byte {
	// encoding/json sorts map keys, so the assessment serializes stably.
	blob, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		// The result is a closed tree of marshalable types; failing here is a
		// programming error, surfaced loudly instead of swallowed.
		panic(fmt.Sprintf("analysis result marshal: %v", err))
	}
	return blob
}

func renderMarkdown(res AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Manuscript Review: %s\n\n", res.Title)
	if res.AnalysisError != "" {
		fmt.Fprintf(&b, "> Analysis degraded: %s\n\n", res.AnalysisError)
	}

	b.WriteString("## Overall Assessment\n\n")
	if len(res.DocumentAssessment) == 0 {
		b.WriteString("No document assessment available.\n\n")
	} else {
		b.WriteString("| Criterion | Score | Assessment | Recommendation |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, key := range RequiredCriteria {
			c, ok := res.DocumentAssessment[key]
			if !ok {
				fmt.Fprintf(&b, "| %s | - | not assessed | - |\n", criterionLabels[key])
				continue
			}
			fmt.Fprintf(&b, "| %s | %d/10 | %s | %s |\n",
				criterionLabels[key], c.Score, cell(c.Assessment), cell(c.Recommendation))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Issue Summary\n\n")
	fmt.Fprintf(&b, "- Critical: %d\n- Major: %d\n- Minor: %d\n\n",
		res.Statistics.Critical, res.Statistics.Major, res.Statistics.Minor)

	b.WriteString("## Top Recommendations\n\n")
	if len(res.OverallRecommendations) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for i, rec := range res.OverallRecommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Prioritized Issues\n\n")
	if len(res.PrioritizedIssues) == 0 {
		b.WriteString("No issues found.\n\n")
	} else {
		for _, is := range res.PrioritizedIssues {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n  - Recommendation: %s\n",
				strings.ToUpper(string(is.Severity)), cell(is.Location), cell(is.Issue), cell(is.Recommendation))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Abstract\n\n")
	renderEvaluation(&b, res.Abstract)

	for _, sec := range res.Sections {
		fmt.Fprintf(&b, "## Section: %s\n\n", sec.Name)
		for pi, p := range sec.Paragraphs {
			fmt.Fprintf(&b, "### Paragraph %d\n\n", pi+1)
			renderEvaluation(&b, p)
		}
	}
	return b.String()
}

func renderEvaluation(b *strings.Builder, ev Evaluation) {
	if strings.TrimSpace(ev.Text) != "" {
		fmt.Fprintf(b, "> %s\n\n", cell(ev.Text))
	}
	if strings.TrimSpace(ev.Summary) != "" {
		fmt.Fprintf(b, "Summary: %s\n\n", cell(ev.Summary))
	}
	for _, name := range FlagNames {
		fmt.Fprintf(b, "- %s %s\n", checkmark(ev.Flags.Get(name)), flagTitles[name])
	}
	b.WriteString("\n")
	if len(ev.Issues) == 0 {
		b.WriteString("No issues.\n\n")
		return
	}
	for _, is := range ev.Issues {
		fmt.Fprintf(b, "- **%s**: %s\n  - Recommendation: %s\n",
			strings.ToUpper(string(is.Severity)), cell(is.Issue), cell(is.Recommendation))
	}
	b.WriteString("\n")
}

func checkmark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// cell flattens a value for single-line Markdown contexts.
func cell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	s = strings.ReplaceAll(s, "|", "\\|")
	if s == "" {
		return "-"
	}
	return s
}
