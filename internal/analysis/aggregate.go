package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sciwrite/manuscript-critic/internal/rules"
)

var flagTitles = map[string]string{
	"cccStructure":           "Context-Content-Conclusion structure",
	"sentenceQuality":        "sentence quality",
	"topicContinuity":        "topic continuity",
	"terminologyConsistency": "terminology consistency",
	"structuralParallelism":  "structural parallelism",
}

// Aggregate merges structure, per-unit evaluations, and the document review
// into one immutable AnalysisResult. It is a pure function: no I/O, no oracle
// calls. Missing pieces become typed defaults, the flag/issue invariant is
// repaired, and severity statistics are recomputed from scratch — the
// oracle's own counts are never trusted.
func Aggregate(structure DocumentStructure, abstractEval Evaluation, sections []SectionResult, review DocumentReview, analysisErr string) AnalysisResult {
	res := AnalysisResult{
		Title:                  structure.Title,
		DocumentAssessment:     review.Assessment,
		MajorIssues:            review.MajorIssues,
		OverallRecommendations: review.OverallRecommendations,
		AnalysisError:          analysisErr,
	}
	if res.DocumentAssessment == nil {
		res.DocumentAssessment = DocumentAssessment{}
	}
	if res.MajorIssues == nil {
		res.MajorIssues = []Issue{}
	}
	if res.OverallRecommendations == nil {
		res.OverallRecommendations = []string{}
	}

	res.Abstract = repairEvaluation(fillEvaluation(abstractEval, structure.Abstract))

	res.Sections = make([]SectionResult, len(structure.Sections))
	for si, s := range structure.Sections {
		sec := SectionResult{Name: s.Name, Paragraphs: make([]Evaluation, len(s.Paragraphs))}
		for pi, text := range s.Paragraphs {
			var ev Evaluation
			if si < len(sections) && pi < len(sections[si].Paragraphs) {
				ev = sections[si].Paragraphs[pi]
			}
			sec.Paragraphs[pi] = repairEvaluation(fillEvaluation(ev, text))
		}
		res.Sections[si] = sec
	}

	res.Statistics = recount(res)
	res.PrioritizedIssues = prioritize(res)
	return res
}

// fillEvaluation turns a missing or partial evaluation into a fully-typed
// one. An unevaluated unit makes no compliance claims: all flags true, no
// issues, and a summary that says it was skipped.
func fillEvaluation(ev Evaluation, text string) Evaluation {
	if strings.TrimSpace(ev.Text) == "" && strings.TrimSpace(ev.Summary) == "" {
		ev = Evaluation{
			Text:    text,
			Summary: "Not evaluated.",
			Flags:   allTrueFlags(),
		}
	}
	if strings.TrimSpace(ev.Text) == "" {
		ev.Text = text
	}
	if ev.Issues == nil {
		ev.Issues = []Issue{}
	}
	return ev
}

// repairEvaluation enforces the flag/issue invariant rather than trusting the
// oracle to self-police. Issues tagged with a paragraph rule force that
// rule's flag false; untagged issues are attributed to sentence quality; any
// remaining false flag with no attributable issue earns a synthesized minor
// issue so a failed flag is always visible in the feedback.
func repairEvaluation(ev Evaluation) Evaluation {
	ruleToFlag := map[int]string{}
	for name, n := range flagRuleNumbers {
		ruleToFlag[n] = name
	}

	for i, is := range ev.Issues {
		flag, ok := ruleToFlag[parseRuleTag(is.RuleTag)]
		if !ok {
			// Untagged, or tagged with a rule no paragraph flag tracks:
			// re-attribute to sentence quality so the issue still flips a flag.
			flag = "sentenceQuality"
			ev.Issues[i].RuleTag = rules.Tag(flagRuleNumbers[flag])
		}
		ev.Flags.set(flag, false)
	}

	for _, name := range FlagNames {
		if ev.Flags.Get(name) {
			continue
		}
		tag := rules.Tag(flagRuleNumbers[name])
		if hasAttributedIssue(ev.Issues, tag) {
			continue
		}
		ev.Issues = append(ev.Issues, Issue{
			Issue:          fmt.Sprintf("%s: %s checkpoints were not satisfied", tag, flagTitles[name]),
			Severity:       SeverityMinor,
			Recommendation: fmt.Sprintf("%s: revise this paragraph to satisfy the %s checkpoints", tag, flagTitles[name]),
			RuleTag:        tag,
		})
	}
	return ev
}

func hasAttributedIssue(issues []Issue, tag string) bool {
	for _, is := range issues {
		if is.RuleTag == tag || strings.Contains(is.Issue, tag) {
			return true
		}
	}
	return false
}

func parseRuleTag(tag string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(tag), "rule %d", &n); err != nil {
		return 0
	}
	return n
}

// recount walks every issue exactly once: the abstract's, every paragraph's,
// and the document-level major issues.
func recount(res AnalysisResult) Statistics {
	var st Statistics
	tally := func(issues []Issue) {
		for _, is := range issues {
			switch is.Severity {
			case SeverityCritical:
				st.Critical++
			case SeverityMajor:
				st.Major++
			default:
				st.Minor++
			}
		}
	}
	tally(res.Abstract.Issues)
	for _, sec := range res.Sections {
		for _, p := range sec.Paragraphs {
			tally(p.Issues)
		}
	}
	tally(res.MajorIssues)
	return st
}

// ParagraphLocation renders the human-readable location string attached to
// paragraph-level issues in the prioritized list.
func ParagraphLocation(sectionName string, paragraphIndex int, text string) string {
	return fmt.Sprintf("%s: paragraph %d (starts: %q)", sectionName, paragraphIndex+1, Excerpt(text, 30))
}

// prioritize concatenates document-level major issues, then every
// paragraph-level issue tagged with its location, and stable-sorts by
// severity rank so encounter order breaks ties.
func prioritize(res AnalysisResult) []Issue {
	out := make([]Issue, 0, len(res.MajorIssues))
	for _, is := range res.MajorIssues {
		if is.Location == "" {
			is.Location = "document"
		}
		out = append(out, is)
	}
	for _, sec := range res.Sections {
		for pi, p := range sec.Paragraphs {
			for _, is := range p.Issues {
				is.Location = ParagraphLocation(sec.Name, pi, p.Text)
				out = append(out, is)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.order() < out[j].Severity.order()
	})
	return out
}
