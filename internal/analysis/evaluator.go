package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/sciwrite/manuscript-critic/internal/rules"
)

const evaluationSchemaPrompt = `Required JSON schema:
{
  "summary": "string (one-sentence summary of the paragraph)",
  "flags": {
    "cccStructure": "boolean",
    "sentenceQuality": "boolean",
    "topicContinuity": "boolean",
    "terminologyConsistency": "boolean",
    "structuralParallelism": "boolean"
  },
  "issues": [
    {
      "issue": "string (what is wrong, prefixed with the rule tag, e.g. \"rule 4: ...\")",
      "severity": "critical | major | minor",
      "recommendation": "string (how to fix it)",
      "ruleTag": "string (\"rule N\" for the rule violated)"
    }
  ]
}
A flag may be true ONLY when every checkpoint of its rule is evidently satisfied by the text; when in doubt, set it to false and report an issue. Every false flag MUST have at least one issue tagged with its rule. If all flags are true, issues MUST be an empty array.`

const batchSchemaPrompt = `Required JSON schema:
{
  "evaluations": [
    {
      "text": "string (the paragraph text echoed back verbatim, so results can be re-associated)",
      "summary": "string",
      "flags": {"cccStructure": "boolean", "sentenceQuality": "boolean", "topicContinuity": "boolean", "terminologyConsistency": "boolean", "structuralParallelism": "boolean"},
      "issues": [{"issue": "string", "severity": "critical | major | minor", "recommendation": "string", "ruleTag": "string"}]
    }
  ]
}
Return exactly one evaluation per input paragraph, in input order. A flag may be true ONLY when every checkpoint of its rule is evidently satisfied; when in doubt, set it to false and report a tagged issue.`

const assessmentSchemaPrompt = `Required JSON schema:
{
  "documentAssessment": {
    "titleQuality":          {"score": "integer 1-10", "assessment": "string", "recommendation": "string"},
    "abstractCompleteness":  {"score": "integer 1-10", "assessment": "string", "recommendation": "string"},
    "introductionStructure": {"score": "integer 1-10", "assessment": "string", "recommendation": "string"},
    "resultsOrganization":   {"score": "integer 1-10", "assessment": "string", "recommendation": "string"},
    "discussionQuality":     {"score": "integer 1-10", "assessment": "string", "recommendation": "string"},
    "messageFocus":          {"score": "integer 1-10", "assessment": "string", "recommendation": "string"},
    "topicOrganization":     {"score": "integer 1-10", "assessment": "string", "recommendation": "string"}
  },
  "majorIssues": [{"issue": "string", "severity": "critical | major | minor", "recommendation": "string", "location": "string", "ruleTag": "string"}],
  "overallRecommendations": ["string (ordered by priority, most important first)"]
}
All seven documentAssessment keys are required.`

// RetryContext carries the material the retry controller feeds back into a
// reinforced prompt: the prior (incomplete) oracle reply and an explicit
// correction instruction.
type RetryContext struct {
	PriorReply string
	Correction string
}

// Evaluator produces rule-grounded evaluations for the abstract, for every
// paragraph, and for the document as a whole. Paragraph and document
// evaluation are two instantiations of the same prompt-and-decode machinery,
// not duplicated code paths.
type Evaluator interface {
	EvaluateAbstract(ctx context.Context, structure DocumentStructure) (Evaluation, error)
	EvaluateParagraphs(ctx context.Context, structure DocumentStructure, retry *RetryContext) ([]SectionResult, string, error)
	AssessDocument(ctx context.Context, structure DocumentStructure, sections []SectionResult, retry *RetryContext) (DocumentReview, string, error)
}

// LLMEvaluator is the oracle-backed Evaluator.
type LLMEvaluator struct {
	caller    Caller
	catalog   *rules.Catalog
	batchSize int
}

const defaultParagraphBatch = 4

func NewLLMEvaluator(caller Caller, catalog *rules.Catalog) *LLMEvaluator {
	return &LLMEvaluator{caller: caller, catalog: catalog, batchSize: defaultParagraphBatch}
}

type unitReply struct {
	Summary string    `json:"summary"`
	Flags   RuleFlags `json:"flags"`
	Issues  []Issue   `json:"issues"`
}

type batchEntry struct {
	Text    string    `json:"text"`
	Summary string    `json:"summary"`
	Flags   RuleFlags `json:"flags"`
	Issues  []Issue   `json:"issues"`
}

type batchReply struct {
	Evaluations []batchEntry `json:"evaluations"`
}

type documentReply struct {
	DocumentAssessment     DocumentAssessment `json:"documentAssessment"`
	MajorIssues            []Issue            `json:"majorIssues"`
	OverallRecommendations []string           `json:"overallRecommendations"`
}

func (e *LLMEvaluator) EvaluateAbstract(ctx context.Context, structure DocumentStructure) (Evaluation, error) {
	text := strings.TrimSpace(structure.Abstract)
	if text == "" {
		// Nothing to evaluate; a missing abstract is reported at the
		// document level, not invented here.
		return Evaluation{Flags: allTrueFlags(), Summary: "No abstract present."}, nil
	}
	prompt := fmt.Sprintf(
		"Evaluate the ABSTRACT of a scientific manuscript against the paragraph rules below.\n\nParagraph rules and checkpoints:\n%s\n%s\n\nAbstract:\n%s",
		rules.ChecklistBlock(e.catalog.Paragraph),
		evaluationSchemaPrompt,
		text,
	)
	var out unitReply
	exec := NewExecutor(e.caller)
	if _, err := exec.Run(ctx, "abstract", prompt, &out, nil); err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Text:    text,
		Summary: strings.TrimSpace(out.Summary),
		Flags:   out.Flags,
		Issues:  normalizeIssues(out.Issues),
	}, nil
}

// paragraphRef addresses a single paragraph within the structure.
type paragraphRef struct {
	section   int
	paragraph int
	text      string
}

func (e *LLMEvaluator) EvaluateParagraphs(ctx context.Context, structure DocumentStructure, retry *RetryContext) ([]SectionResult, string, error) {
	results := make([]SectionResult, len(structure.Sections))
	var refs []paragraphRef
	for si, s := range structure.Sections {
		results[si] = SectionResult{Name: s.Name, Paragraphs: make([]Evaluation, len(s.Paragraphs))}
		for pi, p := range s.Paragraphs {
			refs = append(refs, paragraphRef{section: si, paragraph: pi, text: p})
		}
	}

	// The last decoded batch reply stands in for the prior reply on a retry;
	// replaying every batch verbatim would blow the prompt budget.
	rec := &recordingCaller{inner: e.caller}
	exec := NewExecutor(rec)
	batches := 0
	failures := 0
	var lastErr error
	for start := 0; start < len(refs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(refs) {
			end = len(refs)
		}
		batch := refs[start:end]
		batches++

		prompt := e.buildBatchPrompt(structure, batch, retry)
		var out batchReply
		unit := fmt.Sprintf("paragraphs %d-%d", start+1, end)
		if _, err := exec.Run(ctx, unit, prompt, &out, nil); err != nil {
			// Leave this batch unevaluated; the completeness validator
			// decides whether the overall result needs a retry.
			failures++
			lastErr = err
			continue
		}
		// Re-associate positionally. The echoed text is advisory: it guards
		// against off-by-one drift but the original text is authoritative.
		for i, entry := range out.Evaluations {
			if i >= len(batch) {
				break
			}
			ref := batch[i]
			results[ref.section].Paragraphs[ref.paragraph] = Evaluation{
				Text:    ref.text,
				Summary: strings.TrimSpace(entry.Summary),
				Flags:   entry.Flags,
				Issues:  normalizeIssues(entry.Issues),
			}
		}
	}
	if batches > 0 && failures == batches {
		return results, rec.last, lastErr
	}
	return results, rec.last, nil
}

func (e *LLMEvaluator) buildBatchPrompt(structure DocumentStructure, batch []paragraphRef, retry *RetryContext) string {
	var list strings.Builder
	for i, ref := range batch {
		fmt.Fprintf(&list, "Paragraph %d (section %q):\n%s\n\n", i+1, structure.Sections[ref.section].Name, ref.text)
	}
	prompt := fmt.Sprintf(
		"Evaluate each of the following %d manuscript paragraphs against the paragraph rules below.\n\nParagraph rules and checkpoints:\n%s\n%s\n\n%s",
		len(batch),
		rules.ChecklistBlock(e.catalog.Paragraph),
		batchSchemaPrompt,
		list.String(),
	)
	if retry != nil {
		prompt += "\n" + retry.Correction
		if retry.PriorReply != "" {
			prompt += "\n\nYour previous (incomplete) reply was:\n" + retry.PriorReply
		}
	}
	return prompt
}

func (e *LLMEvaluator) AssessDocument(ctx context.Context, structure DocumentStructure, sections []SectionResult, retry *RetryContext) (DocumentReview, string, error) {
	prompt := fmt.Sprintf(
		"Assess a scientific manuscript as a whole against the document rules below. You are given the title, the abstract, and a per-section digest (paragraph summaries, not full text).\n\nDocument rules and checkpoints:\n%s\n%s\n\nTitle: %s\n\nAbstract:\n%s\n\nSection digest:\n%s",
		rules.ChecklistBlock(e.catalog.Document),
		assessmentSchemaPrompt,
		structure.Title,
		structure.Abstract,
		BuildDigest(structure, sections),
	)
	if retry != nil {
		prompt += "\n\n" + retry.Correction
		if retry.PriorReply != "" {
			prompt += "\n\nYour previous (incomplete) reply was:\n" + retry.PriorReply
		}
	}

	rec := &recordingCaller{inner: e.caller}
	exec := NewExecutor(rec)
	var out documentReply
	if _, err := exec.Run(ctx, "document", prompt, &out, func() error { return validateScores(out.DocumentAssessment) }); err != nil {
		return DocumentReview{}, rec.last, err
	}
	return DocumentReview{
		Assessment:             out.DocumentAssessment,
		MajorIssues:            normalizeIssues(out.MajorIssues),
		OverallRecommendations: out.OverallRecommendations,
	}, rec.last, nil
}

// BuildDigest renders the compact section/paragraph digest embedded in the
// document-assessment prompt. Summaries stand in for full text to keep the
// prompt within budget; paragraphs the evaluator missed fall back to a
// truncated excerpt.
func BuildDigest(structure DocumentStructure, sections []SectionResult) string {
	var b strings.Builder
	for si, s := range structure.Sections {
		fmt.Fprintf(&b, "Section %q (%d paragraphs):\n", s.Name, len(s.Paragraphs))
		for pi, p := range s.Paragraphs {
			line := Excerpt(p, 80)
			if si < len(sections) && pi < len(sections[si].Paragraphs) {
				if sum := strings.TrimSpace(sections[si].Paragraphs[pi].Summary); sum != "" {
					line = sum
				}
			}
			fmt.Fprintf(&b, "  %d. %s\n", pi+1, line)
		}
	}
	return b.String()
}

// Excerpt returns the first n characters of s, rune-safe, with an ellipsis
// when truncated.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func validateScores(a DocumentAssessment) error {
	for key, c := range a {
		if c.Score < 1 || c.Score > 10 {
			return fmt.Errorf("%s score out of range", key)
		}
	}
	return nil
}

// normalizeIssues lowercases severities and defaults anything unrecognized to
// minor, so a hallucinated severity can never corrupt sorting or statistics.
func normalizeIssues(issues []Issue) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		is.Severity = Severity(strings.ToLower(strings.TrimSpace(string(is.Severity))))
		if !is.Severity.Valid() {
			is.Severity = SeverityMinor
		}
		is.Issue = strings.TrimSpace(is.Issue)
		is.Recommendation = strings.TrimSpace(is.Recommendation)
		is.RuleTag = strings.TrimSpace(is.RuleTag)
		if is.Issue == "" {
			continue
		}
		out = append(out, is)
	}
	return out
}

// recordingCaller captures the raw oracle reply so the retry controller can
// feed it back into the reinforced prompt.
type recordingCaller struct {
	inner Caller
	last  string
}

func (r *recordingCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	s, err := r.inner.GenerateJSON(ctx, prompt)
	if s != "" {
		r.last = s
	}
	return s, err
}
