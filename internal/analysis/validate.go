package analysis

import (
	"context"
	"fmt"
	"strings"
)

// Completeness is checked structurally, never semantically: the validator
// cares that every expected unit was answered, not whether the answers are
// any good.

// CompleteEvaluations reports whether the evaluator covered the structure:
// every section present and every paragraph carrying an evaluation.
func CompleteEvaluations(structure DocumentStructure, sections []SectionResult) bool {
	if len(structure.Sections) == 0 || len(sections) != len(structure.Sections) {
		return false
	}
	evaluated := 0
	for si, s := range structure.Sections {
		if len(sections[si].Paragraphs) != len(s.Paragraphs) {
			return false
		}
		for _, p := range sections[si].Paragraphs {
			if strings.TrimSpace(p.Text) != "" {
				evaluated++
			}
		}
	}
	// Full coverage subsumes any coarse plausibility floor: every structural
	// paragraph must carry an evaluation.
	return evaluated >= structure.ParagraphCount()
}

// CompleteAssessment reports whether all seven required criteria are present.
// This is the primary completeness predicate for the document pass.
func CompleteAssessment(a DocumentAssessment) bool {
	if a == nil {
		return false
	}
	for _, key := range RequiredCriteria {
		if _, ok := a[key]; !ok {
			return false
		}
	}
	return true
}

// MissingCriteria lists the absent assessment keys, for the correction prompt.
func MissingCriteria(a DocumentAssessment) []string {
	var missing []string
	for _, key := range RequiredCriteria {
		if _, ok := a[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// missingEvaluations counts the paragraphs the evaluator skipped, for the
// correction prompt.
func missingEvaluations(structure DocumentStructure, sections []SectionResult) int {
	missing := 0
	for si, s := range structure.Sections {
		for pi := range s.Paragraphs {
			if si >= len(sections) || pi >= len(sections[si].Paragraphs) ||
				strings.TrimSpace(sections[si].Paragraphs[pi].Text) == "" {
				missing++
			}
		}
	}
	return missing
}

// StructuralHint renders the expected section names and paragraph counts,
// seeded into retry prompts so the oracle knows exactly what was expected.
func StructuralHint(structure DocumentStructure) string {
	var b strings.Builder
	b.WriteString("Expected structure:")
	for _, s := range structure.Sections {
		fmt.Fprintf(&b, " %q (%d paragraphs);", s.Name, len(s.Paragraphs))
	}
	return b.String()
}

// withRetry is the bounded retry controller: produce once, validate
// structurally, and on failure produce exactly once more with a reinforced
// prompt. If the retry is also incomplete, the original result is kept and
// the pipeline proceeds — the validator never blocks.
func withRetry[T any](
	ctx context.Context,
	produce func(ctx context.Context, retry *RetryContext) (T, error),
	valid func(T) bool,
	buildRetry func(first T) *RetryContext,
) (T, error) {
	first, err := produce(ctx, nil)
	if err == nil && valid(first) {
		return first, nil
	}
	if ctx.Err() != nil {
		return first, err
	}
	second, retryErr := produce(ctx, buildRetry(first))
	if retryErr == nil && valid(second) {
		return second, nil
	}
	// Keep the best available result: the original unless it failed outright
	// and the retry at least produced something.
	if err != nil && retryErr == nil {
		return second, nil
	}
	return first, err
}
