package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func structureOf(counts ...int) DocumentStructure {
	var d DocumentStructure
	d.Title = "T"
	for i, n := range counts {
		s := Section{Name: string(rune('A' + i))}
		for j := 0; j < n; j++ {
			s.Paragraphs = append(s.Paragraphs, "paragraph text")
		}
		d.Sections = append(d.Sections, s)
	}
	return d
}

func evaluatedSections(d DocumentStructure, evaluated int) []SectionResult {
	out := make([]SectionResult, len(d.Sections))
	seen := 0
	for si, s := range d.Sections {
		out[si] = SectionResult{Name: s.Name, Paragraphs: make([]Evaluation, len(s.Paragraphs))}
		for pi, p := range s.Paragraphs {
			if seen < evaluated {
				out[si].Paragraphs[pi] = Evaluation{Text: p, Summary: "ok", Flags: allTrueFlags()}
				seen++
			}
		}
	}
	return out
}

func TestCompleteEvaluations(t *testing.T) {
	d := structureOf(3, 4)

	if !CompleteEvaluations(d, evaluatedSections(d, 7)) {
		t.Fatal("fully evaluated structure reported incomplete")
	}
	if CompleteEvaluations(d, evaluatedSections(d, 5)) {
		t.Fatal("missing evaluations reported complete")
	}
	if CompleteEvaluations(d, nil) {
		t.Fatal("nil sections reported complete")
	}

	// Section count mismatch.
	short := evaluatedSections(d, 7)[:1]
	if CompleteEvaluations(d, short) {
		t.Fatal("section count mismatch reported complete")
	}
}

func TestCompleteEvaluationsSmallManuscript(t *testing.T) {
	// A two-paragraph manuscript with both paragraphs evaluated is complete.
	d := structureOf(2)
	if !CompleteEvaluations(d, evaluatedSections(d, 2)) {
		t.Fatal("small fully-evaluated manuscript reported incomplete")
	}
}

func TestCompleteAssessment(t *testing.T) {
	a := DocumentAssessment{}
	for _, key := range RequiredCriteria {
		a[key] = CriterionResult{Score: 5}
	}
	if !CompleteAssessment(a) {
		t.Fatal("full assessment reported incomplete")
	}
	delete(a, "messageFocus")
	if CompleteAssessment(a) {
		t.Fatal("assessment missing a criterion reported complete")
	}
	if CompleteAssessment(nil) {
		t.Fatal("nil assessment reported complete")
	}
	missing := MissingCriteria(a)
	if len(missing) != 1 || missing[0] != "messageFocus" {
		t.Fatalf("MissingCriteria = %v", missing)
	}
}

func TestMissingEvaluationsCount(t *testing.T) {
	d := structureOf(3, 2)
	if got := missingEvaluations(d, evaluatedSections(d, 3)); got != 2 {
		t.Fatalf("missingEvaluations = %d, want 2", got)
	}
	if got := missingEvaluations(d, nil); got != 5 {
		t.Fatalf("missingEvaluations(nil) = %d, want 5", got)
	}
}

func TestStructuralHintListsSections(t *testing.T) {
	hint := StructuralHint(structureOf(2, 3))
	if !strings.Contains(hint, `"A" (2 paragraphs)`) || !strings.Contains(hint, `"B" (3 paragraphs)`) {
		t.Fatalf("hint = %q", hint)
	}
}

func TestWithRetryAcceptsFirstValidResult(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(),
		func(context.Context, *RetryContext) (int, error) { calls++; return 7, nil },
		func(int) bool { return true },
		func(int) *RetryContext { return &RetryContext{} },
	)
	if err != nil || got != 7 || calls != 1 {
		t.Fatalf("got=%d err=%v calls=%d", got, err, calls)
	}
}

func TestWithRetryBoundedToTwoAttempts(t *testing.T) {
	// Always-incomplete producer: exactly two calls, first result kept.
	calls := 0
	var corrections []string
	got, err := withRetry(context.Background(),
		func(_ context.Context, retry *RetryContext) (int, error) {
			calls++
			if retry != nil {
				corrections = append(corrections, retry.Correction)
			}
			return calls, nil
		},
		func(int) bool { return false },
		func(first int) *RetryContext {
			return &RetryContext{Correction: "incomplete"}
		},
	)
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
	if got != 1 {
		t.Fatalf("expected the first result kept, got %d", got)
	}
	if len(corrections) != 1 || corrections[0] != "incomplete" {
		t.Fatalf("corrections = %v", corrections)
	}
}

func TestWithRetryPrefersRetryWhenFirstErrored(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(),
		func(context.Context, *RetryContext) (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("oracle down")
			}
			return 2, nil
		},
		func(int) bool { return false },
		func(int) *RetryContext { return &RetryContext{} },
	)
	if err != nil {
		t.Fatalf("expected retry result to clear the error, got %v", err)
	}
	if got != 2 {
		t.Fatalf("got = %d, want the retry's result", got)
	}
}

func TestWithRetrySkipsRetryWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx,
		func(context.Context, *RetryContext) (int, error) {
			calls++
			cancel()
			return 0, errors.New("interrupted")
		},
		func(int) bool { return false },
		func(int) *RetryContext { return &RetryContext{} },
	)
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d calls", calls)
	}
	if err == nil {
		t.Fatal("expected the original error")
	}
}
