package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrPipelineTimeout reports that the overall analysis deadline elapsed. The
// accompanying result is still fully typed and degraded, never partial.
var ErrPipelineTimeout = errors.New("analysis pipeline timed out")

const defaultPipelineTimeout = 4 * time.Minute

// Pipeline runs one submission end to end: structure extraction, per-unit
// rule evaluation, completeness validation with one bounded retry, and
// aggregation. One pipeline value is shared across requests; it holds no
// per-submission state.
type Pipeline struct {
	extractor *StructureExtractor
	evaluator Evaluator
	timeout   time.Duration
}

func NewPipeline(extractor *StructureExtractor, evaluator Evaluator, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = defaultPipelineTimeout
	}
	return &Pipeline{extractor: extractor, evaluator: evaluator, timeout: timeout}
}

type assessmentAttempt struct {
	review DocumentReview
	raw    string
}

type paragraphAttempt struct {
	sections []SectionResult
	raw      string
}

// Analyze is total: it always returns a fully-typed AnalysisResult. The
// returned error is non-nil only when the overall deadline elapsed, so the
// HTTP layer can distinguish a timeout (504) from a degraded-but-served
// analysis (200 with analysisError set).
func (p *Pipeline) Analyze(ctx context.Context, rawText string) (AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	structure := p.extractor.Extract(ctx, rawText)

	var problems []string
	note := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	abstractEval, err := p.evaluator.EvaluateAbstract(ctx, structure)
	if err != nil {
		log.Printf("abstract evaluation failed: %v", err)
		note("abstract evaluation unavailable")
	}

	para, err := withRetry(ctx,
		func(ctx context.Context, retry *RetryContext) (paragraphAttempt, error) {
			s, raw, err := p.evaluator.EvaluateParagraphs(ctx, structure, retry)
			return paragraphAttempt{sections: s, raw: raw}, err
		},
		func(a paragraphAttempt) bool { return CompleteEvaluations(structure, a.sections) },
		func(first paragraphAttempt) *RetryContext {
			return &RetryContext{
				PriorReply: first.raw,
				Correction: fmt.Sprintf(
					"Your previous attempt omitted %d paragraph evaluations. Include an evaluation for EVERY paragraph listed, in order. %s",
					missingEvaluations(structure, first.sections), StructuralHint(structure)),
			}
		},
	)
	sections := para.sections
	if err != nil {
		log.Printf("paragraph evaluation failed: %v", err)
		note("paragraph evaluation unavailable")
	} else if !CompleteEvaluations(structure, sections) {
		note("paragraph evaluation incomplete after retry")
	}

	var review DocumentReview
	if deadlineHit(ctx) {
		return p.degraded(structure, abstractEval, sections, review, problems)
	}

	attempt, err := withRetry(ctx,
		func(ctx context.Context, retry *RetryContext) (assessmentAttempt, error) {
			r, raw, err := p.evaluator.AssessDocument(ctx, structure, sections, retry)
			return assessmentAttempt{review: r, raw: raw}, err
		},
		func(a assessmentAttempt) bool { return CompleteAssessment(a.review.Assessment) },
		func(first assessmentAttempt) *RetryContext {
			return &RetryContext{
				PriorReply: first.raw,
				Correction: fmt.Sprintf(
					"Your previous reply omitted required documentAssessment keys: %s. Include ALL seven keys.",
					strings.Join(MissingCriteria(first.review.Assessment), ", ")),
			}
		},
	)
	review = attempt.review
	if err != nil {
		log.Printf("document assessment failed: %v", err)
		note("document assessment unavailable")
	} else if !CompleteAssessment(review.Assessment) {
		note("document assessment incomplete after retry")
	}

	if deadlineHit(ctx) {
		return p.degraded(structure, abstractEval, sections, review, problems)
	}
	return Aggregate(structure, abstractEval, sections, review, strings.Join(problems, "; ")), nil
}

func (p *Pipeline) degraded(structure DocumentStructure, abstractEval Evaluation, sections []SectionResult, review DocumentReview, problems []string) (AnalysisResult, error) {
	problems = append(problems, ErrPipelineTimeout.Error())
	return Aggregate(structure, abstractEval, sections, review, strings.Join(problems, "; ")), ErrPipelineTimeout
}

func deadlineHit(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
