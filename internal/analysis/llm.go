package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a scientific-writing reviewer applying a fixed rule catalog to a manuscript. " +
	"Judge strictly: a rule flag is true only when every checkpoint is evidently satisfied. Respond with strict JSON only."

type oracleFailureClass int

const (
	failureNone oracleFailureClass = iota
	failureParse
	failureEmpty
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// Caller is the narrow oracle interface the whole pipeline depends on. The
// oracle may time out, return nothing, or return non-conformant text; callers
// recover locally and never leak provider errors upward.
type Caller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    anthropic.Model
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// NewAnthropicCaller builds the production oracle client. The model may be
// empty, in which case the default snapshot is used.
func NewAnthropicCaller(apiKey, model string) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	m := anthropic.ModelClaudeSonnet4_20250514
	if strings.TrimSpace(model) != "" {
		m = anthropic.Model(model)
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: m}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   8192,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// UnavailableCaller stands in when no oracle is configured. Every call fails
// immediately, so the pipeline runs on its deterministic fallbacks and the
// result carries an analysis error instead of evaluations.
type UnavailableCaller struct{}

func (UnavailableCaller) GenerateJSON(context.Context, string) (string, error) {
	return "", errors.New("oracle not configured")
}

// UnitError names the pipeline unit whose oracle call failed.
type UnitError struct {
	Unit string
	Err  error
}

func (e *UnitError) Error() string { return fmt.Sprintf("%s: %v", e.Unit, e.Err) }
func (e *UnitError) Unwrap() error { return e.Err }

// UnitMetrics counts oracle traffic for one evaluated unit.
type UnitMetrics struct {
	Attempts       int
	ContentRetries int
}

// Executor runs one oracle call with bounded recovery: transient transport
// failures are retried after a short backoff, and malformed or schema-invalid
// replies earn one corrective re-prompt. Structural completeness is not
// checked here; that belongs to the validator.
type Executor struct {
	caller Caller
}

func NewExecutor(caller Caller) *Executor {
	return &Executor{caller: caller}
}

const executorAttempts = 2

func (e *Executor) Run(ctx context.Context, unit, prompt string, out any, validate func() error) (UnitMetrics, error) {
	metrics := UnitMetrics{}
	feedback := ""
	for attempt := 1; attempt <= executorAttempts; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < executorAttempts && ctx.Err() == nil {
					time.Sleep(backoffDelay(attempt))
					continue
				}
			}
			return metrics, &UnitError{Unit: unit, Err: fmt.Errorf("transport failure: %w", err)}
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < executorAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, &UnitError{Unit: unit, Err: errors.New("empty response")}
		}

		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < executorAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, &UnitError{Unit: unit, Err: fmt.Errorf("json parse: %w", err)}
		}
		if validate != nil {
			if err := validate(); err != nil {
				if attempt < executorAttempts {
					metrics.ContentRetries++
					feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
					continue
				}
				return metrics, &UnitError{Unit: unit, Err: fmt.Errorf("validation: %w", err)}
			}
		}
		return metrics, nil
	}
	return metrics, &UnitError{Unit: unit, Err: errors.New("failed after retries")}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) oracleFailureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, "status code: 4") || strings.Contains(msg, "authentication"),
		strings.Contains(msg, "not configured"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}
