// Package generate sends compiled prompts to the configured language model
// and retries rate-limit rejections with the provider-suggested wait.
package generate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/topper-enrich/internal/config"
	"github.com/sells-group/topper-enrich/internal/prompt"
	"github.com/sells-group/topper-enrich/internal/resilience"
)

// DefaultWait is used when a rate-limit message carries no parsable duration.
const DefaultWait = 6 * time.Second

var (
	rateLimitPattern = regexp.MustCompile(`(?is)rate limit reached`)
	retryInPattern   = regexp.MustCompile(`(?is)rate limit reached.*?try again in(.*)`)
	waitTermPattern  = regexp.MustCompile(`(?i)^(?:\s*,?\s*(?:and\s+)?)([0-9]+(?:\.[0-9]+)?)\s*([a-zµ]+)`)
)

// waitUnits maps the unit spellings providers use in retry hints.
var waitUnits = map[string]time.Duration{
	"ms": time.Millisecond, "msec": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"us": time.Microsecond, "µs": time.Microsecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour, "hours": time.Hour,
}

// textPaths are tried in order against the response body.
var textPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
	"content.0.text",
	"candidates.0.content.parts.0.text",
	"output_text",
	"text",
}

// TerminalError reports a generation failure that will not be retried. The
// message is persisted on the record.
type TerminalError struct {
	Err      error
	Attempts int
}

func (e *TerminalError) Error() string {
	return e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Result is a successful generation.
type Result struct {
	Text     string
	Raw      []byte
	Attempts int
}

// Generator wraps a Provider with the per-call timeout and the bounded
// rate-limit retry loop.
type Generator struct {
	provider    Provider
	maxAttempts int
	defaultWait time.Duration
	timeout     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a Generator from the generation configuration.
func New(p Provider, cfg config.GenerationConfig) *Generator {
	g := &Generator{
		provider:    p,
		maxAttempts: cfg.MaxAttempts,
		defaultWait: time.Duration(cfg.DefaultWaitSecs * float64(time.Second)),
		timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 3
	}
	if g.defaultWait <= 0 {
		g.defaultWait = DefaultWait
	}
	if g.timeout <= 0 {
		g.timeout = 120 * time.Second
	}
	return g
}

// Generate sends p and returns the extracted model text. Rate-limit errors
// are retried up to the attempt limit; every other failure is returned
// immediately. Failures are *TerminalError unless ctx was canceled.
func (g *Generator) Generate(ctx context.Context, p prompt.Prompt, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("stage", "generate"))

	attempts := 0
	raw, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: g.maxAttempts,
		ShouldRetry: IsRateLimited,
		DelayFor: func(_ int, err error) (time.Duration, bool) {
			return RetryWait(err, g.defaultWait), true
		},
		OnRetry: func(attempt int, err error) {
			log.Warn("generate: rate limited, waiting",
				zap.Int("attempt", attempt),
				zap.Duration("wait", RetryWait(err, g.defaultWait)),
				zap.Error(err),
			)
		},
		Sleep: g.sleep,
	}, func(ctx context.Context) ([]byte, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.provider.Complete(callCtx, p)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsRateLimited(err) {
			err = fmt.Errorf("rate limited after %d attempts: %w", attempts, err)
		}
		return nil, &TerminalError{Err: err, Attempts: attempts}
	}

	logUsage(log, raw)
	return &Result{Text: ExtractText(raw), Raw: raw, Attempts: attempts}, nil
}

// IsRateLimited reports whether err is a rate-limit rejection, either typed
// or by its message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := resilience.AsRateLimit(err); ok {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

// RetryWait returns the wait requested by a rate-limit error: the duration in
// "try again in <d>" when parsable, else the typed RetryAfter, else def.
func RetryWait(err error, def time.Duration) time.Duration {
	if m := retryInPattern.FindStringSubmatch(err.Error()); m != nil {
		if d := parseWait(m[1]); d > 0 {
			return d
		}
	}
	if rl, ok := resilience.AsRateLimit(err); ok && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return def
}

// parseWait sums the leading "<number><unit>" terms of s. It accepts Go
// duration syntax ("1m2s", "450ms") as well as spelled-out units
// ("2 seconds", "1 minute and 5 seconds"). It returns 0 when s starts with
// no recognised term.
func parseWait(s string) time.Duration {
	var total time.Duration
	for {
		m := waitTermPattern.FindStringSubmatchIndex(s)
		if m == nil {
			return total
		}
		unit, ok := waitUnits[strings.ToLower(s[m[4]:m[5]])]
		if !ok {
			return total
		}
		n, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			return total
		}
		total += time.Duration(n * float64(unit))
		s = s[m[1]:]
	}
}

// ExtractText returns the model text from a provider response body. Known
// response shapes are tried in order; anything else yields the whole body.
func ExtractText(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range textPaths {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
				return r.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func logUsage(log *zap.Logger, body []byte) {
	usage := gjson.GetManyBytes(body,
		"usage.prompt_tokens", "usage.completion_tokens",
		"usage.input_tokens", "usage.output_tokens",
		"usageMetadata.promptTokenCount", "usageMetadata.candidatesTokenCount",
	)
	for i := 0; i < len(usage); i += 2 {
		if usage[i].Exists() || usage[i+1].Exists() {
			log.Info("generate: token usage",
				zap.Int64("input_tokens", usage[i].Int()),
				zap.Int64("output_tokens", usage[i+1].Int()),
			)
			return
		}
	}
}
