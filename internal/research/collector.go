// Package research gathers web-search evidence about a topper before
// generation.
package research

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/sells-group/topper-enrich/internal/config"
	"github.com/sells-group/topper-enrich/internal/model"
	"github.com/sells-group/topper-enrich/internal/resilience"
)

const (
	// MaxEvidence caps the deduplicated evidence set.
	MaxEvidence = 20
	// ResultsPerQuery is the result count requested from the provider.
	ResultsPerQuery = 8

	maxKeyRunes = 200
)

// queryTemplates are expanded in order. Placeholders: {name} {rank} {year} {exam}.
var queryTemplates = []string{
	"{name} {exam} topper AIR {rank} {year}",
	"{name} {exam} {year} rank {rank} preparation strategy",
	"{name} {exam} {year} interview optional subject",
	"{name} {exam} topper biography background",
}

// Collector runs the query set for a topper and returns deduplicated evidence.
// It is safe for concurrent use.
type Collector struct {
	searcher  Searcher
	breaker   *resilience.CircuitBreaker
	limiter   *rate.Limiter
	exam      string
	num       int
	maxItems  int
	timeout   time.Duration
	minDelay  time.Duration
	maxDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// NewCollector creates a Collector from the search configuration.
func NewCollector(s Searcher, cfg config.SearchConfig) *Collector {
	c := &Collector{
		searcher:  s,
		breaker:   newBreaker(cfg),
		exam:      cfg.Exam,
		num:       cfg.ResultsPerQuery,
		maxItems:  cfg.MaxEvidence,
		timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		minDelay:  time.Duration(cfg.MinDelayMs) * time.Millisecond,
		maxDelay:  time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
	if c.exam == "" {
		c.exam = "UPSC"
	}
	if c.num <= 0 {
		c.num = ResultsPerQuery
	}
	if c.maxItems <= 0 || c.maxItems > MaxEvidence {
		c.maxItems = MaxEvidence
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if c.maxDelay < c.minDelay {
		c.maxDelay = c.minDelay
	}
	if cfg.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return c
}

// newBreaker builds the provider breaker. A run being canceled is not a
// provider failure.
func newBreaker(cfg config.SearchConfig) *resilience.CircuitBreaker {
	bc := resilience.FromCircuitConfig(cfg.BreakerThreshold, cfg.BreakerResetSecs)
	bc.ShouldTrip = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	bc.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("research: search circuit changed state",
			zap.String("provider", cfg.Provider),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return resilience.NewCircuitBreaker(bc)
}

// Queries expands the query templates for t. Missing fields become empty
// strings; the result is whitespace-collapsed and NFC-normalised.
func Queries(t model.Topper, exam string) []string {
	r := strings.NewReplacer(
		"{name}", t.FullName(),
		"{rank}", t.RankString(),
		"{year}", t.YearString(),
		"{exam}", exam,
	)
	out := make([]string, len(queryTemplates))
	for i, tmpl := range queryTemplates {
		q := strings.Join(strings.Fields(r.Replace(tmpl)), " ")
		out[i] = norm.NFC.String(q)
	}
	return out
}

// Collect runs every query for t and returns at most MaxEvidence unique
// items. Provider failures are logged and contribute nothing; Collect never
// fails.
func (c *Collector) Collect(ctx context.Context, t model.Topper, log *zap.Logger) []model.Evidence {
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("stage", "research"))

	var all []model.Evidence
	for _, q := range Queries(t, c.exam) {
		if ctx.Err() != nil {
			break
		}
		items, err := c.query(ctx, q)
		if err != nil {
			log.Warn("research: query failed",
				zap.String("query", q),
				zap.Bool("transient", resilience.IsTransient(err)),
				zap.Error(err),
			)
			continue
		}
		all = append(all, items...)
	}

	out := Dedupe(all, c.maxItems)
	log.Debug("research: collected evidence", zap.Int("raw", len(all)), zap.Int("kept", len(out)))
	return out
}

func (c *Collector) query(ctx context.Context, q string) ([]model.Evidence, error) {
	if err := c.sleep(ctx, c.jitter()); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]model.Evidence, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.searcher.Search(callCtx, q, c.num)
	})
}

func (c *Collector) jitter() time.Duration {
	span := c.maxDelay - c.minDelay
	return c.minDelay + time.Duration(c.randFloat()*float64(span))
}

// Dedupe removes items sharing a key (URL, else title, else snippet, capped
// at 200 runes), keeps first-seen order, and truncates to max items.
func Dedupe(items []model.Evidence, max int) []model.Evidence {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.Evidence, 0, min(len(items), max))
	for _, it := range items {
		if len(out) >= max {
			break
		}
		k := dedupeKey(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupeKey(e model.Evidence) string {
	k := strings.TrimSpace(e.URL)
	if k == "" {
		k = strings.TrimSpace(e.Title)
	}
	if k == "" {
		k = strings.TrimSpace(e.Snippet)
	}
	if r := []rune(k); len(r) > maxKeyRunes {
		k = string(r[:maxKeyRunes])
	}
	return k
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
