package research

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topper-enrich/internal/config"
	"github.com/sells-group/topper-enrich/internal/model"
	"github.com/sells-group/topper-enrich/internal/resilience"
	"github.com/sells-group/topper-enrich/pkg/jina"
	"github.com/sells-group/topper-enrich/pkg/serper"
)

// Searcher issues one search query and maps the hits into evidence.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]model.Evidence, error)
}

// NewSearcher builds the provider selected by cfg.Provider.
func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	switch cfg.Provider {
	case "", config.SearchSerper:
		var opts []serper.Option
		if cfg.BaseURL != "" {
			opts = append(opts, serper.WithBaseURL(cfg.BaseURL))
		}
		return &SerperSearcher{client: serper.NewClient(cfg.Key, opts...)}, nil
	case config.SearchJina:
		var opts []jina.Option
		if cfg.BaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.BaseURL))
		}
		return &JinaSearcher{client: jina.NewClient(cfg.Key, opts...)}, nil
	default:
		return nil, eris.Errorf("research: unknown search provider %q", cfg.Provider)
	}
}

// SerperSearcher adapts a serper.Client.
type SerperSearcher struct {
	client serper.Client
}

// NewSerperSearcher wraps an existing serper client.
func NewSerperSearcher(c serper.Client) *SerperSearcher {
	return &SerperSearcher{client: c}
}

func (s *SerperSearcher) Search(ctx context.Context, query string, num int) ([]model.Evidence, error) {
	resp, err := s.client.Search(ctx, serper.SearchRequest{Query: query, Num: num, Autocorrect: true})
	if err != nil {
		var se *serper.StatusError
		if errors.As(err, &se) {
			return nil, classifyStatus(err, se.StatusCode)
		}
		return nil, err
	}
	out := make([]model.Evidence, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		out = append(out, model.Evidence{
			Source:  sourceOf(r.Link, config.SearchSerper),
			Title:   r.Title,
			Snippet: r.Snippet,
			URL:     r.Link,
		})
	}
	return out, nil
}

// JinaSearcher adapts a jina.Client.
type JinaSearcher struct {
	client jina.Client
}

func (s *JinaSearcher) Search(ctx context.Context, query string, num int) ([]model.Evidence, error) {
	resp, err := s.client.Search(ctx, query, num)
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) {
			return nil, classifyStatus(err, se.StatusCode)
		}
		return nil, err
	}
	out := make([]model.Evidence, 0, len(resp.Data))
	for _, r := range resp.Data {
		out = append(out, model.Evidence{
			Source:  sourceOf(r.URL, config.SearchJina),
			Title:   r.Title,
			Snippet: r.Description,
			URL:     r.URL,
		})
	}
	return out, nil
}

// classifyStatus marks provider outages and throttling as transient. Search
// queries are never retried; the classification only feeds the collector's
// "transient" log field.
func classifyStatus(err error, status int) error {
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

// sourceOf returns the bare host of link, or fallback when link has none.
func sourceOf(link, fallback string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return fallback
	}
	return strings.TrimPrefix(u.Host, "www.")
}
