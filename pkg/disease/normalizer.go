package disease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNoMatch reports that the disease normalizer found no concept for a
// term. Callers keep the unresolved term and move on.
var ErrNoMatch = errors.New("disease: no match")

// Normalizer resolves a disease term to a normalized disease concept id.
type Normalizer interface {
	Normalize(ctx context.Context, term string) (string, error)
}

// Client calls a disease normalization service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  ectologger.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger ectologger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type normalizeResponse struct {
	MatchType    string `json:"match_type"`
	NormalizedID string `json:"normalized_id"`
}

func (c *Client) Normalize(ctx context.Context, term string) (string, error) {
	endpoint := fmt.Sprintf("%s/disease/normalize?q=%s", c.baseURL, url.QueryEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoMatch
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("disease normalizer returned status %d", resp.StatusCode)
	}

	var body normalizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.NormalizedID == "" || body.MatchType == "no_match" {
		return "", ErrNoMatch
	}

	return body.NormalizedID, nil
}

// Cached wraps a Normalizer with a bounded LRU so repeated indications for
// the same disease hit the service once per load. No-match results are
// cached; transport errors are not.
type Cached struct {
	inner Normalizer
	cache *lru.Cache[string, string]
}

func NewCached(inner Normalizer, size int) (*Cached, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Normalize(ctx context.Context, term string) (string, error) {
	key := normalizeKey(term)
	if id, ok := c.cache.Get(key); ok {
		if id == "" {
			return "", ErrNoMatch
		}
		return id, nil
	}

	id, err := c.inner.Normalize(ctx, term)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			c.cache.Add(key, "")
		}
		return "", err
	}

	c.cache.Add(key, id)
	return id, nil
}

func normalizeKey(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
