package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/konvergen/voicegate/internal/logging"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

// Classifier resolves emotion labels for text. Results come from the
// remote backend when reachable, from the keyword lexicon otherwise,
// and are cached either way so a failing input is not retried within
// the TTL window.
type Classifier struct {
	backendURL string
	client     *http.Client
	ttl        time.Duration
	log        *logging.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithTimeout overrides the remote call timeout.
func WithTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.client.Timeout = d }
}

// WithCacheTTL overrides the cache entry lifetime.
func WithCacheTTL(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.ttl = d }
}

// NewClassifier creates a Classifier talking to the given emotion backend.
func NewClassifier(backendURL string, log *logging.Logger, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     &http.Client{Timeout: defaultTimeout},
		ttl:        defaultCacheTTL,
		log:        log.Sub("emotion"),
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns an emotion classification for text. It never fails:
// empty input yields the neutral default, remote failures fall back to
// keyword matching, and no keyword match also yields the neutral default.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return neutralResult(c.now())
	}

	key := strings.ToLower(strings.TrimSpace(text))

	if res, ok := c.lookup(key); ok {
		c.log.Debug().Str("method", res.Method).Msg("cache hit")
		return res
	}

	// The remote call happens outside the cache lock. Two concurrent
	// misses for the same key may both reach here; the second store wins.
	res, err := c.classifyRemote(ctx, text)
	if err != nil {
		c.log.Warn().Err(err).Str("backend", c.backendURL).Msg("remote classification failed, using keyword fallback")
		res = c.classifyFallback(text, key)
	}

	c.store(key, res)
	return res
}

// CacheSize returns the number of cached entries, stale ones included.
func (c *Classifier) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// ClearCache drops all cached classifications.
func (c *Classifier) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// lookup returns a live cache entry. Stale entries are evicted and
// reported as a miss.
func (c *Classifier) lookup(key string) (Result, bool) {
	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok {
		return Result{}, false
	}

	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a fresh entry may have landed.
		if cur, ok := c.cache[key]; ok && c.now().Sub(cur.storedAt) >= c.ttl {
			delete(c.cache, key)
		}
		c.mu.Unlock()
		return Result{}, false
	}

	return entry.result, true
}

func (c *Classifier) store(key string, res Result) {
	c.mu.Lock()
	c.cache[key] = cacheEntry{result: res, storedAt: c.now()}
	c.mu.Unlock()
}

// analyzeResponse is the remote backend's wire format.
type analyzeResponse struct {
	Emotion       string             `json:"emotion"`
	Confidence    float64            `json:"confidence"`
	Emoticon      string             `json:"emoticon"`
	Method        string             `json:"method"`
	Matches       []string           `json:"matches"`
	AllScores     map[string]float64 `json:"all_scores"`
	TextLength    int                `json:"text_length"`
	ProcessedText string             `json:"processed_text"`
}

func (c *Classifier) classifyRemote(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.backendURL+"/api/emotion/analyze", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("creating analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading analyze response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("analyze backend returned %d: %s", resp.StatusCode, string(body))
	}

	var ar analyzeResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return Result{}, fmt.Errorf("parsing analyze response: %w", err)
	}

	res := Result{
		Emotion:       ar.Emotion,
		Confidence:    ar.Confidence,
		Emoticon:      ar.Emoticon,
		Method:        ar.Method,
		Matches:       ar.Matches,
		AllScores:     ar.AllScores,
		TextLength:    ar.TextLength,
		ProcessedText: ar.ProcessedText,
		Timestamp:     c.now(),
	}
	if res.Emotion == "" {
		res.Emotion = LabelNeutral
	}
	if res.Confidence == 0 {
		res.Confidence = 0.5
	}
	if res.Emoticon == "" {
		res.Emoticon = Emoticon(res.Emotion)
	}
	if res.Method == "" {
		res.Method = MethodRemote
	}
	if res.Matches == nil {
		res.Matches = []string{}
	}
	if res.AllScores == nil {
		res.AllScores = map[string]float64{}
	}
	if res.TextLength == 0 {
		res.TextLength = len(text)
	}
	if res.ProcessedText == "" {
		res.ProcessedText = strings.ToLower(text)
	}

	c.log.Info().
		Str("emotion", res.Emotion).
		Float64("confidence", res.Confidence).
		Str("method", res.Method).
		Msg("emotion analysis completed")
	return res, nil
}

func (c *Classifier) classifyFallback(text, lowered string) Result {
	label, keyword, ok := classifyByKeyword(lowered)
	if !ok {
		return neutralResult(c.now())
	}

	return Result{
		Emotion:       label,
		Confidence:    fallbackConfidence,
		Emoticon:      Emoticon(label),
		Method:        MethodFallback,
		Matches:       []string{keyword},
		AllScores:     map[string]float64{label: fallbackConfidence, LabelNeutral: 1 - fallbackConfidence},
		TextLength:    len(text),
		ProcessedText: lowered,
		Timestamp:     c.now(),
	}
}
