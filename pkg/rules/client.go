// Package rules looks up game rules content from the open 5e SRD API.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public SRD API endpoint.
const DefaultBaseURL = "https://www.dnd5eapi.co"

// Categories the search tools accept.
var Categories = []string{"spells", "monsters", "equipment", "magic-items", "conditions", "rules"}

// Client queries the SRD API with an in-memory TTL cache so repeated lookups
// in one play session avoid the network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host, used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithCacheTTL overrides the default 30 minute cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// NewClient creates a rules Client.
func NewClient(logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		cacheTTL:   30 * time.Minute,
		cache:      make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	if entry, ok := c.cache[path]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.body, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rules request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rules lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no rules entry at %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rules API error (status %d): %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules response: %w", err)
	}

	c.mu.Lock()
	c.cache[path] = cacheEntry{body: body, expiresAt: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()

	c.logger.Debug().Str("path", path).Msg("Rules entry fetched")
	return body, nil
}

// Reference is one index entry returned by a category search.
type Reference struct {
	Index string `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// Search finds entries in a category whose name contains the query.
func (c *Client) Search(ctx context.Context, category, query string) ([]Reference, error) {
	if !validCategory(category) {
		return nil, fmt.Errorf("unknown rules category %q: expected one of %s", category, strings.Join(Categories, ", "))
	}

	path := "/api/" + category
	if query != "" {
		path += "?name=" + url.QueryEscape(query)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []Reference `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse rules index: %w", err)
	}
	return out.Results, nil
}

// Lookup fetches one entry by its index within a category and formats it for
// the facilitator.
func (c *Client) Lookup(ctx context.Context, category, index string) (string, error) {
	if !validCategory(category) {
		return "", fmt.Errorf("unknown rules category %q: expected one of %s", category, strings.Join(Categories, ", "))
	}

	body, err := c.get(ctx, "/api/"+category+"/"+url.PathEscape(slugify(index)))
	if err != nil {
		return "", err
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(body, &entry); err != nil {
		return "", fmt.Errorf("failed to parse rules entry: %w", err)
	}
	return formatEntry(category, entry), nil
}

// challengeRatings is the discrete set of CR values the SRD uses.
var challengeRatings = func() []float64 {
	crs := []float64{0, 0.125, 0.25, 0.5}
	for cr := 1; cr <= 30; cr++ {
		crs = append(crs, float64(cr))
	}
	return crs
}()

// MonstersByCR lists monsters whose challenge rating falls in [minCR, maxCR].
// The API filters on exact values, so the range expands to the SRD's discrete
// CR steps.
func (c *Client) MonstersByCR(ctx context.Context, minCR, maxCR float64) ([]Reference, error) {
	if maxCR < minCR {
		minCR, maxCR = maxCR, minCR
	}

	var values []string
	for _, cr := range challengeRatings {
		if cr >= minCR && cr <= maxCR {
			values = append(values, strconv.FormatFloat(cr, 'f', -1, 64))
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no challenge ratings between %g and %g", minCR, maxCR)
	}

	path := "/api/monsters?challenge_rating=" + strings.Join(values, ",")
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []Reference `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse monster index: %w", err)
	}
	return out.Results, nil
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}

// formatEntry renders an SRD record as compact markdown. It picks the fields
// players actually ask about and skips API bookkeeping.
func formatEntry(category string, entry map[string]interface{}) string {
	var b strings.Builder
	if name, ok := entry["name"].(string); ok {
		fmt.Fprintf(&b, "**%s**\n", name)
	}

	switch category {
	case "spells":
		writeField(&b, "Level", entry["level"])
		writeField(&b, "Range", entry["range"])
		writeField(&b, "Casting Time", entry["casting_time"])
		writeField(&b, "Duration", entry["duration"])
		writeStrings(&b, "", entry["desc"])
	case "monsters":
		writeField(&b, "Type", entry["type"])
		writeField(&b, "AC", firstArmorClass(entry["armor_class"]))
		writeField(&b, "HP", entry["hit_points"])
		writeField(&b, "CR", entry["challenge_rating"])
		writeField(&b, "Speed", formatSpeed(entry["speed"]))
	case "conditions", "rules":
		writeStrings(&b, "", entry["desc"])
	default:
		writeStrings(&b, "", entry["desc"])
		writeField(&b, "Cost", formatCost(entry["cost"]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, label string, value interface{}) {
	if value == nil {
		return
	}
	switch v := value.(type) {
	case string:
		if v != "" {
			fmt.Fprintf(b, "%s: %s\n", label, v)
		}
	case float64:
		fmt.Fprintf(b, "%s: %g\n", label, v)
	}
}

func writeStrings(b *strings.Builder, label string, value interface{}) {
	items, ok := value.([]interface{})
	if !ok {
		return
	}
	if label != "" {
		fmt.Fprintf(b, "%s:\n", label)
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			fmt.Fprintf(b, "%s\n", s)
		}
	}
}

func firstArmorClass(value interface{}) interface{} {
	items, ok := value.([]interface{})
	if !ok || len(items) == 0 {
		return nil
	}
	entry, ok := items[0].(map[string]interface{})
	if !ok {
		return nil
	}
	return entry["value"]
}

func formatSpeed(value interface{}) interface{} {
	speeds, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	var parts []string
	for _, mode := range []string{"walk", "fly", "swim", "burrow", "climb"} {
		if v, ok := speeds[mode].(string); ok {
			parts = append(parts, mode+" "+v)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, ", ")
}

func formatCost(value interface{}) interface{} {
	cost, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	qty, _ := cost["quantity"].(float64)
	unit, _ := cost["unit"].(string)
	if unit == "" {
		return nil
	}
	return fmt.Sprintf("%g %s", qty, unit)
}
