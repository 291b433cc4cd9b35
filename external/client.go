// Package external wraps the three out-of-core collaborators: the
// player-metadata service, the wiki semantic service, and the GE pricing
// service. Each client uses a shared *http.Client with a hard per-call
// timeout, context-scoped requests, and response bodies drained before
// close.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Hard per-call timeout budgets.
const (
	MetadataTimeout = 10 * time.Second
	SemanticTimeout = 5 * time.Second
	PricingTimeout  = 5 * time.Second
)

// ErrTransientUpstream is returned on timeout or transport failure.
// Processors surface it as
// retriable without persisting anything.
type ErrTransientUpstream struct {
	Upstream string
	Cause    error
}

func (e *ErrTransientUpstream) Error() string {
	return fmt.Sprintf("external: %s upstream unavailable: %v", e.Upstream, e.Cause)
}
func (e *ErrTransientUpstream) Unwrap() error { return e.Cause }

// PlayerMetadata is what the metadata service returns for a resolved name.
type PlayerMetadata struct {
	ExternalPlayerID   uint `json:"external_player_id"`
	CollectionLogSlots int  `json:"collection_log_slots"`
	TotalLevel         int  `json:"total_level"`
}

// KillCount is used by the PB processor's 50-KC threshold check.
type KillCount struct {
	NpcID uint `json:"npc_id"`
	Count int  `json:"kill_count"`
}

// Client is the small rate-limited HTTP client module (100 req / 65s by
// convention). One Client instance is shared across requests; limiter
// enforces the convention without a hard dependency on a rate-limiting
// library.
type Client struct {
	MetadataBaseURL string
	SemanticBaseURL string
	PricingBaseURL  string

	httpClient *http.Client
	limiter    *rateLimiter

	priceCacheMu sync.Mutex
	priceCache   map[string]cachedPrice
}

type cachedPrice struct {
	high, low int64
	fetchedAt time.Time
}

const priceCacheTTL = 2 * time.Minute

func New(metadataBaseURL, semanticBaseURL, pricingBaseURL string) *Client {
	return &Client{
		MetadataBaseURL: metadataBaseURL,
		SemanticBaseURL: semanticBaseURL,
		PricingBaseURL:  pricingBaseURL,
		httpClient:      &http.Client{},
		limiter:         newRateLimiter(100, 65*time.Second),
		priceCache:      make(map[string]cachedPrice),
	}
}

func (c *Client) get(ctx context.Context, timeout time.Duration, rawURL string, out interface{}) error {
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ErrTransientUpstream{Upstream: rawURL, Cause: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &ErrTransientUpstream{Upstream: rawURL, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var errNotFound = fmt.Errorf("external: not found")

// LookupPlayer resolves a display name against the external metadata
// service, the resolver's create-on-miss fallback path.
func (c *Client) LookupPlayer(ctx context.Context, displayName string) (*PlayerMetadata, bool, error) {
	if c.MetadataBaseURL == "" {
		return nil, false, nil
	}
	u := fmt.Sprintf("%s/players/%s", c.MetadataBaseURL, url.PathEscape(displayName))
	var meta PlayerMetadata
	err := c.get(ctx, MetadataTimeout, u, &meta)
	if err == errNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &meta, true, nil
}

// KillCountAt returns the player's KC at the given NPC, used by the PB
// processor's new-PB point award gate.
func (c *Client) KillCountAt(ctx context.Context, externalPlayerID, npcID uint) (int, error) {
	if c.MetadataBaseURL == "" {
		return 0, nil
	}
	u := fmt.Sprintf("%s/players/%d/kc/%d", c.MetadataBaseURL, externalPlayerID, npcID)
	var kc KillCount
	if err := c.get(ctx, MetadataTimeout, u, &kc); err != nil {
		if err == errNotFound {
			return 0, nil
		}
		return 0, err
	}
	return kc.Count, nil
}

// GroupRoster fetches the authoritative membership for an external group id,
// returning each member's external_player_id. An error here makes
// the group syncer skip removals for the pass.
func (c *Client) GroupRoster(ctx context.Context, externalGroupID string) ([]uint, error) {
	if c.MetadataBaseURL == "" {
		return nil, nil
	}
	u := fmt.Sprintf("%s/groups/%s/members", c.MetadataBaseURL, url.PathEscape(externalGroupID))
	var out struct {
		Members []uint `json:"members"`
	}
	err := c.get(ctx, MetadataTimeout, u, &out)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.Members, nil
}

// ItemExists answers the semantic service's item_exists(name) contract.
func (c *Client) ItemExists(ctx context.Context, itemName string) (bool, error) {
	if c.SemanticBaseURL == "" {
		return false, nil
	}
	u := fmt.Sprintf("%s/items/exists?name=%s", c.SemanticBaseURL, url.QueryEscape(itemName))
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.get(ctx, SemanticTimeout, u, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// NpcID answers the semantic service's npc_id(name) contract.
func (c *Client) NpcID(ctx context.Context, npcName string) (uint, bool, error) {
	if c.SemanticBaseURL == "" {
		return 0, false, nil
	}
	u := fmt.Sprintf("%s/npcs/id?name=%s", c.SemanticBaseURL, url.QueryEscape(npcName))
	var out struct {
		NpcID uint `json:"npc_id"`
	}
	err := c.get(ctx, SemanticTimeout, u, &out)
	if err == errNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return out.NpcID, true, nil
}

// Drops answers the semantic service's drops(item, npc) contract, used by
// the Drop processor's high-value verification step.
func (c *Client) Drops(ctx context.Context, itemName, npcName string) (bool, error) {
	if c.SemanticBaseURL == "" {
		return true, nil
	}
	u := fmt.Sprintf("%s/drops?item=%s&npc=%s", c.SemanticBaseURL,
		url.QueryEscape(itemName), url.QueryEscape(npcName))
	var out struct {
		Drops bool `json:"drops"`
	}
	if err := c.get(ctx, SemanticTimeout, u, &out); err != nil {
		return false, err
	}
	return out.Drops, nil
}

// CATierIndex returns the ordered index of a combat achievement tier,
// looked up in the static in-process caTierOrder list. Unknown tiers return -1.
func (c *Client) CATierIndex(tier string) int {
	for i, t := range caTierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}

var caTierOrder = []string{"easy", "medium", "hard", "elite", "master", "grandmaster"}

// GEPrice returns (high, low) Grand Exchange prices, cached for
// priceCacheTTL to avoid hitting the pricing service on every high-value
// drop.
func (c *Client) GEPrice(ctx context.Context, itemName string) (high, low int64, err error) {
	c.priceCacheMu.Lock()
	if cached, ok := c.priceCache[itemName]; ok && time.Since(cached.fetchedAt) < priceCacheTTL {
		c.priceCacheMu.Unlock()
		return cached.high, cached.low, nil
	}
	c.priceCacheMu.Unlock()

	if c.PricingBaseURL == "" {
		return 0, 0, nil
	}
	u := fmt.Sprintf("%s/prices?item=%s", c.PricingBaseURL, url.QueryEscape(itemName))
	var out struct {
		High int64 `json:"high"`
		Low  int64 `json:"low"`
	}
	if err := c.get(ctx, PricingTimeout, u, &out); err != nil {
		return 0, 0, err
	}

	c.priceCacheMu.Lock()
	c.priceCache[itemName] = cachedPrice{high: out.High, low: out.Low, fetchedAt: time.Now()}
	c.priceCacheMu.Unlock()

	return out.High, out.Low, nil
}
