package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

var ErrUnknownVoice = errors.New("unknown voice")

// Catalog caches a provider's voice list for a bounded time. It is owned by
// whoever constructs it; there is no package-level cache.
type Catalog struct {
	src Lister
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	voices    []Voice
	fetchedAt time.Time
}

func NewCatalog(src Lister, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Catalog{src: src, ttl: ttl, now: time.Now}
}

// Voices returns the cached list, fetching it when empty or older than the TTL.
// A failed refresh falls back to the stale list when there is one.
func (c *Catalog) Voices(ctx context.Context) ([]Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voices != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return cloneVoices(c.voices), nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		if c.voices != nil {
			log.Printf("voice catalog refresh failed, serving stale list: %v", err)
			return cloneVoices(c.voices), nil
		}
		return nil, err
	}
	return cloneVoices(c.voices), nil
}

// Refresh drops the cached list and fetches it again.
func (c *Catalog) Refresh(ctx context.Context) ([]Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return cloneVoices(c.voices), nil
}

// Lookup finds a voice by id or, failing that, by label (case-insensitive).
func (c *Catalog) Lookup(ctx context.Context, key string) (Voice, error) {
	key = strings.TrimSpace(key)
	voices, err := c.Voices(ctx)
	if err != nil {
		return Voice{}, err
	}
	for _, v := range voices {
		if v.ID == key {
			return v, nil
		}
	}
	for _, v := range voices {
		if strings.EqualFold(v.Label, key) {
			return v, nil
		}
	}
	return Voice{}, ErrUnknownVoice
}

// FetchedAt reports when the list was last loaded.
func (c *Catalog) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}

func (c *Catalog) refreshLocked(ctx context.Context) error {
	voices, err := c.src.ListVoices(ctx)
	if err != nil {
		return err
	}
	c.voices = uniqueLabels(voices)
	c.fetchedAt = c.now()
	return nil
}

// uniqueLabels suffixes repeated labels with the voice id. Labels name the
// generated segment files, so two voices must never share one.
func uniqueLabels(in []Voice) []Voice {
	out := make([]Voice, len(in))
	copy(out, in)
	taken := make(map[string]bool, len(out))
	for i := range out {
		label := out[i].Label
		if taken[strings.ToLower(label)] {
			label = fmt.Sprintf("%s (%s)", label, out[i].ID)
		}
		taken[strings.ToLower(label)] = true
		out[i].Label = label
	}
	return out
}

func cloneVoices(in []Voice) []Voice {
	out := make([]Voice, len(in))
	copy(out, in)
	return out
}
