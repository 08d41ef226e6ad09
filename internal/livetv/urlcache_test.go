package livetv

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestURLCacheKindTTL(t *testing.T) {
	c := NewURLCache(URLCacheConfig{
		MaxEntries: 10,
		HLSTTL:     time.Hour,
		DirectTTL:  20 * time.Millisecond,
	}, zerolog.Nop())

	c.Put(1, "hls-ch", ResolvedStreamURL{URL: "http://example.com/a.m3u8", Kind: StreamKindHLS})
	c.Put(1, "direct-ch", ResolvedStreamURL{URL: "http://example.com/a.ts", Kind: StreamKindDirect})

	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get(1, "hls-ch"); !ok {
		t.Error("HLS entry expired under the direct TTL")
	}
	if _, ok := c.Get(1, "direct-ch"); ok {
		t.Error("direct entry survived past its TTL")
	}
}

func TestURLCacheProviderExpiryWins(t *testing.T) {
	c := NewURLCache(URLCacheConfig{MaxEntries: 10, HLSTTL: time.Hour, DirectTTL: time.Hour}, zerolog.Nop())

	c.Put(1, "ch", ResolvedStreamURL{
		URL:       "http://example.com/tokenised.m3u8",
		Kind:      StreamKindHLS,
		ExpiresAt: time.Now().Add(10 * time.Millisecond),
	})

	if _, ok := c.Get(1, "ch"); !ok {
		t.Fatal("entry missing before provider expiry")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(1, "ch"); ok {
		t.Error("entry outlived the provider-reported expiry")
	}
}

func TestURLCacheEvictsLeastRecentlyAccessed(t *testing.T) {
	c := NewURLCache(URLCacheConfig{MaxEntries: 3, HLSTTL: time.Hour, DirectTTL: time.Hour}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		c.Put(1, fmt.Sprintf("ch%d", i), ResolvedStreamURL{URL: "http://example.com", Kind: StreamKindHLS})
		time.Sleep(2 * time.Millisecond)
	}
	// Refresh ch0; ch1 becomes the eviction victim.
	c.Get(1, "ch0")
	time.Sleep(2 * time.Millisecond)
	c.Put(1, "ch3", ResolvedStreamURL{URL: "http://example.com", Kind: StreamKindHLS})

	if _, ok := c.Get(1, "ch1"); ok {
		t.Error("least recently accessed entry survived eviction")
	}
	for _, ref := range []string{"ch0", "ch2", "ch3"} {
		if _, ok := c.Get(1, ref); !ok {
			t.Errorf("entry %s evicted unexpectedly", ref)
		}
	}
}

func TestURLCacheInvalidateAccount(t *testing.T) {
	c := NewURLCache(DefaultURLCacheConfig(), zerolog.Nop())

	c.Put(1, "a", ResolvedStreamURL{URL: "http://example.com/1a", Kind: StreamKindHLS})
	c.Put(1, "b", ResolvedStreamURL{URL: "http://example.com/1b", Kind: StreamKindHLS})
	c.Put(2, "a", ResolvedStreamURL{URL: "http://example.com/2a", Kind: StreamKindHLS})

	c.InvalidateAccount(1)

	if _, ok := c.Get(1, "a"); ok {
		t.Error("account 1 entry survived InvalidateAccount")
	}
	if _, ok := c.Get(1, "b"); ok {
		t.Error("account 1 entry survived InvalidateAccount")
	}
	if _, ok := c.Get(2, "a"); !ok {
		t.Error("account 2 entry was collateral damage")
	}
}

func TestURLCacheSweep(t *testing.T) {
	c := NewURLCache(URLCacheConfig{MaxEntries: 10, HLSTTL: time.Hour, DirectTTL: 10 * time.Millisecond}, zerolog.Nop())

	c.Put(1, "keep", ResolvedStreamURL{Kind: StreamKindHLS})
	c.Put(1, "drop1", ResolvedStreamURL{Kind: StreamKindDirect})
	c.Put(1, "drop2", ResolvedStreamURL{Kind: StreamKindDirect})
	time.Sleep(30 * time.Millisecond)

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", c.Len())
	}
}
