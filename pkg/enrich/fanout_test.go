package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tendant/simple-clients/pkg/clientreg"
	"github.com/tendant/simple-clients/pkg/identity"
)

// fakeProfiles serves canned profiles and records lookup counts.
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*identity.Profile
	failing  map[string]bool
	delay    time.Duration
	calls    map[string]int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: make(map[string]*identity.Profile),
		failing:  make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (f *fakeProfiles) GetProfile(ctx context.Context, host, authCookie, principalID string) (*identity.Profile, error) {
	f.mu.Lock()
	f.calls[principalID]++
	fail := f.failing[principalID]
	profile := f.profiles[principalID]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("profile lookup failed for %s", principalID)
	}
	if profile == nil {
		return nil, fmt.Errorf("profile not found: %s", principalID)
	}
	return profile, nil
}

func testClients(creators ...string) []*clientreg.Client {
	clients := make([]*clientreg.Client, len(creators))
	for i, creator := range creators {
		clients[i] = &clientreg.Client{
			ClientID:   fmt.Sprintf("client-%d", i),
			Name:       fmt.Sprintf("App %d", i),
			ModifiedBy: creator,
		}
	}
	return clients
}

func TestEnrichClients_DecoratesCreators(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.profiles["alice@example.com"] = &identity.Profile{
		FirstName:   "Alice",
		LastName:    "Anders",
		AvatarSmall: "/avatars/alice-small.png",
	}

	e := NewEnricher(profiles)
	enriched := e.EnrichClients(context.Background(), "https://portal.example.com", "cookie", testClients("alice@example.com"))

	assert.Len(t, enriched, 1)
	assert.Equal(t, "Alice Anders", enriched[0].CreatorDisplayName)
	assert.Equal(t, "/avatars/alice-small.png", enriched[0].CreatorAvatar)
}

func TestEnrichClients_FailureIsolation(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.profiles["alice@example.com"] = &identity.Profile{FirstName: "Alice", LastName: "Anders"}
	profiles.failing["bob@example.com"] = true

	e := NewEnricher(profiles)
	enriched := e.EnrichClients(context.Background(), "https://portal.example.com", "cookie",
		testClients("bob@example.com", "alice@example.com"))

	// A failed lookup leaves its own client bare but never poisons the rest
	assert.Empty(t, enriched[0].CreatorDisplayName)
	assert.Equal(t, "Alice Anders", enriched[1].CreatorDisplayName)
	// Page order is untouched
	assert.Equal(t, "client-0", enriched[0].ClientID)
	assert.Equal(t, "client-1", enriched[1].ClientID)
}

func TestEnrichClients_OneLookupPerClient(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.profiles["alice@example.com"] = &identity.Profile{FirstName: "Alice", LastName: "Anders"}

	e := NewEnricher(profiles)
	enriched := e.EnrichClients(context.Background(), "https://portal.example.com", "cookie",
		testClients("alice@example.com", "alice@example.com", "alice@example.com"))

	assert.Equal(t, 3, profiles.calls["alice@example.com"], "each client's lookup is independent")
	for _, c := range enriched {
		assert.Equal(t, "Alice Anders", c.CreatorDisplayName)
	}
}

func TestEnrichClients_SlowLookupTimesOut(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.profiles["alice@example.com"] = &identity.Profile{FirstName: "Alice"}
	profiles.delay = 200 * time.Millisecond

	e := NewEnricher(profiles, WithLookupTimeout(20*time.Millisecond))

	start := time.Now()
	enriched := e.EnrichClients(context.Background(), "https://portal.example.com", "cookie",
		testClients("alice@example.com"))

	assert.Empty(t, enriched[0].CreatorDisplayName)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "page must not wait out a slow lookup")
}

func TestEnrichClients_SkipsEmptyCreator(t *testing.T) {
	profiles := newFakeProfiles()

	e := NewEnricher(profiles)
	enriched := e.EnrichClients(context.Background(), "https://portal.example.com", "cookie", testClients(""))

	assert.Len(t, enriched, 1)
	assert.Empty(t, profiles.calls)
}
