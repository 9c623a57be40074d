package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-clients/pkg/clientreg"
	"github.com/tendant/simple-clients/pkg/identity"
)

const (
	defaultLookupTimeout = 3 * time.Second
	defaultMaxConcurrent = 8
)

// EnrichedClient is a client decorated with display metadata about the
// account that created it.
type EnrichedClient struct {
	*clientreg.Client
	CreatorAvatar      string
	CreatorDisplayName string
}

// ProfileLookup resolves a principal's profile for display purposes.
// Satisfied by identity.Client.
type ProfileLookup interface {
	GetProfile(ctx context.Context, host, authCookie, principalID string) (*identity.Profile, error)
}

// Enricher decorates pages of clients with creator profile metadata
// fetched from the identity service.
type Enricher struct {
	profiles      ProfileLookup
	lookupTimeout time.Duration
	maxConcurrent int
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLookupTimeout bounds each individual profile lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		e.lookupTimeout = d
	}
}

// WithMaxConcurrent caps how many profile lookups run at once.
func WithMaxConcurrent(n int) Option {
	return func(e *Enricher) {
		e.maxConcurrent = n
	}
}

func NewEnricher(profiles ProfileLookup, opts ...Option) *Enricher {
	e := &Enricher{
		profiles:      profiles,
		lookupTimeout: defaultLookupTimeout,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnrichClients looks up the profile behind every client's modified_by
// concurrently and returns the decorated page in the same order.
// Enrichment is best-effort: a failed or slow lookup leaves that one
// client's creator fields empty and never fails the page. One lookup
// per client, so lookups stay failure-isolated from each other.
func (e *Enricher) EnrichClients(ctx context.Context, host, authCookie string, clients []*clientreg.Client) []EnrichedClient {
	enriched := make([]EnrichedClient, len(clients))
	for i, client := range clients {
		enriched[i] = EnrichedClient{Client: client}
	}
	if e.profiles == nil || len(clients) == 0 {
		return enriched
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for i, client := range clients {
		if client.ModifiedBy == "" {
			continue
		}
		i, principalID := i, client.ModifiedBy
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, e.lookupTimeout)
			defer cancel()

			profile, err := e.profiles.GetProfile(lookupCtx, host, authCookie, principalID)
			if err != nil {
				// Missing metadata is cosmetic; log and move on
				slog.Warn("Failed to resolve creator profile", "principal", principalID, "err", err)
				return nil
			}
			// Each goroutine owns exactly one slot
			enriched[i].CreatorAvatar = profile.AvatarSmall
			enriched[i].CreatorDisplayName = profile.DisplayName()
			return nil
		})
	}
	// Workers only return nil; Wait is for completion, not errors
	_ = g.Wait()

	return enriched
}

// EnrichClient decorates a single client.
func (e *Enricher) EnrichClient(ctx context.Context, host, authCookie string, client *clientreg.Client) EnrichedClient {
	page := e.EnrichClients(ctx, host, authCookie, []*clientreg.Client{client})
	return page[0]
}
