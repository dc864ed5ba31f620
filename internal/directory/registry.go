package directory

import (
	"errors"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgedir/rd/pkg/linkformat"
)

type registrationKey struct {
	domain string
	name   string
}

// EvictFunc observes registrations leaving the registry. expired is true
// for lifetime expiry, false for explicit removal. The callback runs with
// the evicted registration's lock held and must not call back into it.
type EvictFunc func(r *Registration, expired bool)

// Registry is the process-wide table of live registrations, keyed by
// (domain, endpoint name) with a secondary index by location token. It is
// constructed once at startup and injected into every handler; state is
// purely in-memory and rebuilt only by re-registration.
type Registry struct {
	clock  clock.Clock
	logger *zap.Logger

	mu         sync.RWMutex
	byKey      map[registrationKey]*Registration
	byLocation map[string]*Registration
	onEvict    EvictFunc
}

// NewRegistry creates an empty registry. A nil clk selects the real clock;
// tests inject a mock for deterministic expiry.
func NewRegistry(clk clock.Clock, logger *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clock:      clk,
		logger:     logger,
		byKey:      make(map[registrationKey]*Registration),
		byLocation: make(map[string]*Registration),
	}
}

// SetEvictHook installs the eviction observer. Call before serving.
func (g *Registry) SetEvictHook(fn EvictFunc) {
	g.onEvict = fn
}

// RegisterOrUpdate is the registration interface: it atomically finds or
// creates the registration for (domain, name), applies the request's
// parameters and payload to it, and reports whether it was newly created
// (the Created-vs-Changed response depends on that). Two concurrent
// first-time registrations for one key are serialized so exactly one
// creates.
//
// A failed first registration leaves the registry unchanged.
func (g *Registry) RegisterOrUpdate(domain, name string, query linkformat.Query, payload []byte, src Source) (*Registration, bool, error) {
	if name == "" {
		return nil, false, &ErrValidation{Msg: "missing endpoint name (?ep)"}
	}
	if err := validateLabel("endpoint name", name); err != nil {
		return nil, false, err
	}
	if domain == "" {
		domain = DefaultDomain
	}
	if err := validateLabel("domain", domain); err != nil {
		return nil, false, err
	}

	key := registrationKey{domain: domain, name: name}
	for {
		g.mu.Lock()
		reg, ok := g.byKey[key]
		created := false
		if !ok {
			reg = newRegistration(name, domain, uuid.NewString(), g)
			g.byKey[key] = reg
			g.byLocation[reg.location] = reg
			created = true
		}
		g.mu.Unlock()

		err := reg.ApplyParameters(query, payload, src)
		if err == nil {
			if created {
				g.logger.Info("endpoint registered",
					zap.String("ep", name),
					zap.String("d", domain),
					zap.String("location", reg.location),
					zap.String("con", reg.Context()),
				)
			}
			return reg, created, nil
		}
		if errors.Is(err, ErrNotFound) && !created {
			// The existing registration expired between lookup and
			// update; retry as a fresh registration.
			continue
		}
		if created {
			reg.Delete()
		}
		return nil, false, err
	}
}

// Find returns the live registration for (domain, name).
func (g *Registry) Find(domain, name string) (*Registration, bool) {
	if domain == "" {
		domain = DefaultDomain
	}
	g.mu.RLock()
	reg, ok := g.byKey[registrationKey{domain: domain, name: name}]
	g.mu.RUnlock()
	return reg, ok
}

// FindByLocation returns the registration addressed by a location token
// previously returned from RegisterOrUpdate.
func (g *Registry) FindByLocation(location string) (*Registration, bool) {
	g.mu.RLock()
	reg, ok := g.byLocation[location]
	g.mu.RUnlock()
	return reg, ok
}

// remove detaches a registration from both indexes. Called from the
// registration's own teardown; the identity check guards against a stale
// object racing a re-registration under the same key.
func (g *Registry) remove(r *Registration, expired bool) {
	key := registrationKey{domain: r.domain, name: r.name}
	g.mu.Lock()
	if cur, ok := g.byKey[key]; ok && cur == r {
		delete(g.byKey, key)
	}
	if cur, ok := g.byLocation[r.location]; ok && cur == r {
		delete(g.byLocation, r.location)
	}
	g.mu.Unlock()

	if g.onEvict != nil {
		g.onEvict(r, expired)
	}
}

// AllInDomain returns the live registrations in domain, ordered by
// endpoint name. An empty domain selects every registration.
func (g *Registry) AllInDomain(domain string) []*Registration {
	g.mu.RLock()
	regs := make([]*Registration, 0, len(g.byKey))
	for key, reg := range g.byKey {
		if domain == "" || key.domain == domain {
			regs = append(regs, reg)
		}
	}
	g.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].domain != regs[j].domain {
			return regs[i].domain < regs[j].domain
		}
		return regs[i].name < regs[j].name
	})
	return regs
}

// Domains returns the sorted set of domains with at least one live
// registration.
func (g *Registry) Domains() []string {
	g.mu.RLock()
	seen := make(map[string]struct{})
	for key := range g.byKey {
		seen[key.domain] = struct{}{}
	}
	g.mu.RUnlock()

	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Count returns the number of live registrations.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byKey)
}
