package directory

import (
	"strings"
	"time"

	"github.com/edgedir/rd/pkg/linkformat"
)

// EndpointInfo is one endpoint lookup result.
type EndpointInfo struct {
	Name         string
	Domain       string
	Context      string
	EndpointType string
	// RemainingLifetime is the time left until the registration expires.
	RemainingLifetime time.Duration
}

// Lookup answers read-only discovery queries over a Registry. It never
// mutates registrations; filter evaluation reuses the link-format query
// predicate.
type Lookup struct {
	registry *Registry
}

// NewLookup creates a lookup service over registry.
func NewLookup(registry *Registry) *Lookup {
	return &Lookup{registry: registry}
}

// Domains returns the domains that match query, evaluated against a
// synthetic "d" attribute per domain.
func (l *Lookup) Domains(query linkformat.Query) []string {
	var out []string
	for _, domain := range l.registry.Domains() {
		attrs := linkformat.NewAttributes()
		attrs.Set(linkformat.AttrDomain, domain)
		if query.Match(attrs) {
			out = append(out, domain)
		}
	}
	return out
}

// Endpoints returns the registrations in domain (all domains when empty)
// whose registration-level attributes satisfy query.
func (l *Lookup) Endpoints(domain string, query linkformat.Query) []EndpointInfo {
	var out []EndpointInfo
	for _, reg := range l.registry.AllInDomain(domain) {
		if !query.Match(reg.MatchAttributes()) {
			continue
		}
		out = append(out, EndpointInfo{
			Name:              reg.Name(),
			Domain:            reg.Domain(),
			Context:           reg.Context(),
			EndpointType:      reg.EndpointType(),
			RemainingLifetime: reg.ExpiresIn(),
		})
	}
	return out
}

// Resources aggregates every matching registration's resource tree into
// one link-format document, each entry's path prefixed by its
// registration's context. domain narrows the search when non-empty.
func (l *Lookup) Resources(domain string, query linkformat.Query) string {
	var entries []string
	for _, reg := range l.registry.AllInDomain(domain) {
		entries = reg.appendResourceLinks(entries, query)
	}
	return strings.Join(entries, ",")
}
