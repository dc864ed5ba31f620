package directory

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/edgedir/rd/pkg/linkformat"
)

const (
	// DefaultDomain is assumed when a registration elides the "d" parameter.
	DefaultDomain = "local"

	// DefaultLifetime applies when a registration never supplies "lt".
	DefaultLifetime = 86400 * time.Second

	// MinLifetime is the floor every supplied lifetime is clamped to.
	MinLifetime = 60 * time.Second

	// maxLabelBytes bounds endpoint names and domains.
	maxLabelBytes = 63
)

// Transport schemes and well-known ports used for context derivation.
const (
	SchemeCoAP       = "coap"
	SchemeCoAPSecure = "coaps"
	PortCoAP         = 5683
	PortCoAPSecure   = 5684
)

// Source describes where a registration request arrived from, as supplied
// by the transport. It is consulted only when the request carries no
// explicit "con" parameter.
type Source struct {
	// Scheme is the transport's URI scheme, empty when unknown.
	Scheme string
	// Host and Port are the request's source address.
	Host string
	Port int
	// LocalPort is the port the request arrived on. When the scheme is
	// unknown, arriving on the secure port implies the secure scheme.
	LocalPort int
}

// Registration is the directory's record for one endpoint: identity,
// context, lifetime, resource tree, and the expiry timer keeping it alive.
//
// A registration is ACTIVE from construction until Delete or expiry, after
// which it is terminal and must not be reused. All mutable state is
// guarded by mu; the expiry callback re-checks under the same lock so a
// fire racing a refresh or delete is a no-op.
type Registration struct {
	name     string
	domain   string
	location string

	registry *Registry
	clock    clock.Clock
	logger   *zap.Logger

	mu           sync.Mutex
	endpointType string
	context      string
	lifetime     time.Duration
	expiresAt    time.Time
	root         *Node
	timer        *clock.Timer
	epoch        uint64
	deleted      bool
}

func validateLabel(what, s string) error {
	if len(s) > maxLabelBytes {
		return &ErrValidation{Msg: fmt.Sprintf("%s %q too long (%d bytes, max %d)", what, s, len(s), maxLabelBytes)}
	}
	return nil
}

func newRegistration(name, domain, location string, registry *Registry) *Registration {
	root := newNode(name)
	root.attrs.Set(linkformat.AttrEndpoint, name)
	root.attrs.Set(linkformat.AttrDomain, domain)
	return &Registration{
		name:     name,
		domain:   domain,
		location: location,
		registry: registry,
		clock:    registry.clock,
		logger:   registry.logger,
		lifetime: DefaultLifetime,
		root:     root,
	}
}

// Name returns the endpoint name, unique within the domain.
func (r *Registration) Name() string { return r.name }

// Domain returns the namespace the endpoint registered under.
func (r *Registration) Domain() string { return r.domain }

// Location returns the opaque token addressing this registration for
// update/read/delete operations.
func (r *Registration) Location() string { return r.location }

// Context returns the scheme://host:port at which the endpoint's
// resources are reachable.
func (r *Registration) Context() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.context
}

// EndpointType returns the optional "et" parameter.
func (r *Registration) EndpointType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpointType
}

// Lifetime returns the currently effective registration lifetime.
func (r *Registration) Lifetime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifetime
}

// ExpiresIn returns the time remaining until expiry, zero once deleted.
func (r *Registration) ExpiresIn() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return 0
	}
	d := r.expiresAt.Sub(r.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Deleted reports whether the registration has reached its terminal state.
func (r *Registration) Deleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted
}

// ApplyParameters processes a registration or update request: it reads
// "lt", "con", and "et" from the query, resets the expiry clock, and
// applies the link-format payload to the resource tree.
//
// Lifetimes below MinLifetime are clamped up; the stored lifetime is
// re-clamped first as a safety net. The context is resolved lazily on
// first registration and replaced whenever "con" is supplied. The expiry
// timer is rearmed on every successful call, with the existing lifetime
// when "lt" is absent.
//
// Links in the payload merge into the tree: paths named in the payload
// are added or overwritten, paths from earlier updates that the payload
// omits are kept. Malformed payload entries are dropped with a diagnostic
// and do not fail the operation.
func (r *Registration) ApplyParameters(query linkformat.Query, payload []byte, src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return ErrNotFound
	}

	if lt, ok := query.Get(linkformat.AttrLifetime); ok {
		secs, err := strconv.ParseInt(lt, 10, 64)
		if err != nil || secs < 0 {
			return &ErrValidation{Msg: "lifetime is not a valid integer (?lt)"}
		}
		if r.lifetime < MinLifetime {
			r.lifetime = MinLifetime
		}
		newLifetime := time.Duration(secs) * time.Second
		if newLifetime < MinLifetime {
			r.logger.Info("enforcing minimal lifetime",
				zap.String("ep", r.name),
				zap.Int64("requested_seconds", secs),
				zap.Duration("min", MinLifetime),
			)
			newLifetime = MinLifetime
		}
		r.lifetime = newLifetime
	}

	con, hasCon := query.Get(linkformat.AttrContext)
	if hasCon || r.context == "" {
		ctx, err := resolveContext(src, con, hasCon)
		if err != nil {
			r.logger.Warn("invalid context",
				zap.String("ep", r.name),
				zap.String("con", con),
				zap.String("source_host", src.Host),
				zap.Int("source_port", src.Port),
			)
			return err
		}
		r.context = ctx
	}

	if et, ok := query.Get(linkformat.AttrEndpointType); ok {
		r.endpointType = et
	}

	r.rearmLocked()

	links, diags := linkformat.Parse(string(payload))
	for _, diag := range diags {
		r.logger.Warn("dropping malformed link entry",
			zap.String("ep", r.name),
			zap.Error(diag),
		)
	}
	for _, link := range links {
		r.root.applyLink(link, r.name)
	}
	return nil
}

// rearmLocked cancels any pending expiry and arms a fresh one-shot timer
// for the current lifetime. The epoch ties each armed timer to the state
// that armed it: a fire whose epoch no longer matches is stale and must
// not delete the registration. Caller holds r.mu.
func (r *Registration) rearmLocked() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.epoch++
	epoch := r.epoch
	r.expiresAt = r.clock.Now().Add(r.lifetime)
	r.timer = r.clock.AfterFunc(r.lifetime, func() {
		r.expire(epoch)
	})
}

// expire is the timer callback. It re-checks state under the lock: a
// registration refreshed or deleted after this fire was scheduled is left
// alone.
func (r *Registration) expire(epoch uint64) {
	r.mu.Lock()
	if r.deleted || epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	r.deleteLocked(true)
	r.mu.Unlock()

	r.logger.Info("registration expired",
		zap.String("ep", r.name),
		zap.String("d", r.domain),
		zap.Duration("lt", r.lifetime),
	)
}

// Delete removes the registration: the pending timer is cancelled, the
// resource tree detached, and the registry entry dropped. Calling Delete
// on an already-deleted registration is a no-op.
func (r *Registration) Delete() {
	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return
	}
	r.deleteLocked(false)
	r.mu.Unlock()

	r.logger.Info("registration removed",
		zap.String("ep", r.name),
		zap.String("d", r.domain),
	)
}

// deleteLocked performs the single teardown path shared by explicit
// removal and expiry. Caller holds r.mu.
func (r *Registration) deleteLocked(expired bool) {
	r.deleted = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.root = newNode(r.name)
	r.registry.remove(r, expired)
}

// Links serializes the registration's resource tree as link-format,
// filtered by query, with each entry's path prefixed by the context.
func (r *Registration) Links(query linkformat.Query) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return ""
	}
	return r.root.serialize(r.context, query)
}

// appendResourceLinks appends the registration's matching resource
// entries, used by resource lookup to aggregate across registrations.
func (r *Registration) appendResourceLinks(entries []string, query linkformat.Query) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return entries
	}
	return r.root.appendLinks(entries, r.context, query)
}

// MatchAttributes returns a snapshot of the registration-level attributes
// used by endpoint lookup filtering: the root node's metadata plus the
// current et/con/lt values.
func (r *Registration) MatchAttributes() *linkformat.Attributes {
	r.mu.Lock()
	defer r.mu.Unlock()
	attrs := linkformat.NewAttributes()
	attrs.CopyFrom(r.root.attrs)
	if r.endpointType != "" {
		attrs.Set(linkformat.AttrEndpointType, r.endpointType)
	}
	if r.context != "" {
		attrs.Set(linkformat.AttrContext, r.context)
	}
	attrs.Set(linkformat.AttrLifetime, strconv.FormatInt(int64(r.lifetime/time.Second), 10))
	return attrs
}

// resolveContext normalizes the endpoint's reachability context to
// scheme://host:port. An explicit "con" URI wins; otherwise the source
// address is used, defaulting the scheme to coap unless the request
// arrived on the well-known secure port.
func resolveContext(src Source, explicit string, hasExplicit bool) (string, error) {
	var (
		scheme string
		host   string
		port   int
	)
	if hasExplicit {
		u, err := url.Parse(explicit)
		if err != nil || u.Scheme == "" || u.Hostname() == "" {
			return "", &ErrValidation{Msg: "context has invalid URI syntax (?con)"}
		}
		scheme = u.Scheme
		host = u.Hostname()
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil {
				return "", &ErrValidation{Msg: "context has invalid port (?con)"}
			}
		} else {
			port = defaultPort(scheme)
		}
	} else {
		scheme = src.Scheme
		if scheme == "" {
			scheme = SchemeCoAP
			if src.LocalPort == PortCoAPSecure {
				scheme = SchemeCoAPSecure
			}
		}
		host = src.Host
		port = src.Port
	}
	if host == "" {
		return "", &ErrValidation{Msg: "context host could not be determined"}
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port), nil
}

func defaultPort(scheme string) int {
	if scheme == SchemeCoAPSecure {
		return PortCoAPSecure
	}
	return PortCoAP
}
