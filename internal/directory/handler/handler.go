// Package handler maps the resource directory engine onto HTTP. It is the
// protocol dispatcher: it parses query terms and payloads, hands them to
// the registry/lookup services, and translates engine errors into response
// codes (Created/Changed/Deleted/Content vs BadRequest/NotFound).
package handler

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edgedir/rd/internal/directory"
	"github.com/edgedir/rd/pkg/linkformat"
)

// Handler serves the registration and lookup function sets.
type Handler struct {
	registry      *directory.Registry
	lookup        *directory.Lookup
	defaultDomain string
	logger        *zap.Logger
}

// NewHandler creates a Handler over the given registry. defaultDomain is
// assumed for registrations that elide "d"; empty selects "local".
func NewHandler(registry *directory.Registry, lookup *directory.Lookup, defaultDomain string, logger *zap.Logger) *Handler {
	if defaultDomain == "" {
		defaultDomain = directory.DefaultDomain
	}
	return &Handler{
		registry:      registry,
		lookup:        lookup,
		defaultDomain: defaultDomain,
		logger:        logger,
	}
}

// Register mounts all directory routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rd := rg.Group("/rd")
	{
		rd.POST("", h.RegisterEndpoint)
		rd.POST("/:location", h.UpdateRegistration)
		rd.GET("/:location", h.ReadLinks)
		rd.DELETE("/:location", h.RemoveRegistration)
	}

	lookup := rg.Group("/rd-lookup")
	{
		lookup.GET("/d", h.LookupDomains)
		lookup.GET("/ep", h.LookupEndpoints)
		lookup.GET("/res", h.LookupResources)
	}

	rg.GET("/.well-known/core", h.WellKnownCore)
}

// source reconstructs the transport-level origin of the request for
// context derivation. The scheme is left unset so the engine applies its
// coap/coaps defaulting by local port.
func (h *Handler) source(c *gin.Context) directory.Source {
	src := directory.Source{}
	if host, port, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		src.Host = host
		src.Port, _ = strconv.Atoi(port)
	} else {
		src.Host = c.Request.RemoteAddr
	}
	if _, port, err := net.SplitHostPort(c.Request.Host); err == nil {
		src.LocalPort, _ = strconv.Atoi(port)
	}
	return src
}

func respondError(c *gin.Context, err error) {
	var validation *directory.ErrValidation
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Msg})
	case errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RegisterEndpoint handles POST /rd — registration and idempotent
// re-registration. Created registrations answer 201 with a Location
// header; refreshes answer 204.
func (h *Handler) RegisterEndpoint(c *gin.Context) {
	query := linkformat.ParseQuery(c.Request.URL.RawQuery)

	name, _ := query.Get(linkformat.AttrEndpoint)
	domain, ok := query.Get(linkformat.AttrDomain)
	if !ok || domain == "" {
		domain = h.defaultDomain
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	reg, created, err := h.registry.RegisterOrUpdate(domain, name, query, payload, h.source(c))
	if err != nil {
		respondError(c, err)
		return
	}

	observeRegistrations(h.registry.Count())
	if created {
		c.Header("Location", "/rd/"+reg.Location())
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateRegistration handles POST /rd/{location} — the refresh interface
// addressed by the Location returned at registration time.
func (h *Handler) UpdateRegistration(c *gin.Context) {
	reg, ok := h.registry.FindByLocation(c.Param("location"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	query := linkformat.ParseQuery(c.Request.URL.RawQuery)
	if err := reg.ApplyParameters(query, payload, h.source(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReadLinks handles GET /rd/{location} — returns the registration's
// current links, optionally narrowed by a filter query.
func (h *Handler) ReadLinks(c *gin.Context) {
	reg, ok := h.registry.FindByLocation(c.Param("location"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		return
	}
	filter := linkformat.ParseQuery(c.Request.URL.RawQuery)
	c.Data(http.StatusOK, linkformat.ContentType, []byte(reg.Links(filter)))
}

// RemoveRegistration handles DELETE /rd/{location}.
func (h *Handler) RemoveRegistration(c *gin.Context) {
	reg, ok := h.registry.FindByLocation(c.Param("location"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		return
	}
	reg.Delete()
	observeRegistrations(h.registry.Count())
	c.Status(http.StatusNoContent)
}

// LookupDomains handles GET /rd-lookup/d.
func (h *Handler) LookupDomains(c *gin.Context) {
	query := linkformat.ParseQuery(c.Request.URL.RawQuery)

	var entries []string
	for _, domain := range h.lookup.Domains(query) {
		attrs := linkformat.NewAttributes()
		attrs.Set(linkformat.AttrDomain, domain)
		entries = append(entries, linkformat.FormatEntry("/rd", attrs))
	}
	c.Data(http.StatusOK, linkformat.ContentType, []byte(strings.Join(entries, ",")))
}

// LookupEndpoints handles GET /rd-lookup/ep. The domain ("d") term is
// matched like any other registration attribute.
func (h *Handler) LookupEndpoints(c *gin.Context) {
	query := linkformat.ParseQuery(c.Request.URL.RawQuery)

	var entries []string
	for _, info := range h.lookup.Endpoints("", query) {
		attrs := linkformat.NewAttributes()
		attrs.Set(linkformat.AttrEndpoint, info.Name)
		attrs.Set(linkformat.AttrDomain, info.Domain)
		if info.EndpointType != "" {
			attrs.Set(linkformat.AttrEndpointType, info.EndpointType)
		}
		attrs.Set(linkformat.AttrLifetime, strconv.FormatInt(int64(info.RemainingLifetime/time.Second), 10))
		entries = append(entries, linkformat.FormatEntry(info.Context, attrs))
	}
	c.Data(http.StatusOK, linkformat.ContentType, []byte(strings.Join(entries, ",")))
}

// LookupResources handles GET /rd-lookup/res. A "d" term narrows the
// search to one domain (exact match); remaining terms filter resource
// attributes.
func (h *Handler) LookupResources(c *gin.Context) {
	query := linkformat.ParseQuery(c.Request.URL.RawQuery)
	domain, _ := query.Get(linkformat.AttrDomain)
	query = query.Without(linkformat.AttrDomain)

	c.Data(http.StatusOK, linkformat.ContentType, []byte(h.lookup.Resources(domain, query)))
}

// WellKnownCore advertises the directory's function sets.
func (h *Handler) WellKnownCore(c *gin.Context) {
	rd := linkformat.NewAttributes()
	rd.Set(linkformat.AttrResourceType, "core.rd")

	lk := linkformat.NewAttributes()
	lk.Set(linkformat.AttrResourceType, "core.rd-lookup")

	entries := []string{
		linkformat.FormatEntry("/rd", rd),
		linkformat.FormatEntry("/rd-lookup/d", lk),
		linkformat.FormatEntry("/rd-lookup/ep", lk),
		linkformat.FormatEntry("/rd-lookup/res", lk),
	}
	c.Data(http.StatusOK, linkformat.ContentType, []byte(strings.Join(entries, ",")))
}
