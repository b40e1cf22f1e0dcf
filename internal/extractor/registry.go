// Package extractor routes a work URL to the adapter for its hosting site and
// turns every outcome into either a validated record or the empty record.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Zareix/fictracker/internal/fanfic"
)

// Adapter extracts a work from one hosting site. Implementations return
// errors freely; the Registry decides how failures surface.
type Adapter interface {
	ExtractData(ctx context.Context, rawURL string) (fanfic.Fanfic, error)
	ExtractChapters(ctx context.Context, rawURL string) ([]fanfic.Chapter, error)
}

// Route binds a set of hosts to an adapter.
type Route struct {
	Name    string
	Hosts   []string
	Adapter Adapter
}

// SiteInfo is the serializable view of a route.
type SiteInfo struct {
	Name  string   `json:"name"`
	Hosts []string `json:"hosts"`
}

// Registry is an ordered host table. Routes are registered during startup;
// lookups and extractions are safe for concurrent use afterwards.
type Registry struct {
	routes []Route
}

// NewRegistry registers routes in order and fails on the first invalid one.
func NewRegistry(routes ...Route) (*Registry, error) {
	r := &Registry{}
	for _, rt := range routes {
		if err := r.Register(rt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a route. A host already claimed by an earlier route is a
// configuration error.
func (r *Registry) Register(rt Route) error {
	if strings.TrimSpace(rt.Name) == "" {
		return errors.New("route name must not be empty")
	}
	if rt.Adapter == nil {
		return fmt.Errorf("route %q: adapter must not be nil", rt.Name)
	}
	if len(rt.Hosts) == 0 {
		return fmt.Errorf("route %q: no hosts", rt.Name)
	}
	hosts := make([]string, 0, len(rt.Hosts))
	for _, h := range rt.Hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return fmt.Errorf("route %q: empty host", rt.Name)
		}
		if prev, ok := r.owner(h); ok {
			return fmt.Errorf("route %q: host %q already handled by %q", rt.Name, h, prev.Name)
		}
		hosts = append(hosts, h)
	}
	rt.Hosts = hosts
	r.routes = append(r.routes, rt)
	return nil
}

func (r *Registry) owner(host string) (Route, bool) {
	for _, rt := range r.routes {
		for _, h := range rt.Hosts {
			if h == host {
				return rt, true
			}
		}
	}
	return Route{}, false
}

// Lookup returns the first route whose hosts include the URL's host.
// Only absolute http and https URLs can match.
func (r *Registry) Lookup(rawURL string) (Route, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Route{}, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Route{}, false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Route{}, false
	}
	return r.owner(host)
}

// Sites lists the registered routes in registration order.
func (r *Registry) Sites() []SiteInfo {
	out := make([]SiteInfo, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, SiteInfo{Name: rt.Name, Hosts: append([]string(nil), rt.Hosts...)})
	}
	return out
}
