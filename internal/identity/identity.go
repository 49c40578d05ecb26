// Package identity resolves the authenticated clinician identity for a
// request.
//
// The service does not run its own login flow. Deployments sit behind an
// authenticating proxy (OAuth2 Proxy, Pomerium, an ingress with OIDC) that
// injects the verified identity as a request header; the header provider
// reads it back out. The static provider pins a fixed identity for
// single-user and development setups.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

// DefaultHeader is the header consulted by default, matching what OAuth2
// Proxy forwards upstream.
const DefaultHeader = "X-Forwarded-Email"

// ErrNoIdentity is returned when a request carries no resolvable identity.
// Handlers translate it to 401.
var ErrNoIdentity = errors.New("identity: request has no authenticated identity")

// Provider resolves the clinician identity bound to an HTTP request.
type Provider interface {
	// Identify returns the identity (an email address) for r, or
	// ErrNoIdentity when none is present.
	Identify(r *http.Request) (string, error)
}

// Compile-time interface checks.
var (
	_ Provider = (*HeaderProvider)(nil)
	_ Provider = (*StaticProvider)(nil)
)

// HeaderProvider reads the identity from a trusted request header set by an
// authenticating reverse proxy.
type HeaderProvider struct {
	header string
}

// NewHeaderProvider creates a HeaderProvider reading the given header.
// An empty header name falls back to [DefaultHeader].
func NewHeaderProvider(header string) *HeaderProvider {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderProvider{header: header}
}

// Identify implements Provider.
func (p *HeaderProvider) Identify(r *http.Request) (string, error) {
	v := strings.TrimSpace(r.Header.Get(p.header))
	if v == "" {
		return "", ErrNoIdentity
	}
	return strings.ToLower(v), nil
}

// StaticProvider returns a fixed identity for every request. Intended for
// single-user deployments and local development.
type StaticProvider struct {
	identity string
}

// NewStaticProvider creates a StaticProvider. identity must be non-empty.
func NewStaticProvider(identity string) (*StaticProvider, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity: static identity must not be empty")
	}
	return &StaticProvider{identity: strings.ToLower(identity)}, nil
}

// Identify implements Provider.
func (p *StaticProvider) Identify(*http.Request) (string, error) {
	return p.identity, nil
}
