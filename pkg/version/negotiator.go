// Package version negotiates the API version of a request from its
// Accept-Version header.
package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/serene/pkg/dispatcher"
)

const logPrefix = "version:negotiator"

// Header names read and written by the Negotiator.
const (
	HeaderAcceptVersion = "Accept-Version"
	HeaderAPIVersion    = "Api-Version"
	HeaderDeprecation   = "Deprecation"
)

var (
	// ErrInvalidConstraint is returned by Resolve for an unparsable header.
	ErrInvalidConstraint = errors.New("version: invalid constraint")
	// ErrNoMatch is returned by Resolve when no supported version satisfies
	// the header.
	ErrNoMatch = errors.New("version: no supported version matches")
)

// Negotiator picks the API version for each request. Supported versions are
// kept sorted highest first.
type Negotiator struct {
	versions   []*masterminds.Version
	deprecated map[string]bool
}

// Option configures a Negotiator.
type Option func(*Negotiator) error

// WithDeprecated marks supported versions as deprecated. Deprecated versions
// are only selected when no active version matches, and responses that use
// them carry a Deprecation header.
func WithDeprecated(versions ...string) Option {
	return func(n *Negotiator) error {
		for _, raw := range versions {
			v, err := masterminds.NewVersion(raw)
			if err != nil {
				return fmt.Errorf("%s - invalid deprecated version %q: %w", logPrefix, raw, err)
			}
			n.deprecated[v.String()] = true
		}
		return nil
	}
}

// NewNegotiator creates a Negotiator for the given supported versions.
func NewNegotiator(supported []string, opts ...Option) (*Negotiator, error) {
	n := &Negotiator{deprecated: make(map[string]bool)}
	seen := make(map[string]bool, len(supported))
	for _, raw := range supported {
		v, err := masterminds.NewVersion(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s - invalid supported version %q: %w", logPrefix, raw, err)
		}
		if seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		n.versions = append(n.versions, v)
	}
	if len(n.versions) == 0 {
		return nil, fmt.Errorf("%s - at least one supported version is required", logPrefix)
	}
	sort.Sort(sort.Reverse(masterminds.Collection(n.versions)))

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Supported returns the supported versions, highest first.
func (n *Negotiator) Supported() []string {
	out := make([]string, len(n.versions))
	for i, v := range n.versions {
		out[i] = v.String()
	}
	return out
}

// Resolve returns the version selected for an Accept-Version value. An
// empty value selects the highest stable version. A value that is not a
// constraint may still name a supported version exactly.
func (n *Negotiator) Resolve(accept string) (*masterminds.Version, error) {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return n.pick(func(v *masterminds.Version) bool { return v.Prerelease() == "" })
	}

	constraint, err := masterminds.NewConstraint(accept)
	if err != nil {
		exact, verr := masterminds.NewVersion(accept)
		if verr != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConstraint, accept)
		}
		return n.pick(exact.Equal)
	}
	return n.pick(constraint.Check)
}

// pick returns the highest matching version, preferring active over
// deprecated ones.
func (n *Negotiator) pick(match func(*masterminds.Version) bool) (*masterminds.Version, error) {
	var fallback *masterminds.Version
	for _, v := range n.versions {
		if !match(v) {
			continue
		}
		if !n.deprecated[v.String()] {
			return v, nil
		}
		if fallback == nil {
			fallback = v
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoMatch
}

// Rejection is the response result of a request whose version could not be
// negotiated.
type Rejection struct {
	Error     string   `json:"error"`
	Supported []string `json:"supported"`
}

// Handle implements dispatcher.Handler. Unparsable headers end the response
// with status 400; unsatisfiable ones with 406.
func (n *Negotiator) Handle(_ context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
	accept := req.Headers[HeaderAcceptVersion]
	v, err := n.Resolve(accept)
	if err != nil {
		status := 406
		if errors.Is(err, ErrInvalidConstraint) {
			status = 400
		}
		slog.Debug(fmt.Sprintf("%s - rejecting %s %s: %v", logPrefix, req.Operation.Name, req.ResourceName, err))
		res.Status = status
		res.Result = &Rejection{Error: err.Error(), Supported: n.Supported()}
		res.End()
		return nil
	}

	res.Headers[HeaderAPIVersion] = v.String()
	if n.deprecated[v.String()] {
		res.Headers[HeaderDeprecation] = "true"
	}
	return nil
}
