// Package platform maps the configured venue kind onto its connector.
package platform

import (
	"strings"

	"github.com/alanyoungcy/lazywhale/internal/crypto"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/platform/paper"
	"github.com/alanyoungcy/lazywhale/internal/platform/rest"
)

// Kind is the closed set of supported venue connectors.
type Kind string

const (
	KindPaper Kind = "paper"
	KindREST  Kind = "rest"
)

// ParseKind validates a configured venue kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPaper, KindREST:
		return k, nil
	default:
		return "", domain.NewConfigurationError("venue.kind", "unsupported venue %q (want paper or rest)", s)
	}
}

// Options carries the per-kind settings.
type Options struct {
	Paper paper.Config
	REST  rest.Config
	Auth  *crypto.HMACAuth
}

// New returns the connector for kind.
func New(kind Kind, opts Options) (domain.Venue, error) {
	switch kind {
	case KindPaper:
		v, err := paper.New(opts.Paper)
		if err != nil {
			return nil, err
		}
		return v, nil
	case KindREST:
		if opts.REST.BaseURL == "" {
			return nil, domain.NewConfigurationError("venue.base_url", "required for the rest venue")
		}
		if opts.Auth == nil || opts.Auth.Key == "" {
			return nil, domain.NewConfigurationError("venue.api_key", "required for the rest venue")
		}
		return rest.NewClient(opts.REST, opts.Auth), nil
	default:
		return nil, domain.NewConfigurationError("venue.kind", "unsupported venue %q", kind)
	}
}
