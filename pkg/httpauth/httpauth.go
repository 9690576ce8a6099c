// Package httpauth ties the parser and the scheme clients together: give it
// the WWW-Authenticate value(s) from a 401 and it hands back something that
// can produce an Authorization value. Callers that want only one scheme, or
// no hash dependencies, can use the challenge, basic, and digest packages
// directly.
package httpauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/scottlamb/http-auth/pkg/basic"
	"github.com/scottlamb/http-auth/pkg/challenge"
	"github.com/scottlamb/http-auth/pkg/digest"
)

// ErrNoSupportedScheme indicates none of the server's challenges used a
// supported (and preferred) scheme.
var ErrNoSupportedScheme = errors.New("no supported authentication scheme")

// Params carries everything needed to answer one request. Only Username and
// Password matter for Basic.
type Params struct {
	Username string
	Password string
	Method   string

	// URI exactly as it will appear in the request line.
	URI string

	// Body is the request entity body; nil when unavailable.
	Body []byte
}

// PasswordClient produces Authorization (or Proxy-Authorization) header
// values for username/password challenges.
type PasswordClient interface {
	Respond(p *Params) (string, error)
}

// Option configures client selection.
type Option func(*config)

type config struct {
	preference []string
	digestOpts []digest.Option
}

// WithPreference replaces the scheme preference order. The default prefers
// Digest over Basic, per the RFC 7235 section 2.1 advice to pick the most
// secure scheme understood.
func WithPreference(schemes ...string) Option {
	return func(c *config) { c.preference = schemes }
}

// WithDigestOptions passes options through to digest.NewClient.
func WithDigestOptions(opts ...digest.Option) Option {
	return func(c *config) { c.digestOpts = opts }
}

// NewPasswordClient selects a client from one header value (or several
// joined by commas).
func NewPasswordClient(value string, opts ...Option) (PasswordClient, error) {
	challenges, err := challenge.Parse(value)
	if err != nil {
		return nil, err
	}
	return fromChallenges(challenges, opts)
}

// NewPasswordClientFromValues selects a client from a sequence of header
// values.
func NewPasswordClientFromValues(values []string, opts ...Option) (PasswordClient, error) {
	challenges, err := challenge.ParseValues(values)
	if err != nil {
		return nil, err
	}
	return fromChallenges(challenges, opts)
}

// NewPasswordClientFromHeader selects a client from the named header of h,
// e.g. "WWW-Authenticate" or "Proxy-Authenticate".
func NewPasswordClientFromHeader(h http.Header, name string, opts ...Option) (PasswordClient, error) {
	return NewPasswordClientFromValues(h.Values(name), opts...)
}

func fromChallenges(challenges []challenge.Challenge, opts []Option) (PasswordClient, error) {
	cfg := config{preference: []string{"Digest", "Basic"}}
	for _, o := range opts {
		o(&cfg)
	}
	var firstErr error
	for _, scheme := range cfg.preference {
		for i := range challenges {
			ch := &challenges[i]
			if !strings.EqualFold(ch.Scheme, scheme) {
				continue
			}
			c, err := newClient(ch, &cfg)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			return c, nil
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSupportedScheme, firstErr)
	}
	return nil, ErrNoSupportedScheme
}

func newClient(ch *challenge.Challenge, cfg *config) (PasswordClient, error) {
	switch {
	case strings.EqualFold(ch.Scheme, "Digest"):
		c, err := digest.NewClient(ch, cfg.digestOpts...)
		if err != nil {
			return nil, err
		}
		return &digestClient{c: c}, nil
	case strings.EqualFold(ch.Scheme, "Basic"):
		c, err := basic.NewClient(ch)
		if err != nil {
			return nil, err
		}
		return &basicClient{c: c}, nil
	}
	return nil, fmt.Errorf("unsupported scheme %q", ch.Scheme)
}

type basicClient struct {
	c *basic.Client
}

func (b *basicClient) Respond(p *Params) (string, error) {
	return b.c.Respond(p.Username, p.Password)
}

type digestClient struct {
	c *digest.Client
}

func (d *digestClient) Respond(p *Params) (string, error) {
	return d.c.Respond(&digest.Params{
		Username: p.Username,
		Password: p.Password,
		Method:   p.Method,
		URI:      p.URI,
		Body:     p.Body,
	})
}
