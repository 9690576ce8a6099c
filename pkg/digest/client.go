// Package digest implements the client side of HTTP Digest Access
// Authentication (RFC 7616, with RFC 2069 compatibility mode) on top of the
// challenge parser.
package digest

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"strings"

	"github.com/scottlamb/http-auth/pkg/challenge"
)

var (
	ErrBadChallenge        = errors.New("challenge is bad")
	ErrAlgNotImplemented   = errors.New("algorithm not implemented")
	ErrQopNotSupported     = errors.New("qop not supported")
	ErrCharsetNotSupported = errors.New("charset not supported")
	ErrBodyRequired        = errors.New("entity body required for qop auth-int")
	ErrNonceCountExhausted = errors.New("nonce count exhausted")

	// Algs maps canonical algorithm names, without the -sess suffix, to
	// hash constructors. All digests are emitted as lowercase hex.
	Algs = map[string]func() hash.Hash{
		"MD5":         md5.New,
		"SHA-256":     sha256.New,
		"SHA-512-256": sha512.New512_256,
	}

	// Cnoncer16 generates 16 random bytes rendered as lowercase hex.
	Cnoncer16 = func() string {
		b := make([]byte, 16)
		io.ReadFull(rand.Reader, b)
		return hex.EncodeToString(b)
	}
)

// MissingParameterError reports a challenge that lacks a parameter the
// scheme requires.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("challenge is missing required parameter %q", e.Name)
}

// Cnoncer generates a cnonce. Production use must be cryptographically
// random; tests may inject a fixed value via WithCnoncer.
type Cnoncer func() string

// Qop is the negotiated quality of protection. QopNone means the server
// offered none and the client operates in RFC 2069 compatibility mode.
type Qop int

const (
	QopNone Qop = iota
	QopAuth
	QopAuthInt
)

func (q Qop) String() string {
	switch q {
	case QopAuth:
		return "auth"
	case QopAuthInt:
		return "auth-int"
	}
	return ""
}

// Params carries everything needed to answer one request. Callers build a
// fresh Params per request.
type Params struct {
	Username string
	Password string

	// Method is the HTTP (or RTSP) method, e.g. "GET".
	Method string

	// URI exactly as it will appear in the request line.
	URI string

	// Body is the request entity body. nil means unavailable; use an
	// empty non-nil slice for methods without a body. A nil Body makes
	// a qop=auth-int response impossible.
	Body []byte
}

// span addresses a substring of the client's arena.
type span struct {
	off, end int
}

// Client answers Digest challenges for one realm+nonce. Build one per
// challenge and reuse it across requests until the server answers
// stale=true, then build a new one from the fresh challenge; nonce state is
// never carried over.
//
// A Client is a single-writer object: Respond mutates the nonce count and
// is not safe for concurrent use.
type Client struct {
	// arena packs all variable-length challenge fields so the client
	// stays one small allocation.
	arena                        string
	realm, nonce, opaque, domain span
	hasOpaque, hasDomain         bool

	alg         string // canonical key into Algs
	sess        bool
	algExplicit bool
	qop         Qop
	userhash    bool
	utf8        bool

	nc      uint32
	ha1     string // cached hex of H(A1) once the first response is built
	cnoncer Cnoncer
}

// Option configures a Client at construction.
type Option func(*config)

type config struct {
	cnoncer      Cnoncer
	entityBodies bool
}

// WithCnoncer replaces the cnonce source. Meant for reproducible tests.
func WithCnoncer(fn Cnoncer) Option {
	return func(c *config) { c.cnoncer = fn }
}

// WithoutEntityBodies declares that Respond will never be given request
// bodies, excluding qop=auth-int from negotiation.
func WithoutEntityBodies() Option {
	return func(c *config) { c.entityBodies = false }
}

// NewClient builds a Client from one parsed Digest challenge.
func NewClient(ch *challenge.Challenge, opts ...Option) (*Client, error) {
	cfg := config{cnoncer: Cnoncer16, entityBodies: true}
	for _, o := range opts {
		o(&cfg)
	}
	if !strings.EqualFold(ch.Scheme, "Digest") || ch.Token68 != "" {
		return nil, ErrBadChallenge
	}
	realm, ok := ch.Param("realm")
	if !ok {
		return nil, &MissingParameterError{Name: "realm"}
	}
	nonce, ok := ch.Param("nonce")
	if !ok {
		return nil, &MissingParameterError{Name: "nonce"}
	}

	c := &Client{alg: "MD5", cnoncer: cfg.cnoncer}
	if v, ok := ch.Param("algorithm"); ok {
		c.algExplicit = true
		name := strings.ToUpper(v)
		if strings.HasSuffix(name, "-SESS") {
			c.sess = true
			name = strings.TrimSuffix(name, "-SESS")
		}
		if _, ok := Algs[name]; !ok {
			return nil, ErrAlgNotImplemented
		}
		c.alg = name
	}
	if v, ok := ch.Param("qop"); ok && strings.TrimSpace(v) != "" {
		qop, err := selectQop(v, cfg.entityBodies)
		if err != nil {
			return nil, err
		}
		c.qop = qop
	}
	if v, ok := ch.Param("userhash"); ok {
		c.userhash = strings.EqualFold(v, "true")
	}
	if v, ok := ch.Param("charset"); ok {
		switch {
		case strings.EqualFold(v, "UTF-8"):
			c.utf8 = true
		case strings.EqualFold(v, "ISO-8859-1"):
		default:
			return nil, ErrCharsetNotSupported
		}
	}

	var arena strings.Builder
	add := func(s string) span {
		off := arena.Len()
		arena.WriteString(s)
		return span{off: off, end: arena.Len()}
	}
	c.realm = add(realm)
	c.nonce = add(nonce)
	if v, ok := ch.Param("opaque"); ok {
		c.opaque = add(v)
		c.hasOpaque = true
	}
	if v, ok := ch.Param("domain"); ok {
		c.domain = add(v)
		c.hasDomain = true
	}
	c.arena = arena.String()
	return c, nil
}

// selectQop picks from the server's comma-delimited qop list, preferring
// auth over auth-int. Unknown tokens are skipped; a non-empty list with
// nothing usable is an error.
func selectQop(list string, entityBodies bool) (Qop, error) {
	var authInt bool
	for _, tok := range strings.Split(list, ",") {
		switch tok = strings.TrimSpace(tok); {
		case strings.EqualFold(tok, "auth"):
			return QopAuth, nil
		case strings.EqualFold(tok, "auth-int"):
			authInt = true
		}
	}
	if authInt && entityBodies {
		return QopAuthInt, nil
	}
	return QopNone, ErrQopNotSupported
}

// Stale reports whether a challenge carries stale=true: the server rejected
// only the nonce, not the credentials. The flag is not retained by the
// client; build a new Client from the fresh challenge.
func Stale(ch *challenge.Challenge) bool {
	v, _ := ch.Param("stale")
	return strings.EqualFold(v, "true")
}

func (c *Client) str(s span) string { return c.arena[s.off:s.end] }

// Realm returns the protection realm, exactly as received.
func (c *Client) Realm() string { return c.str(c.realm) }

// Domain returns the protection-space URI list, if the server sent one.
func (c *Client) Domain() (string, bool) { return c.str(c.domain), c.hasDomain }

// Opaque returns the opaque blob, if the server sent one.
func (c *Client) Opaque() (string, bool) { return c.str(c.opaque), c.hasOpaque }

// Algorithm returns the negotiated algorithm's wire name.
func (c *Client) Algorithm() string {
	if c.sess {
		return c.alg + "-sess"
	}
	return c.alg
}

// Qop returns the negotiated quality of protection.
func (c *Client) Qop() Qop { return c.qop }

// NonceCount returns how many responses have been emitted.
func (c *Client) NonceCount() uint32 { return c.nc }

// h hashes data with the negotiated algorithm into lowercase hex.
func (c *Client) h(data string) string {
	h := Algs[c.alg]()
	fmt.Fprint(h, data)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) hashBytes(data []byte) string {
	h := Algs[c.alg]()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Respond builds an Authorization header value for one request. The nonce
// count increases by one per successful call; a failed call leaves it
// unchanged.
func (c *Client) Respond(p *Params) (string, error) {
	if c.qop == QopAuthInt && p.Body == nil {
		return "", ErrBodyRequired
	}
	if c.nc == math.MaxUint32 {
		return "", ErrNonceCountExhausted
	}

	var cnonce string
	if c.qop != QopNone || c.sess {
		cnonce = c.cnoncer()
	}

	// HA1. The non-sess form is stable per client, so the first
	// computation is cached; the -sess form folds in the fresh cnonce on
	// every call.
	if c.ha1 == "" {
		c.ha1 = c.h(p.Username + ":" + c.str(c.realm) + ":" + p.Password)
	}
	ha1 := c.ha1
	if c.sess {
		ha1 = c.h(ha1 + ":" + c.str(c.nonce) + ":" + cnonce)
	}

	a2 := p.Method + ":" + p.URI
	if c.qop == QopAuthInt {
		a2 += ":" + c.hashBytes(p.Body)
	}
	ha2 := c.h(a2)

	c.nc++
	nc := fmt.Sprintf("%08x", c.nc)

	var response string
	if c.qop == QopNone {
		response = c.h(ha1 + ":" + c.str(c.nonce) + ":" + ha2)
	} else {
		response = c.h(ha1 + ":" + c.str(c.nonce) + ":" + nc + ":" + cnonce + ":" + c.qop.String() + ":" + ha2)
	}

	var auth []string
	switch {
	case c.userhash:
		// The username parameter carries H(username:realm); the
		// response hash above still uses the plain username.
		auth = append(auth, "username="+quote(c.h(p.Username+":"+c.str(c.realm))))
	case c.utf8 && !isASCII(p.Username):
		auth = append(auth, "username*="+extValue(p.Username))
	default:
		auth = append(auth, "username="+quote(p.Username))
	}
	auth = append(auth, "realm="+quote(c.str(c.realm)))
	auth = append(auth, "nonce="+quote(c.str(c.nonce)))
	auth = append(auth, "uri="+quote(p.URI))
	auth = append(auth, "response="+quote(response))
	if c.algExplicit {
		auth = append(auth, "algorithm="+c.Algorithm())
	}
	if cnonce != "" {
		auth = append(auth, "cnonce="+quote(cnonce))
	}
	if c.hasOpaque {
		auth = append(auth, "opaque="+quote(c.str(c.opaque)))
	}
	if c.qop != QopNone {
		auth = append(auth, "qop="+c.qop.String())
		auth = append(auth, "nc="+nc)
	}
	if c.userhash {
		auth = append(auth, "userhash=true")
	}
	return "Digest " + strings.Join(auth, ", "), nil
}

// quote emits s as a quoted-string, escaping only '\' and '"'.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// attrChar marks RFC 5987 attr-char bytes, which pass through an ext-value
// unencoded.
var attrChar [256]bool

func init() {
	for _, b := range []byte("!#$&+-.^_`|~") {
		attrChar[b] = true
	}
	for b := byte('0'); b <= '9'; b++ {
		attrChar[b] = true
	}
	for b := byte('a'); b <= 'z'; b++ {
		attrChar[b] = true
	}
	for b := byte('A'); b <= 'Z'; b++ {
		attrChar[b] = true
	}
}

// extValue encodes s as an RFC 5987 ext-value with the UTF-8 charset, for
// the username* parameter.
func extValue(s string) string {
	var b strings.Builder
	b.WriteString("UTF-8''")
	for i := 0; i < len(s); i++ {
		if attrChar[s[i]] {
			b.WriteByte(s[i])
		} else {
			fmt.Fprintf(&b, "%%%02X", s[i])
		}
	}
	return b.String()
}
