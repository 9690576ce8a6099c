package digest

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/scottlamb/http-auth/pkg/challenge"
)

var (
	ErrNilTransport = errors.New("transport is nil")

	// ErrNoDigestChallenge indicates the 401 carried no Digest challenge.
	ErrNoDigestChallenge = errors.New("no digest challenge offered")
)

// Transport is an implementation of http.RoundTripper that takes care of
// http digest authentication: it retries a 401 response with an
// Authorization header computed from the server's Digest challenge. One
// Client is kept per server nonce and replaced when the server reports it
// stale.
type Transport struct {
	Username  string
	Password  string
	Transport http.RoundTripper

	// Cnoncer provides a seam for cnonce generation.
	Cnoncer Cnoncer

	// mu guards the cached client; Client itself is single-writer.
	mu     sync.Mutex
	client *Client
	nonce  string
}

// NewHTTPClient returns an HTTP client that uses the digest transport.
func (t *Transport) NewHTTPClient() (*http.Client, error) {
	if t.Transport == nil {
		return nil, ErrNilTransport
	}
	return &http.Client{Transport: t}, nil
}

// NewTransport creates a new digest transport using the given username and
// password, wrapping transport (or DefaultHTTPTransport when nil).
func NewTransport(username, password string, transport http.RoundTripper) *Transport {
	if transport == nil {
		transport = DefaultHTTPTransport()
	}
	return &Transport{
		Username:  username,
		Password:  password,
		Cnoncer:   Cnoncer16,
		Transport: transport,
	}
}

// DefaultHTTPTransport ...
func DefaultHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// clientFor returns a Client for the given Digest challenge, building a new
// one when the nonce changed or the server flagged the old one stale.
func (t *Transport) clientFor(ch *challenge.Challenge) (*Client, error) {
	nonce, _ := ch.Param("nonce")
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.nonce == nonce && !Stale(ch) {
		return t.client, nil
	}
	c, err := NewClient(ch, WithCnoncer(t.Cnoncer))
	if err != nil {
		return nil, err
	}
	t.client = c
	t.nonce = nonce
	return c, nil
}

// authorize computes the Authorization value for one request.
func (t *Transport) authorize(c *Client, method, uri string, body []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return c.Respond(&Params{
		Username: t.Username,
		Password: t.Password,
		Method:   method,
		URI:      uri,
		Body:     body,
	})
}

// RoundTrip sends our request and intercepts a 401.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Transport == nil {
		return nil, ErrNilTransport
	}

	// cache req body (lets hope this isnt big or refactor)
	var body bytes.Buffer
	if req.Body != nil {
		io.Copy(&body, req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body.Bytes()))
	}

	// copy the request so we dont modify the input.
	copy := *req
	copy.Body = io.NopCloser(bytes.NewReader(body.Bytes()))
	copy.Header = http.Header{}
	for k, s := range req.Header {
		copy.Header[k] = s
	}

	// send the req and see if theres a challenge
	resp, err := t.Transport.RoundTrip(req)
	if err != nil || resp.StatusCode != 401 {
		return resp, err
	}

	// drain and close the connection
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// accept/reject the challenge
	challenges, err := challenge.ParseValues(resp.Header.Values("WWW-Authenticate"))
	if err != nil {
		return resp, err
	}
	var digestCh *challenge.Challenge
	for i := range challenges {
		if strings.EqualFold(challenges[i].Scheme, "Digest") {
			digestCh = &challenges[i]
			break
		}
	}
	if digestCh == nil {
		return resp, ErrNoDigestChallenge
	}

	c, err := t.clientFor(digestCh)
	if err != nil {
		return resp, err
	}

	// form credentials based on the challenge.
	reqBody := body.Bytes()
	if reqBody == nil {
		reqBody = []byte{}
	}
	auth, err := t.authorize(c, copy.Method, copy.URL.RequestURI(), reqBody)
	if err != nil {
		return resp, err
	}

	// make authenticated request.
	copy.Header.Set("Authorization", auth)
	return t.Transport.RoundTrip(&copy)
}
