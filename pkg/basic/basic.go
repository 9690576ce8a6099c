// Package basic implements the client side of the 'Basic' HTTP
// authentication scheme (RFC 7617). It deliberately has no hash
// dependencies.
package basic

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/scottlamb/http-auth/pkg/challenge"
)

var (
	ErrBadChallenge = errors.New("challenge is bad")

	// ErrInvalidCredentials indicates a username containing ':' or a
	// control byte in either field; neither survives the user-pass form.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Respond encodes the credentials into an Authorization header value:
// `Basic ` followed by base64("username:password"). Bytes are encoded as
// given; transcoding to the server's charset, when relevant, is up to the
// caller.
func Respond(username, password string) (string, error) {
	if strings.ContainsRune(username, ':') || hasCTL(username) || hasCTL(password) {
		return "", ErrInvalidCredentials
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password)), nil
}

func hasCTL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7F {
			return true
		}
	}
	return false
}

// Client answers a parsed Basic challenge. It retains the realm (for
// display) and the advertised charset; every other parameter is ignored.
type Client struct {
	realm   string
	charset string
}

// NewClient builds a Client from one parsed Basic challenge.
func NewClient(ch *challenge.Challenge) (*Client, error) {
	if !strings.EqualFold(ch.Scheme, "Basic") || ch.Token68 != "" {
		return nil, ErrBadChallenge
	}
	c := &Client{}
	c.realm, _ = ch.Param("realm")
	c.charset, _ = ch.Param("charset")
	return c, nil
}

// Realm returns the challenge's realm, for display to the user.
func (c *Client) Realm() string { return c.realm }

// Charset returns the charset the server advertised, if any. RFC 7617 only
// allows "UTF-8"; the value is informational.
func (c *Client) Charset() string { return c.charset }

// Respond encodes the credentials for this challenge.
func (c *Client) Respond(username, password string) (string, error) {
	return Respond(username, password)
}
