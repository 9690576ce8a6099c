package httpauth

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottlamb/http-auth/pkg/challenge"
	"github.com/scottlamb/http-auth/pkg/digest"
)

const wwwAuthenticate = `UnsupportedSchemeA, Basic realm="foo", UnsupportedSchemeB`

func TestSelectsBasicAmongUnknownSchemes(t *testing.T) {
	c, err := NewPasswordClient(wwwAuthenticate)
	require.NoError(t, err)
	auth, err := c.Respond(&Params{Username: "Aladdin", Password: "open sesame", Method: "GET", URI: "/"})
	require.NoError(t, err)
	assert.Equal(t, "Basic QWxhZGRpbjpvcGVuIHNlc2FtZQ==", auth)
}

func TestPrefersDigestOverBasic(t *testing.T) {
	value := `Basic realm="simple", Digest realm="r", nonce="n", qop="auth"`
	c, err := NewPasswordClient(value)
	require.NoError(t, err)
	auth, err := c.Respond(&Params{Username: "u", Password: "p", Method: "GET", URI: "/"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "Digest "), "got %q", auth)

	c, err = NewPasswordClient(value, WithPreference("Basic"))
	require.NoError(t, err)
	auth, err = c.Respond(&Params{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "Basic "), "got %q", auth)
}

func TestFirstDigestChallengeWins(t *testing.T) {
	value := `Digest realm="one", nonce="n1", Digest realm="two", nonce="n2"`
	c, err := NewPasswordClient(value)
	require.NoError(t, err)
	auth, err := c.Respond(&Params{Username: "u", Password: "p", Method: "GET", URI: "/"})
	require.NoError(t, err)
	assert.Contains(t, auth, `realm="one"`)
}

func TestNoSupportedScheme(t *testing.T) {
	_, err := NewPasswordClient("UnsupportedSchemeA, UnsupportedSchemeB")
	assert.ErrorIs(t, err, ErrNoSupportedScheme)

	_, err = NewPasswordClient("")
	assert.ErrorIs(t, err, ErrNoSupportedScheme)
}

func TestBrokenPreferredChallengeSurfaces(t *testing.T) {
	// The only Digest challenge is unusable; its construction error is
	// kept alongside ErrNoSupportedScheme when no fallback exists.
	_, err := NewPasswordClient(`Digest realm="r"`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSupportedScheme)
	var missing *digest.MissingParameterError
	assert.ErrorAs(t, err, &missing)

	// With a Basic fallback present, selection still succeeds.
	c, err := NewPasswordClient(`Digest realm="r", Basic realm="b"`)
	require.NoError(t, err)
	auth, err := c.Respond(&Params{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "Basic "))
}

func TestParseErrorsSurfaceUnchanged(t *testing.T) {
	_, err := NewPasswordClient(`Basic realm="x`)
	var pe *challenge.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 12, pe.Offset)
}

func TestFromValuesAndHeader(t *testing.T) {
	values := []string{`Basic realm="simple"`, `Digest realm="r", nonce="n"`}
	c, err := NewPasswordClientFromValues(values)
	require.NoError(t, err)
	auth, err := c.Respond(&Params{Username: "u", Password: "p", Method: "GET", URI: "/"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "Digest "))

	h := http.Header{}
	h.Add("Www-Authenticate", values[0])
	h.Add("Www-Authenticate", values[1])
	c, err = NewPasswordClientFromHeader(h, "WWW-Authenticate")
	require.NoError(t, err)
	auth, err = c.Respond(&Params{Username: "u", Password: "p", Method: "GET", URI: "/"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "Digest "))

	_, err = NewPasswordClientFromHeader(http.Header{}, "WWW-Authenticate")
	assert.ErrorIs(t, err, ErrNoSupportedScheme)
}

func TestDigestOptionsPassThrough(t *testing.T) {
	c, err := NewPasswordClient(`Digest realm="r", nonce="n", qop="auth"`,
		WithDigestOptions(digest.WithCnoncer(func() string { return "feedface" })))
	require.NoError(t, err)
	auth, err := c.Respond(&Params{Username: "u", Password: "p", Method: "GET", URI: "/"})
	require.NoError(t, err)
	assert.Contains(t, auth, `cnonce="feedface"`)
}
