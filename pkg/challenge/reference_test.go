package challenge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// An independent, grammar-driven parser used as an oracle. It is a direct
// transcription of the ABNF with ordered choice and backtracking, sharing
// none of the production parser's single-pass machinery:
//
//	challenge-list = *( "," OWS ) challenge *( OWS 1*( "," OWS ) challenge )
//	challenge      = scheme [ 1*SP ( token68 / auth-params ) ]
//	auth-params    = auth-param *( OWS 1*( "," OWS ) auth-param )
//	auth-param     = token BWS "=" BWS ( token / quoted-string )
//
// The two grammar ambiguities are resolved by the same policy the
// production parser documents: a token68 matches only when followed by a
// list delimiter or end of input, and a comma continues the current
// challenge's parameters only when `token BWS "="` follows. The oracle is
// more permissive in exactly one way: it does not reject duplicate
// parameter names.
type refChallenge struct {
	scheme  string
	token68 string
	params  []refParam
}

type refParam struct {
	name  string
	value string // unescaped
}

func refParse(s string) ([]refChallenge, bool) {
	i := refOWS(s, 0)
	if i == len(s) {
		return nil, true
	}
	i, _ = refCommas(s, i)
	ch, i, ok := refOneChallenge(s, i)
	if !ok {
		return nil, false
	}
	out := []refChallenge{ch}
	for {
		j := refOWS(s, i)
		j, n := refCommas(s, j)
		if n == 0 {
			break
		}
		ch, k, ok := refOneChallenge(s, j)
		if !ok {
			break // backtrack the separator
		}
		out = append(out, ch)
		i = k
	}
	// Trailing OWS only; anything else, including a trailing comma, was
	// left unconsumed by the backtracking above.
	if refOWS(s, i) != len(s) {
		return nil, false
	}
	return out, true
}

func refOneChallenge(s string, i int) (refChallenge, int, bool) {
	scheme, i, ok := refToken(s, i)
	if !ok {
		return refChallenge{}, i, false
	}
	ch := refChallenge{scheme: scheme}
	j := refOWS(s, i)
	if j == i {
		return ch, i, true // no body without 1*SP
	}
	if tok, k, ok := refToken68(s, j); ok {
		ch.token68 = tok
		return ch, k, true
	}
	p, k, ok := refAuthParam(s, j)
	if !ok {
		return ch, i, true // scheme only; SP left for the caller
	}
	ch.params = append(ch.params, p)
	i = k
	for {
		j := refOWS(s, i)
		j, n := refCommas(s, j)
		if n == 0 {
			break
		}
		p, k, ok := refAuthParam(s, j)
		if !ok {
			break
		}
		ch.params = append(ch.params, p)
		i = k
	}
	return ch, i, true
}

func refAuthParam(s string, i int) (refParam, int, bool) {
	name, i, ok := refToken(s, i)
	if !ok {
		return refParam{}, i, false
	}
	i = refOWS(s, i)
	if i >= len(s) || s[i] != '=' {
		return refParam{}, i, false
	}
	i = refOWS(s, i+1)
	if i < len(s) && s[i] == '"' {
		v, j, ok := refQuotedString(s, i)
		if !ok {
			return refParam{}, i, false
		}
		return refParam{name: lowerASCII(name), value: v}, j, true
	}
	v, j, ok := refToken(s, i)
	if !ok {
		return refParam{}, i, false
	}
	return refParam{name: lowerASCII(name), value: v}, j, true
}

func refQuotedString(s string, i int) (string, int, bool) {
	i++ // opening DQUOTE
	var out []byte
	for i < len(s) {
		switch b := s[i]; {
		case b == '"':
			return string(out), i + 1, true
		case b == '\\':
			if i+1 >= len(s) || !isEscapable(s[i+1]) {
				return "", i, false
			}
			out = append(out, s[i+1])
			i += 2
		case isQdtext(b):
			out = append(out, b)
			i++
		default:
			return "", i, false
		}
	}
	return "", i, false
}

func refToken68(s string, i int) (string, int, bool) {
	j := i
	for j < len(s) && isToken68(s[j]) {
		j++
	}
	if j == i {
		return "", i, false
	}
	for j < len(s) && s[j] == '=' {
		j++
	}
	k := refOWS(s, j)
	if k < len(s) && s[k] != ',' {
		return "", i, false
	}
	return s[i:j], j, true
}

func refToken(s string, i int) (string, int, bool) {
	j := i
	for j < len(s) && isTchar(s[j]) {
		j++
	}
	return s[i:j], j, j > i
}

func refCommas(s string, i int) (int, int) {
	n := 0
	for i < len(s) && s[i] == ',' {
		n++
		i = refOWS(s, i+1)
	}
	return i, n
}

func refOWS(s string, i int) int {
	for i < len(s) && isOWS(s[i]) {
		i++
	}
	return i
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// requireAgreement checks the production parse against the oracle for one
// input the production parser accepted.
func requireAgreement(t *testing.T, input string, got []Challenge) {
	t.Helper()
	ref, ok := refParse(input)
	require.True(t, ok, "oracle rejects %q accepted by parser", input)
	require.Len(t, got, len(ref), "challenge count differs from oracle on %q", input)
	for i := range ref {
		require.Equal(t, ref[i].scheme, got[i].Scheme, "input %q", input)
		require.Equal(t, ref[i].token68, got[i].Token68, "input %q", input)
		require.Len(t, got[i].Params, len(ref[i].params), "input %q", input)
		for j := range ref[i].params {
			require.Equal(t, ref[i].params[j].name, got[i].Params[j].Name, "input %q", input)
			require.Equal(t, ref[i].params[j].value, got[i].Params[j].Value.Unescaped(), "input %q", input)
		}
	}
}

var corpus = []string{
	"",
	" ",
	"Basic",
	"Basic ",
	"Basic realm=\"foo\"",
	"Basic realm=foo",
	"Basic , Digest realm=x",
	", Basic realm=a ,, Digest realm=b",
	"Basic realm = \"x\"",
	"Basic realm=\"\"",
	"Basic realm=\"a\\\"b\"",
	"Basic realm=\"\\f\\o\\o\"",
	"Negotiate a87421000492aa874209af8bc028==",
	"Negotiate abcdef, Basic realm=x",
	"Basic realm=, Digest",
	"Scheme a=1, b=2, Other c=3",
	"Digest realm=\"r\", nonce=\"n\", qop=\"auth, auth-int\", algorithm=MD5",
	"Newauth realm=\"apps\", type=1, title=\"Login to \\\"apps\\\"\", Basic realm=\"simple\"",
	"Bearer error=invalid_token, error_description=\"expired\"",
	"UnsupportedSchemeA, Basic realm=\"foo\", UnsupportedSchemeB",
	"Basic realm=\"r\xc3\xa9alm\"",
	"Basic,",
	"Basic realm=\"x\",",
	"Basic realm=\"x",
	"Basic realm=\"x\\",
	"Basic =x",
	"=",
	",",
}

func TestReferenceAgreement(t *testing.T) {
	for _, input := range corpus {
		got, err := Parse(input)
		if err != nil {
			continue
		}
		requireAgreement(t, input, got)
	}
}
