package challenge

// Byte classes from the ABNF collected in RFC 7235 appendix C and the rules
// it imports from RFC 7230.
const (
	cTchar = 1 << iota // token character, RFC 7230 3.2.6
	cQdtext            // may appear bare inside a quoted-string
	cEscapable         // may follow a backslash inside a quoted-string
	cOWS               // SP / HTAB
	cToken68           // token68 body character, RFC 7235 2.1 (excludes the trailing '=')
)

var classes [256]uint8

func init() {
	for i := 0; i < 256; i++ {
		b := byte(i)
		var c uint8
		switch {
		case b >= '0' && b <= '9', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
			c |= cTchar | cToken68
		case b == '-' || b == '.' || b == '_' || b == '~' || b == '+':
			c |= cTchar | cToken68
		case b == '/':
			c |= cToken68
		case b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
			b == '\'' || b == '*' || b == '^' || b == '`' || b == '|':
			c |= cTchar
		}
		// qdtext = HTAB / SP / %x21 / %x23-5B / %x5D-7E / obs-text
		if b == '\t' || b == ' ' || b == 0x21 || (b >= 0x23 && b <= 0x5B) || (b >= 0x5D && b <= 0x7E) || b >= 0x80 {
			c |= cQdtext
		}
		// quoted-pair = "\" ( HTAB / SP / VCHAR / obs-text )
		if b == '\t' || b == ' ' || (b >= 0x21 && b <= 0x7E) || b >= 0x80 {
			c |= cEscapable
		}
		if b == ' ' || b == '\t' {
			c |= cOWS
		}
		classes[b] = c
	}
}

func isTchar(b byte) bool     { return classes[b]&cTchar != 0 }
func isQdtext(b byte) bool    { return classes[b]&cQdtext != 0 }
func isEscapable(b byte) bool { return classes[b]&cEscapable != 0 }
func isOWS(b byte) bool       { return classes[b]&cOWS != 0 }
func isToken68(b byte) bool   { return classes[b]&cToken68 != 0 }

// IsToken reports whether s is a non-empty RFC 7230 token.
func IsToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTchar(s[i]) {
			return false
		}
	}
	return true
}
