package challenge

import (
	"log/slog"
	"strings"
)

// Parser is a single-pass parser over one challenge list. The zero value is
// not usable; call NewParser.
//
// The grammar (RFC 7235 section 2.1, RFC 7230 section 7 list rules):
//
//	challenge-list = *( "," OWS ) challenge *( OWS 1*( "," OWS ) challenge )
//	challenge      = scheme [ 1*SP ( token68 / auth-params ) ]
//	auth-params    = auth-param *( OWS 1*( "," OWS ) auth-param )
//	auth-param     = token BWS "=" BWS ( token / quoted-string )
//
// Two ambiguities make this more than a grammar transcription. A comma may
// separate two parameters of one challenge or one challenge from the next;
// after each comma the parser looks ahead for `token BWS "="`, which only an
// auth-param can match, and otherwise treats the token as the next scheme.
// A bare token after the scheme may be a token68 blob or a parameter name;
// it is a token68 only when, after its trailing '='s, nothing but OWS, a
// comma, or the end of input follows.
type Parser struct {
	input string
	pos   int
	log   *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithTrace emits a Debug-level event per structural element consumed. It
// never changes what the parser accepts or returns.
func WithTrace(log *slog.Logger) Option {
	return func(p *Parser) { p.log = log }
}

// NewParser returns a parser over input, which should be the value of one
// WWW-Authenticate or Proxy-Authenticate header, or several such values
// joined with commas.
func NewParser(input string, opts ...Option) *Parser {
	p := &Parser{input: input}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse parses a challenge list. Empty (or all-whitespace) input yields zero
// challenges. Any grammar violation yields a *ParseError.
func Parse(input string) ([]Challenge, error) {
	return NewParser(input).Parse()
}

// ParseValues parses the challenges of several header values, joined per the
// RFC 7230 section 3.2.2 rule that repeated fields are equivalent to one
// comma-joined field.
func ParseValues(values []string) ([]Challenge, error) {
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return Parse(values[0])
	}
	return Parse(strings.Join(values, ", "))
}

// Parse consumes the whole input and returns the challenge list in server
// order.
func (p *Parser) Parse() ([]Challenge, error) {
	p.ows()
	if p.eof() {
		return nil, nil
	}
	// Leading empty list elements are tolerated per RFC 7230 section 7,
	// but an input of only commas is not a list of one-or-more challenges.
	p.commas()
	if p.eof() {
		return nil, p.fail(p.pos, "expected auth scheme")
	}
	var out []Challenge
	for {
		ch, more, err := p.challenge()
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
		if !more {
			return out, nil
		}
	}
}

func (p *Parser) challenge() (*Challenge, bool, error) {
	start := p.pos
	scheme := p.token()
	if scheme == "" {
		return nil, false, p.fail(p.pos, "expected auth scheme")
	}
	p.trace("scheme", start, scheme)
	ch := &Challenge{Scheme: scheme}

	hadSP := p.sp()
	if p.eof() {
		return ch, false, nil
	}
	if p.peek() == ',' {
		more, err := p.separator()
		return ch, more, err
	}
	if !hadSP {
		return nil, false, p.fail(p.pos, "expected SP, ',' or end of input after scheme")
	}

	if tok68, ok := p.token68(); ok {
		p.trace("token68", start, tok68)
		ch.Token68 = tok68
		p.ows()
		if p.eof() {
			return ch, false, nil
		}
		if p.peek() != ',' {
			return nil, false, p.fail(p.pos, "unexpected byte after token68")
		}
		more, err := p.separator()
		return ch, more, err
	}

	for {
		if err := p.param(ch); err != nil {
			return nil, false, err
		}
		p.ows()
		if p.eof() {
			return ch, false, nil
		}
		if p.peek() != ',' {
			return nil, false, p.fail(p.pos, "expected ',' or end of input after parameter")
		}
		commaAt := p.pos
		p.pos++
		p.ows()
		p.commas()
		if p.eof() {
			return nil, false, p.fail(commaAt, "trailing comma")
		}
		if !p.paramAhead() {
			// Start of the next challenge.
			return ch, true, nil
		}
	}
}

// separator consumes the list separator between challenges when the current
// challenge carried no parameters. pos is at a comma. It reports whether a
// further challenge follows.
func (p *Parser) separator() (bool, error) {
	commaAt := p.pos
	p.pos++
	p.ows()
	p.commas()
	if p.eof() {
		return false, p.fail(commaAt, "trailing comma")
	}
	return true, nil
}

// commas consumes any run of empty list elements: *( "," OWS ).
func (p *Parser) commas() {
	for !p.eof() && p.peek() == ',' {
		p.pos++
		p.ows()
	}
}

// paramAhead reports, without consuming anything, whether the input at pos
// starts with `token BWS "="`. Only an auth-param can match that; a
// challenge's scheme is never followed by '='.
func (p *Parser) paramAhead() bool {
	i := p.pos
	for i < len(p.input) && isTchar(p.input[i]) {
		i++
	}
	if i == p.pos {
		return false
	}
	for i < len(p.input) && isOWS(p.input[i]) {
		i++
	}
	return i < len(p.input) && p.input[i] == '='
}

// param parses one auth-param into ch, rejecting duplicate names.
func (p *Parser) param(ch *Challenge) error {
	start := p.pos
	name := p.token()
	if name == "" {
		return p.fail(p.pos, "expected parameter name")
	}
	name = strings.ToLower(name)
	p.ows() // BWS
	if p.eof() || p.peek() != '=' {
		return p.fail(p.pos, "expected '=' after parameter name")
	}
	p.pos++
	p.ows() // BWS
	var value ParamValue
	if !p.eof() && p.peek() == '"' {
		var err error
		value, err = p.quotedString()
		if err != nil {
			return err
		}
	} else {
		tok := p.token()
		if tok == "" {
			return p.fail(p.pos, "expected token or quoted-string parameter value")
		}
		value = ParamValue{raw: tok}
	}
	for _, existing := range ch.Params {
		if existing.Name == name {
			return p.fail(start, "duplicate parameter "+name)
		}
	}
	p.trace("param", start, name)
	ch.Params = append(ch.Params, Param{Name: name, Value: value})
	return nil
}

// quotedString parses a quoted-string. pos is at the opening quote. The
// returned value excludes the surrounding quotes and keeps escapes intact.
// Any escapable byte may follow a backslash, not just the RFC 7230 set;
// real-world servers rely on that.
func (p *Parser) quotedString() (ParamValue, error) {
	open := p.pos
	p.pos++
	start := p.pos
	escapes := 0
	for !p.eof() {
		switch b := p.peek(); {
		case b == '"':
			v := ParamValue{raw: p.input[start:p.pos], escapes: escapes}
			p.pos++
			p.trace("quoted-string", open, v.raw)
			return v, nil
		case b == '\\':
			if p.pos+1 >= len(p.input) || !isEscapable(p.input[p.pos+1]) {
				return ParamValue{}, p.fail(p.pos, "invalid quoted-pair")
			}
			escapes++
			p.pos += 2
		case isQdtext(b):
			p.pos++
		default:
			return ParamValue{}, p.fail(p.pos, "invalid byte in quoted-string")
		}
	}
	return ParamValue{}, p.fail(open, "unterminated quoted-string")
}

// token68 attempts to consume a token68 blob. It succeeds only when the blob
// is followed by OWS and then a comma or the end of input; anything else
// means the bytes were the start of an auth-param, and nothing is consumed.
func (p *Parser) token68() (string, bool) {
	i := p.pos
	for i < len(p.input) && isToken68(p.input[i]) {
		i++
	}
	if i == p.pos {
		return "", false
	}
	for i < len(p.input) && p.input[i] == '=' {
		i++
	}
	j := i
	for j < len(p.input) && isOWS(p.input[j]) {
		j++
	}
	if j < len(p.input) && p.input[j] != ',' {
		return "", false
	}
	tok := p.input[p.pos:i]
	p.pos = i
	return tok, true
}

// token consumes a run of tchar bytes, which may be empty.
func (p *Parser) token() string {
	start := p.pos
	for !p.eof() && isTchar(p.peek()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// sp consumes a run of SP/HTAB, reporting whether any was present.
func (p *Parser) sp() bool {
	start := p.pos
	p.ows()
	return p.pos > start
}

func (p *Parser) ows() {
	for !p.eof() && isOWS(p.peek()) {
		p.pos++
	}
}

func (p *Parser) eof() bool  { return p.pos >= len(p.input) }
func (p *Parser) peek() byte { return p.input[p.pos] }

func (p *Parser) fail(offset int, reason string) error {
	return &ParseError{Offset: offset, Reason: reason}
}

func (p *Parser) trace(kind string, offset int, text string) {
	if p.log != nil {
		p.log.Debug("parse", slog.String("kind", kind), slog.Int("offset", offset), slog.String("text", text))
	}
}
