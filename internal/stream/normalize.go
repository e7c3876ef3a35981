package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Normalize decodes a raw tool return value into a structured value.
//
// Tool results arrive in one of three encodings depending on the
// provider: well-formed JSON, a Python-literal rendering of a dict or
// list (single quotes, True/False/None), or plain text. JSON is tried
// first, then the literal form; anything else comes back unchanged as
// the original string.
func Normalize(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}

	switch trimmed[0] {
	case '{', '[', '"':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}

	if v, err := parseLiteral(trimmed); err == nil {
		return v
	}
	return raw
}

// parseLiteral decodes a Python-style literal: dicts, lists, tuples,
// quoted strings, True/False/None and numbers. It accepts only a
// complete literal with nothing trailing.
func parseLiteral(s string) (any, error) {
	p := &literalParser{input: s}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("trailing data at offset %d", p.pos)
	}
	return v, nil
}

type literalParser struct {
	input string
	pos   int
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of input")
	}

	switch c := p.input[p.pos]; {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.list(']')
	case c == '(':
		return p.list(')')
	case c == '\'' || c == '"':
		return p.quoted()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *literalParser) dict() (any, error) {
	p.pos++ // consume {
	result := make(map[string]any)
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '}' {
		p.pos++
		return result, nil
	}
	for {
		key, err := p.value()
		if err != nil {
			return nil, err
		}
		keyStr, ok := key.(string)
		if !ok {
			keyStr = fmt.Sprint(key)
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ':' {
			return nil, fmt.Errorf("expected ':' at offset %d", p.pos)
		}
		p.pos++
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		result[keyStr] = val

		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("unterminated dict")
		}
		switch p.input[p.pos] {
		case ',':
			p.pos++
			p.skipSpace()
			// trailing comma
			if p.pos < len(p.input) && p.input[p.pos] == '}' {
				p.pos++
				return result, nil
			}
		case '}':
			p.pos++
			return result, nil
		default:
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
		}
	}
}

// list parses lists and tuples; both decode to a slice.
func (p *literalParser) list(close byte) (any, error) {
	p.pos++ // consume opening bracket
	result := []any{}
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == close {
		p.pos++
		return result, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		result = append(result, v)

		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("unterminated sequence")
		}
		switch p.input[p.pos] {
		case ',':
			p.pos++
			p.skipSpace()
			if p.pos < len(p.input) && p.input[p.pos] == close {
				p.pos++
				return result, nil
			}
		case close:
			p.pos++
			return result, nil
		default:
			return nil, fmt.Errorf("expected ',' or %q at offset %d", close, p.pos)
		}
	}
}

func (p *literalParser) quoted() (any, error) {
	quote := p.input[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return nil, fmt.Errorf("unterminated escape")
			}
			esc := p.input[p.pos]
			p.pos++
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			case 'u':
				if p.pos+4 > len(p.input) {
					return nil, fmt.Errorf("truncated unicode escape")
				}
				n, err := strconv.ParseUint(p.input[p.pos:p.pos+4], 16, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid unicode escape: %w", err)
				}
				p.pos += 4
				b.WriteRune(rune(n))
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		default:
			r, size := utf8.DecodeRuneInString(p.input[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	if p.input[p.pos] == '-' || p.input[p.pos] == '+' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			p.pos++
			continue
		}
		if (c == '-' || c == '+') && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E') {
			p.pos++
			continue
		}
		break
	}
	text := p.input[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	// Decode to float64 so JSON and literal paths agree on numeric types.
	return float64(n), nil
}

func (p *literalParser) keyword() (any, error) {
	rest := p.input[p.pos:]
	switch {
	case strings.HasPrefix(rest, "True"):
		p.pos += 4
		return true, nil
	case strings.HasPrefix(rest, "False"):
		p.pos += 5
		return false, nil
	case strings.HasPrefix(rest, "None"):
		p.pos += 4
		return nil, nil
	case strings.HasPrefix(rest, "true"):
		p.pos += 4
		return true, nil
	case strings.HasPrefix(rest, "false"):
		p.pos += 5
		return false, nil
	case strings.HasPrefix(rest, "null"):
		p.pos += 4
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected token at offset %d", p.pos)
	}
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}
