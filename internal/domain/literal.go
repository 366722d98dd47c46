package domain

import (
	"strings"
	"unicode"
)

// ParseListLiteral parses a Python-style list literal such as
// "['USA', 'CHN']" or "[['USA']]". Elements may be quoted strings, numbers,
// None, True/False, or nested lists. ok is false for anything that is not a
// well-formed list literal.
func ParseListLiteral(s string) (AreaValue, bool) {
	p := &literalParser{src: []rune(s)}
	p.skipSpace()
	if p.peek() != '[' {
		return AreaValue{}, false
	}
	v, ok := p.value()
	if !ok {
		return AreaValue{}, false
	}
	p.skipSpace()
	if !p.done() {
		return AreaValue{}, false
	}
	return v, true
}

type literalParser struct {
	src []rune
	pos int
}

func (p *literalParser) done() bool { return p.pos >= len(p.src) }

func (p *literalParser) peek() rune {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for !p.done() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *literalParser) value() (AreaValue, bool) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '[':
		return p.list()
	case c == '\'' || c == '"':
		s, ok := p.quoted(c)
		return AreaText(s), ok
	case c == '-' || c == '+' || c == '.' || unicode.IsDigit(c):
		return p.number()
	case unicode.IsLetter(c):
		return p.keyword()
	default:
		return AreaValue{}, false
	}
}

func (p *literalParser) list() (AreaValue, bool) {
	p.pos++ // '['
	items := []AreaValue{}
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return AreaList(items...), true
		}
		v, ok := p.value()
		if !ok {
			return AreaValue{}, false
		}
		items = append(items, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return AreaList(items...), true
		default:
			return AreaValue{}, false
		}
	}
}

func (p *literalParser) quoted(q rune) (string, bool) {
	p.pos++
	var b strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case q:
			return b.String(), true
		case '\n':
			return "", false
		case '\\':
			if p.done() {
				return "", false
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '\\', '\'', '"':
				b.WriteRune(e)
			default:
				b.WriteRune('\\')
				b.WriteRune(e)
			}
		default:
			b.WriteRune(c)
		}
	}
	return "", false
}

func (p *literalParser) number() (AreaValue, bool) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	digits := 0
	for !p.done() {
		c := p.src[p.pos]
		if unicode.IsDigit(c) {
			digits++
		} else if c != '.' && c != 'e' && c != 'E' && c != '_' &&
			!((c == '-' || c == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')) {
			break
		}
		p.pos++
	}
	if digits == 0 {
		return AreaValue{}, false
	}
	return AreaText(string(p.src[start:p.pos])), true
}

func (p *literalParser) keyword() (AreaValue, bool) {
	start := p.pos
	for !p.done() && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	switch string(p.src[start:p.pos]) {
	case "None":
		return AreaAbsent(), true
	case "True":
		return AreaText("True"), true
	case "False":
		return AreaText("False"), true
	default:
		return AreaValue{}, false
	}
}
