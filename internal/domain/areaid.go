package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type areaKind uint8

const (
	areaAbsent areaKind = iota
	areaText
	areaSeq
)

// AreaValue is a raw administrative-area cell: absent, a text scalar, or a
// sequence of values (possibly nested). The zero value is absent.
type AreaValue struct {
	kind  areaKind
	text  string
	items []AreaValue
}

// AreaAbsent returns an empty cell.
func AreaAbsent() AreaValue { return AreaValue{} }

// AreaText returns a text cell.
func AreaText(s string) AreaValue { return AreaValue{kind: areaText, text: s} }

// AreaList returns a sequence cell.
func AreaList(items ...AreaValue) AreaValue {
	return AreaValue{kind: areaSeq, items: items}
}

// AreaCodes is shorthand for a flat sequence of text elements.
func AreaCodes(codes ...string) AreaValue {
	items := make([]AreaValue, len(codes))
	for i, c := range codes {
		items[i] = AreaText(c)
	}
	return AreaList(items...)
}

func (v AreaValue) IsAbsent() bool { return v.kind == areaAbsent }

// Text returns the scalar text and whether v is a text cell.
func (v AreaValue) Text() (string, bool) { return v.text, v.kind == areaText }

// Items returns the elements of a sequence cell, or nil.
func (v AreaValue) Items() []AreaValue {
	if v.kind != areaSeq {
		return nil
	}
	return v.items
}

// String renders v the way a Python literal prints: None, USA, ['USA'].
func (v AreaValue) String() string {
	switch v.kind {
	case areaText:
		return v.text
	case areaSeq:
		return v.repr()
	default:
		return "None"
	}
}

func (v AreaValue) repr() string {
	switch v.kind {
	case areaText:
		return "'" + v.text + "'"
	case areaSeq:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.repr()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "None"
	}
}

// parsed resolves a text cell holding a list literal into a sequence.
// Text that is not a list literal stays text.
func (v AreaValue) parsed() AreaValue {
	if v.kind != areaText {
		return v
	}
	if lit, ok := ParseListLiteral(v.text); ok {
		return lit
	}
	return v
}

// Unnest keeps only the first element of a sequence cell, wrapping a text
// element as a one-element list: [['USA'], ['CHN']] -> ['USA'] and
// ['USA', 'CHN'] -> ['USA']. Text holding a literal is parsed first. Empty
// sequences and non-sequence cells are returned unchanged.
func (v AreaValue) Unnest() AreaValue {
	p := v.parsed()
	if p.kind != areaSeq || len(p.items) == 0 {
		return p
	}
	first := p.items[0]
	if first.kind == areaText {
		return AreaList(first)
	}
	return first
}

// elements flattens the cell one level into candidate strings. Absent
// elements are skipped.
func (v AreaValue) elements() []string {
	p := v.parsed()
	switch p.kind {
	case areaText:
		return []string{p.text}
	case areaSeq:
		var flat []AreaValue
		for _, it := range p.items {
			if it.kind == areaSeq {
				flat = append(flat, it.items...)
				continue
			}
			flat = append(flat, it)
		}
		out := make([]string, 0, len(flat))
		for _, it := range flat {
			if it.kind == areaAbsent {
				continue
			}
			out = append(out, it.String())
		}
		return out
	default:
		return nil
	}
}

// AreaOutcome is the result class of resolving one area cell.
type AreaOutcome string

const (
	AreaResolved    AreaOutcome = "resolved"
	AreaMissing     AreaOutcome = "missing_area"
	AreaNoValidCode AreaOutcome = "no_valid_code"
	AreaAmbiguous   AreaOutcome = "ambiguous_area"
)

// Normalizer turns raw area cells into a single 3-letter code.
type Normalizer struct {
	// RejectAuxiliaryPrefix additionally rejects any candidate starting with
	// 'Z'. Off by default: digit-bearing auxiliary codes (Z01..Z09) already
	// fail the alphabetic check, but a letters-only 'Z' code would pass.
	RejectAuxiliaryPrefix bool
}

// Resolve returns the single valid code in raw, if there is exactly one.
func (n Normalizer) Resolve(raw AreaValue) (string, AreaOutcome) {
	if raw.IsAbsent() {
		return "", AreaMissing
	}

	var found []string
	for _, e := range raw.elements() {
		if code, ok := n.candidate(e); ok {
			found = append(found, code)
		}
	}

	switch len(found) {
	case 0:
		return "", AreaNoValidCode
	case 1:
		return found[0], AreaResolved
	default:
		return "", AreaAmbiguous
	}
}

// candidate cleans one element: trim, keep the first three characters,
// upper-case, then require exactly three letters.
func (n Normalizer) candidate(e string) (string, bool) {
	r := []rune(strings.TrimSpace(e))
	if len(r) > 3 {
		r = r[:3]
	}
	code := []rune(cases.Upper(language.Und).String(string(r)))
	if len(code) != 3 {
		return "", false
	}
	for _, c := range code {
		if !unicode.IsLetter(c) {
			return "", false
		}
	}
	if n.RejectAuxiliaryPrefix && code[0] == 'Z' {
		return "", false
	}
	return string(code), true
}

// NormalizeAreaID resolves raw with the default rules. ok is false when the
// cell is missing, holds no valid code, or holds more than one.
func NormalizeAreaID(raw AreaValue) (code string, ok bool) {
	code, outcome := Normalizer{}.Resolve(raw)
	return code, outcome == AreaResolved
}
