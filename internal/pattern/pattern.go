// Package pattern implements the wildcard template matcher used to find
// legacy markdown markers in plain text.
//
// A template is made of literal runes, the line boundary marker '\n' and the
// wildcard '?'. A leading '\n' matches at the start of the text or of a line
// without consuming anything. Any later '\n' matches at the end of a line,
// consuming the newline, or at the end of the text without consuming
// anything. '?' skips forward until the next template element matches.
package pattern

import (
	"errors"
	"fmt"
)

const (
	boundary = '\n'
	wildcard = '?'
)

// ErrInvalidTemplate is returned for templates the matcher cannot run.
var ErrInvalidTemplate = errors.New("pattern: invalid template")

// Source is the text being scanned.
type Source interface {
	Len() int
	RuneAt(pos int) rune
}

// Runes adapts a rune slice to Source.
type Runes []rune

func (r Runes) Len() int            { return len(r) }
func (r Runes) RuneAt(pos int) rune { return r[pos] }

// Range is a half-open rune range.
type Range struct {
	Start, End int
}

// Len returns the number of runes in the range.
func (r Range) Len() int { return r.End - r.Start }

// Match is a successful template match. Holes holds one range per wildcard.
type Match struct {
	Range
	Holes []Range
}

// Template is a validated template.
type Template struct {
	raw   string
	runes []rune
	holes int
}

// Compile validates tmpl.
func Compile(tmpl string) (*Template, error) {
	rs := []rune(tmpl)
	if len(rs) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	holes := 0
	for i, r := range rs {
		if r != wildcard {
			continue
		}
		holes++
		if i == len(rs)-1 {
			return nil, fmt.Errorf("%w: %q ends with a wildcard", ErrInvalidTemplate, tmpl)
		}
		if rs[i+1] == wildcard {
			return nil, fmt.Errorf("%w: %q has adjacent wildcards", ErrInvalidTemplate, tmpl)
		}
		if i == 0 {
			return nil, fmt.Errorf("%w: %q starts with a wildcard", ErrInvalidTemplate, tmpl)
		}
	}
	return &Template{raw: tmpl, runes: rs, holes: holes}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(tmpl string) *Template {
	t, err := Compile(tmpl)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) String() string { return t.raw }

// Runes returns the template runes.
func (t *Template) Runes() []rune { return t.runes }

// Find compiles tmpl and returns its first match in src within [start, end).
// It fails with ErrInvalidTemplate before scanning anything.
func Find(tmpl string, src Source, start, end int) (Match, bool, error) {
	t, err := Compile(tmpl)
	if err != nil {
		return Match{}, false, err
	}
	m, ok := t.Find(src, start, end)
	return m, ok, nil
}

// Find returns the first match starting in [start, end).
func (t *Template) Find(src Source, start, end int) (Match, bool) {
	if end > src.Len() || end < 0 {
		end = src.Len()
	}
	return t.newMatcher(src, end).find(start)
}

// FindAll returns every non-overlapping match in [start, end), in order.
func (t *Template) FindAll(src Source, start, end int) []Match {
	if end > src.Len() || end < 0 {
		end = src.Len()
	}
	mt := t.newMatcher(src, end)
	var out []Match
	for start < end {
		m, ok := mt.find(start)
		if !ok {
			break
		}
		out = append(out, m)
		start = max(m.End, m.Start+1)
	}
	return out
}

func atLineStart(src Source, i int) bool {
	return i == 0 || src.RuneAt(i-1) == '\n'
}

func atLineEnd(src Source, i, end int) bool {
	return i == src.Len() || (i < end && src.RuneAt(i) == '\n')
}

// elementMatches reports whether template element r matches at i without
// consuming anything.
func elementMatches(src Source, r rune, i, end int) bool {
	if r == boundary {
		return atLineEnd(src, i, end)
	}
	return i < end && src.RuneAt(i) == r
}

// skip is the outcome of one wildcard scan: scanning from any position in
// [from, to] stops at to, or fails when found is false.
type skip struct {
	from, to int
	found    bool
	valid    bool
}

// matcher runs one template over one source window. The position reached
// at each template element never decreases from one attempt to the next,
// so every wildcard remembers its last scan and never rescans text it
// already passed over. A search costs O(n·k).
type matcher struct {
	t     *Template
	src   Source
	end   int
	skips []skip
	steps int
}

func (t *Template) newMatcher(src Source, end int) *matcher {
	return &matcher{t: t, src: src, end: end, skips: make([]skip, len(t.runes))}
}

func (mt *matcher) find(start int) (Match, bool) {
	for at := max(start, 0); at < mt.end; at++ {
		if m, ok := mt.matchAt(at); ok {
			return m, true
		}
	}
	return Match{}, false
}

// skipTo returns where the wildcard at template position pos stops when
// its scan starts at i.
func (mt *matcher) skipTo(pos, i int) (int, bool) {
	sk := &mt.skips[pos]
	if sk.valid && i >= sk.from && (!sk.found || i <= sk.to) {
		return sk.to, sk.found
	}
	next := mt.t.runes[pos+1]
	from := i
	for !elementMatches(mt.src, next, i, mt.end) {
		mt.steps++
		if i >= mt.end {
			*sk = skip{from: from, found: false, valid: true}
			return 0, false
		}
		i++
	}
	*sk = skip{from: from, to: i, found: true, valid: true}
	return i, true
}

func (mt *matcher) matchAt(at int) (Match, bool) {
	src, end, runes := mt.src, mt.end, mt.t.runes
	m := Match{Range: Range{Start: at}}
	if mt.t.holes > 0 {
		m.Holes = make([]Range, 0, mt.t.holes)
	}
	i := at
	for pos := 0; pos < len(runes); pos++ {
		mt.steps++
		r := runes[pos]
		switch {
		case r == boundary && pos == 0:
			if !atLineStart(src, i) {
				return Match{}, false
			}
		case r == boundary:
			if i == src.Len() {
				continue
			}
			if i >= end || src.RuneAt(i) != '\n' {
				return Match{}, false
			}
			i++
		case r == wildcard:
			stop, ok := mt.skipTo(pos, i)
			if !ok {
				return Match{}, false
			}
			m.Holes = append(m.Holes, Range{Start: i, End: stop})
			i = stop
		default:
			if i >= end || src.RuneAt(i) != r {
				return Match{}, false
			}
			i++
		}
	}
	m.End = i
	return m, true
}
