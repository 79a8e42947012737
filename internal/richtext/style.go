package richtext

// Style is the formatting attached to a run of text.
type Style int

const (
	None Style = iota
	Bold
	Emph
	Code
	H1
	H2
	H3
)

var styleNames = [...]string{"none", "bold", "emph", "code", "h1", "h2", "h3"}

func (s Style) String() string {
	if s < 0 || int(s) >= len(styleNames) {
		return "unknown"
	}
	return styleNames[s]
}

// IsHeading reports whether s is one of the heading styles.
func (s Style) IsHeading() bool {
	return s == H1 || s == H2 || s == H3
}

// HeadingLevel returns 1..3 for heading styles and 0 otherwise.
func (s Style) HeadingLevel() int {
	if !s.IsHeading() {
		return 0
	}
	return int(s-H1) + 1
}

// HeadingStyle maps a heading level to its style. Levels outside 1..3 map to None.
func HeadingStyle(level int) Style {
	if level < 1 || level > 3 {
		return None
	}
	return H1 + Style(level-1)
}
