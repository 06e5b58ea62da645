package common

import (
	"fmt"
	"strings"
	"time"
)

// DateTimePattern is a datetime pattern in the letter notation shared by
// Spark and Java, e.g. "yyyy-MM-dd HH:mm:ss".
type DateTimePattern string

// DefaultTimestampPattern is the pattern used for every order timestamp.
const DefaultTimestampPattern DateTimePattern = "yyyy-MM-dd HH:mm:ss"

type patternToken struct {
	letters  string
	layout   string
	strftime string
}

// Longest tokens first so "yyyy" wins over "yy".
var patternTokens = []patternToken{
	{"yyyy", "2006", "%Y"},
	{"yy", "06", "%y"},
	{"MMMM", "January", "%B"},
	{"MMM", "Jan", "%b"},
	{"MM", "01", "%m"},
	{"dd", "02", "%d"},
	{"HH", "15", "%H"},
	{"hh", "03", "%I"},
	{"mm", "04", "%M"},
	{"ss", "05", "%S"},
	{"SSSSSS", "000000", "%f"},
	{"SSS", "000", "%g"},
	{"EEEE", "Monday", "%A"},
	{"EEE", "Mon", "%a"},
	{"a", "PM", "%p"},
	{"XXX", "Z07:00", "%z"},
	{"Z", "-0700", "%z"},
}

// Layout converts the pattern into a Go time layout.
func (p DateTimePattern) Layout() (string, error) {
	return p.convert(func(t patternToken) string { return t.layout }, func(s string) string { return s })
}

// Strftime converts the pattern into the strftime notation SQL engines use.
func (p DateTimePattern) Strftime() (string, error) {
	return p.convert(
		func(t patternToken) string { return t.strftime },
		func(s string) string { return strings.ReplaceAll(s, "%", "%%") },
	)
}

func (p DateTimePattern) convert(token func(patternToken) string, literal func(string) string) (string, error) {
	src := string(p)
	if src == "" {
		return "", fmt.Errorf("empty datetime pattern")
	}

	var sb strings.Builder
	for i := 0; i < len(src); {
		c := src[i]

		if c == '\'' {
			end := strings.IndexByte(src[i+1:], '\'')
			if end < 0 {
				return "", fmt.Errorf("unterminated quote in datetime pattern %q", src)
			}
			sb.WriteString(literal(src[i+1 : i+1+end]))
			i += end + 2
			continue
		}

		if isPatternLetter(c) {
			matched := false
			for _, t := range patternTokens {
				if strings.HasPrefix(src[i:], t.letters) {
					sb.WriteString(token(t))
					i += len(t.letters)
					matched = true
					break
				}
			}
			if !matched {
				return "", fmt.Errorf("unsupported datetime pattern letter %q in %q", c, src)
			}
			continue
		}

		sb.WriteString(literal(string(c)))
		i++
	}
	return sb.String(), nil
}

func isPatternLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ParseTimestamp parses text with a Go layout in UTC. Input the layout does
// not describe exactly, such as fractional seconds after a seconds field, is
// rejected.
func ParseTimestamp(layout, text string) (time.Time, bool) {
	ts, err := time.ParseInLocation(layout, text, time.UTC)
	if err != nil || ts.Format(layout) != text {
		return time.Time{}, false
	}
	return ts, true
}
