package interpret

import (
	"regexp"
	"strings"
)

var (
	// repairKeyPattern finds the opening quote of a repairable string value.
	repairKeyPattern = regexp.MustCompile(`"(bio|about|strategy)"\s*:\s*"`)
	// nextKeyPattern matches the start of the following object member.
	nextKeyPattern = regexp.MustCompile(`^"[A-Za-z_][A-Za-z0-9_]*"\s*:`)
)

// repairStrings rewrites the string values of long free-text fields so they
// are valid JSON: stray backslashes are doubled, raw control characters are
// escaped, and quotes that do not end the value are escaped.
func repairStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 64)

	cursor := 0
	for cursor < len(s) {
		loc := repairKeyPattern.FindStringIndex(s[cursor:])
		if loc == nil {
			break
		}
		valueStart := cursor + loc[1]
		b.WriteString(s[cursor:valueStart])

		body, end := repairValue(s, valueStart)
		b.WriteString(body)
		cursor = end
	}
	b.WriteString(s[cursor:])
	return b.String()
}

// repairValue rewrites the string body starting at i (just after the opening
// quote). It returns the repaired body including the closing quote and the
// index after that quote.
func repairValue(s string, i int) (string, int) {
	var b strings.Builder
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 < len(s) && isEscape(s, i+1) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '"':
			if closesValue(s[i+1:]) {
				b.WriteByte('"')
				return b.String(), i + 1
			}
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
		i++
	}
	// Unterminated value; close it so the parser can decide.
	b.WriteByte('"')
	return b.String(), i
}

// isEscape reports whether s[j] starts a valid JSON escape after a backslash.
func isEscape(s string, j int) bool {
	switch s[j] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if j+5 > len(s) {
			return false
		}
		for _, h := range s[j+1 : j+5] {
			if !strings.ContainsRune("0123456789abcdefABCDEF", h) {
				return false
			}
		}
		return true
	}
	return false
}

// closesValue reports whether a quote followed by rest terminates a string
// value: it must be followed by a closing brace, the end of input, or a comma
// and then another key. A comma followed by a plain quoted phrase, as in
// `"The Hindu", "Yojana"`, stays inside the value.
func closesValue(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	if rest == "" || rest[0] == '}' {
		return true
	}
	if rest[0] != ',' {
		return false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	return rest == "" || rest[0] == '}' || nextKeyPattern.MatchString(rest)
}
