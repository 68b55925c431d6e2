// Package interpret turns raw model text into a JSON document, escalating
// through strict parsing, object extraction, and targeted string repair.
package interpret

import (
	"encoding/json"
	"strings"
)

// Stage records which parser produced an Outcome.
type Stage int

const (
	StageUnrecoverable Stage = iota
	StageStrict
	StageExtracted
	StageRepaired
)

func (s Stage) String() string {
	switch s {
	case StageStrict:
		return "strict"
	case StageExtracted:
		return "extracted"
	case StageRepaired:
		return "repaired"
	default:
		return "unrecoverable"
	}
}

// Doc is an interpreted JSON object. Its shape is not fixed; read fields
// through Field.
type Doc map[string]any

// legacyAliases maps a current field name to names earlier prompt
// revisions used for it.
var legacyAliases = map[string][]string{
	"bio": {"about"},
}

// Field returns the value stored under name, falling back to its legacy
// aliases.
func (d Doc) Field(name string) (any, bool) {
	if v, ok := d[name]; ok {
		return v, true
	}
	for _, alias := range legacyAliases[name] {
		if v, ok := d[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

// Outcome is the result of Interpret. Doc is nil when Stage is
// StageUnrecoverable.
type Outcome struct {
	Doc   Doc
	Stage Stage
}

// OK reports whether a document was recovered.
func (o Outcome) OK() bool {
	return o.Stage != StageUnrecoverable
}

// Interpret parses text into a JSON object. It never panics and never
// returns an error; failure is StageUnrecoverable.
func Interpret(text string) Outcome {
	if doc, ok := parseObject(strings.TrimSpace(text)); ok {
		return Outcome{Doc: doc, Stage: StageStrict}
	}

	extracted, found := extractObject(text)
	if !found {
		return Outcome{Stage: StageUnrecoverable}
	}
	if doc, ok := parseObject(extracted); ok {
		return Outcome{Doc: doc, Stage: StageExtracted}
	}

	if doc, ok := parseObject(repairStrings(extracted)); ok {
		return Outcome{Doc: doc, Stage: StageRepaired}
	}
	return Outcome{Stage: StageUnrecoverable}
}

func parseObject(s string) (Doc, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var doc Doc
	if err := json.Unmarshal([]byte(s), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// extractObject strips markdown fences and returns the text from the first
// '{' to the last '}'.
func extractObject(text string) (string, bool) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return strings.TrimSpace(text[start : end+1]), true
}

// Excerpt returns at most n runes of raw for diagnostics, marking truncation.
func Excerpt(raw string, n int) string {
	raw = strings.TrimSpace(raw)
	r := []rune(raw)
	if n <= 0 || len(r) <= n {
		return raw
	}
	return string(r[:n]) + "...(truncated)"
}
