// Package prompt compiles the generation prompt for a topper from its
// identity fields and collected evidence. Compilation is pure.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/topper-enrich/internal/model"
)

// MaxEvidence caps the evidence items listed in a prompt.
const MaxEvidence = 24

// System is the fixed system instruction sent with every request.
const System = `You are a careful editorial researcher writing about Indian civil services exam toppers.
Use only the facts in the provided record and evidence. Never invent ranks, years, colleges, or quotes.
You always answer with exactly one JSON object and nothing else.`

const userTemplate = `Write an enrichment profile for the exam topper described below.

RECORD:
%s

EVIDENCE:
%s

OUTPUT CONTRACT
Return exactly one JSON object with these three keys and no others:

- "bio": string. 60-120 words, a single paragraph, factual and neutral. Mention rank and year when known.
- "strategy": string. 600-900 words of preparation strategy in markdown, organised into sections
  with "## " headings (for example: Background, Prelims, Mains, Optional Subject, Interview, Daily Routine).
  Inside this JSON string value you MUST escape characters literally:
    * write every line break as \n (backslash followed by n), never as a raw newline;
    * write every double quote as \";
    * write every backslash as \\.
- "insights": array of exactly 6 strings. Each is one short, actionable takeaway (under 25 words).

If the evidence is thin, stay general and do not fabricate specifics.

Respond with ONLY the JSON object. No markdown fences, no commentary, no text before or after it.`

// Prompt is a compiled generation request.
type Prompt struct {
	System string
	User   string
}

// header fixes the key order of the record line.
type header struct {
	ID              string `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Rank            *int   `json:"rank"`
	Year            *int   `json:"year"`
	OptionalSubject string `json:"optionalSubject"`
	Slug            string `json:"slug"`
}

// Compile builds the prompt for t from at most MaxEvidence items of ev.
func Compile(t model.Topper, ev []model.Evidence) Prompt {
	return Prompt{
		System: System,
		User:   fmt.Sprintf(userTemplate, Header(t), Evidence(ev)),
	}
}

// Header renders the identity fields of t as a single-line JSON object.
func Header(t model.Topper) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of strings and int pointers cannot fail.
	_ = enc.Encode(header{
		ID:              t.ID,
		FirstName:       t.FirstName,
		LastName:        t.LastName,
		Rank:            t.Rank,
		Year:            t.Year,
		OptionalSubject: t.OptionalSubject,
		Slug:            t.Slug,
	})
	return strings.TrimRight(buf.String(), "\n")
}

// Evidence renders a numbered listing of ev in order.
func Evidence(ev []model.Evidence) string {
	if len(ev) > MaxEvidence {
		ev = ev[:MaxEvidence]
	}
	if len(ev) == 0 {
		return "(no evidence found)"
	}

	var b strings.Builder
	for i, e := range ev {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] source: %s\n", i+1, oneLine(e.Source))
		fmt.Fprintf(&b, "    title: %s\n", oneLine(e.Title))
		fmt.Fprintf(&b, "    snippet: %s\n", oneLine(e.Snippet))
		fmt.Fprintf(&b, "    url: %s\n", oneLine(e.URL))
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
