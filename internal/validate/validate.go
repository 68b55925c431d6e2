// Package validate extracts the enrichment fields from an interpreted
// document and enforces the minimum content thresholds.
package validate

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sells-group/topper-enrich/internal/interpret"
	"github.com/sells-group/topper-enrich/internal/model"
)

// Error is a validation failure. Code is persisted on the record.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var (
	errBioTooShort = validation.NewError(model.ErrCodeBioTooShort,
		"bio must be at least "+strconv.Itoa(model.MinBioLength)+" characters")
	errStrategyTooShort = validation.NewError(model.ErrCodeStrategyTooShort,
		"strategy must be at least "+strconv.Itoa(model.MinStrategyLength)+" characters")
	errInsufficientInsights = validation.NewError(model.ErrCodeInsufficientInsights,
		"at least "+strconv.Itoa(model.MinInsights)+" insights are required")
)

// rule pairs a value with its rules. Checks run in declaration order and the
// first failure wins.
type rule struct {
	value any
	rules []validation.Rule
}

// Validate extracts bio, strategy, and insights from doc and checks them in
// that order.
func Validate(doc interpret.Doc) (model.Enrichment, error) {
	e := model.Enrichment{
		Bio:      stringField(doc, "bio"),
		Strategy: stringField(doc, "strategy"),
		Insights: insightsField(doc),
	}

	checks := []rule{
		{e.Bio, []validation.Rule{
			validation.Required.ErrorObject(errBioTooShort),
			validation.RuneLength(model.MinBioLength, 0).ErrorObject(errBioTooShort),
		}},
		{e.Strategy, []validation.Rule{
			validation.Required.ErrorObject(errStrategyTooShort),
			validation.RuneLength(model.MinStrategyLength, 0).ErrorObject(errStrategyTooShort),
		}},
		{e.Insights, []validation.Rule{
			validation.Required.ErrorObject(errInsufficientInsights),
			validation.Length(model.MinInsights, 0).ErrorObject(errInsufficientInsights),
		}},
	}
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			return e, toError(err)
		}
	}
	return e, nil
}

func toError(err error) *Error {
	var verr validation.Error
	if errors.As(err, &verr) {
		return &Error{Code: verr.Code(), Message: verr.Message()}
	}
	return &Error{Code: "invalid", Message: err.Error()}
}

// stringField returns the trimmed string under name, or "" when absent or
// not a string.
func stringField(doc interpret.Doc, name string) string {
	v, ok := doc.Field(name)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// insightsField returns up to model.MaxInsights trimmed, non-empty items.
// Scalars are stringified; nested values are skipped.
func insightsField(doc interpret.Doc) []string {
	v, ok := doc.Field("insights")
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, min(len(items), model.MaxInsights))
	for _, it := range items {
		if len(out) == model.MaxInsights {
			break
		}
		var s string
		switch x := it.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case json.Number:
			s = x.String()
		case bool:
			s = strconv.FormatBool(x)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
