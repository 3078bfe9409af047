// Package coltype implements the column type protocol: how each of
// the five column kinds validates and coerces an incoming cell value,
// and how a stored value is presented to a given viewer role.
package coltype

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"callgrid/internal/models"
)

// DateLayout is the canonical storage format for date cells.
const DateLayout = "2006-01-02"

// Accepted input layouts for date cells, tried in order.
var dateInputLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
}

// Validation failure reasons. The gateway maps them onto the external
// error taxonomy.
const (
	ReasonNotText       = "value is not text"
	ReasonNotNumber     = "value is not a finite number"
	ReasonNotDate       = "value is not a calendar date"
	ReasonInvalidOption = "value is not one of the column options"
	ReasonNotInPool     = "phone number is not in the column dial pool"
)

// ValidationError reports a cell value rejected by its column type.
type ValidationError struct {
	DataKey string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %q: %s", e.DataKey, e.Reason)
}

func fail(col *models.Column, reason string) (interface{}, error) {
	return nil, &ValidationError{DataKey: col.DataKey, Reason: reason}
}

// Validate coerces raw into the stored shape for the column's type, or
// returns a ValidationError. nil passes through untouched so partial
// patches can clear a cell.
func Validate(col *models.Column, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch col.Type {
	case models.ColumnText:
		s, ok := asString(raw)
		if !ok {
			return fail(col, ReasonNotText)
		}
		return strings.TrimSpace(s), nil

	case models.ColumnNumber:
		n, ok := asNumber(raw)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return fail(col, ReasonNotNumber)
		}
		return n, nil

	case models.ColumnDate:
		s, ok := asString(raw)
		if !ok {
			return fail(col, ReasonNotDate)
		}
		s = strings.TrimSpace(s)
		for _, layout := range dateInputLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(DateLayout), nil
			}
		}
		return fail(col, ReasonNotDate)

	case models.ColumnSelect:
		s, ok := asString(raw)
		if !ok {
			return fail(col, ReasonInvalidOption)
		}
		if _, found := col.Options.ByValue(s); !found {
			return fail(col, ReasonInvalidOption)
		}
		return s, nil

	case models.ColumnPhone:
		s, ok := asString(raw)
		if !ok {
			return fail(col, ReasonNotInPool)
		}
		s = strings.TrimSpace(s)
		// Writes only accept numbers from the dial pool. Values already
		// committed on rows are always readable, even after the pool
		// changed.
		if !col.PhoneNumbers.Contains(s) {
			return fail(col, ReasonNotInPool)
		}
		return s, nil
	}

	return fail(col, fmt.Sprintf("unknown column type %q", col.Type))
}

// Present formats a stored cell value for a viewer. Select values
// resolve to their option; phone values are masked for agents and
// partners, full for supervisors and admins.
func Present(col *models.Column, value interface{}, viewer models.UserRole) interface{} {
	if value == nil {
		return nil
	}

	switch col.Type {
	case models.ColumnSelect:
		s, ok := asString(value)
		if !ok {
			return value
		}
		if opt, found := col.Options.ByValue(s); found {
			out := map[string]interface{}{"value": opt.Value, "label": opt.Label}
			if opt.Color != "" {
				out["color"] = opt.Color
			}
			return out
		}
		// Option was removed after the value was committed; show raw.
		return s

	case models.ColumnPhone:
		s, ok := asString(value)
		if !ok {
			return value
		}
		if viewer == models.RoleAdmin || viewer == models.RoleSupervisor {
			return s
		}
		return MaskPhone(s)
	}

	return value
}

// MaskPhone hides the middle of a phone number, leaving at most the
// first five and the last digit visible: 994501234563 -> 99450******3.
func MaskPhone(number string) string {
	r := []rune(number)
	n := len(r)
	if n <= 2 {
		return strings.Repeat("*", n)
	}

	head := 5
	tail := 1
	if n <= head+tail {
		head = n - tail - 1
	}

	return string(r[:head]) + strings.Repeat("*", n-head-tail) + string(r[n-tail:])
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	}
	return "", false
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
