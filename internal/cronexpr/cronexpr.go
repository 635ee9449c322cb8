// Package cronexpr matches a restricted five-field cron expression against a
// wall-clock instant. Only the minute and hour fields are evaluated; the
// day-of-month, month and day-of-week fields are checked for shape and
// otherwise ignored.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind int

const (
	Invalid Kind = iota
	Wildcard
	Literal
	Stepped     // */N
	SteppedFrom // S/N
)

var kindNames = map[Kind]string{
	Invalid:     "invalid",
	Wildcard:    "wildcard",
	Literal:     "literal",
	Stepped:     "stepped",
	SteppedFrom: "stepped_from",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field is one parsed cron field.
type Field struct {
	Kind  Kind
	Value int // Literal
	Start int // SteppedFrom
	Step  int // Stepped, SteppedFrom
}

// Match reports whether v satisfies the field.
func (f Field) Match(v int) bool {
	switch f.Kind {
	case Wildcard:
		return true
	case Literal:
		return v == f.Value
	case Stepped:
		return v%f.Step == 0
	case SteppedFrom:
		return v >= f.Start && (v-f.Start)%f.Step == 0
	default:
		return false
	}
}

// Expression is a parsed five-field expression.
type Expression struct {
	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field
}

// Match reports whether t's minute and hour satisfy the expression.
// t is used as-is; no timezone conversion happens here.
func (e Expression) Match(t time.Time) bool {
	return e.Minute.Match(t.Minute()) && e.Hour.Match(t.Hour())
}

// ParseField parses a single field. Unknown shapes yield an Invalid field.
func ParseField(s string) Field {
	if s == "*" {
		return Field{Kind: Wildcard}
	}

	if before, after, ok := strings.Cut(s, "/"); ok {
		step, ok := parseNonNegative(after)
		if !ok || step == 0 {
			return Field{Kind: Invalid}
		}
		if before == "*" {
			return Field{Kind: Stepped, Step: step}
		}
		start, ok := parseNonNegative(before)
		if !ok {
			return Field{Kind: Invalid}
		}
		return Field{Kind: SteppedFrom, Start: start, Step: step}
	}

	n, ok := parseNonNegative(s)
	if !ok {
		return Field{Kind: Invalid}
	}
	return Field{Kind: Literal, Value: n}
}

// Parse parses an expression like "*/15 8/3 * * *".
func Parse(expr string) (Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Expression{}, fmt.Errorf("expected 5 fields, got %d", len(parts))
	}

	var fields [5]Field
	for i, p := range parts {
		f := ParseField(p)
		if f.Kind == Invalid {
			return Expression{}, fmt.Errorf("invalid field %d: %q", i+1, p)
		}
		fields[i] = f
	}

	return Expression{
		Minute:     fields[0],
		Hour:       fields[1],
		DayOfMonth: fields[2],
		Month:      fields[3],
		DayOfWeek:  fields[4],
	}, nil
}

// Matches reports whether expr fires at t. A malformed expression never
// matches.
func Matches(expr string, t time.Time) bool {
	e, err := Parse(expr)
	if err != nil {
		return false
	}
	return e.Match(t)
}

func parseNonNegative(s string) (int, bool) {
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
