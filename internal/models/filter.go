package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// QueryOp is a comparison allowed in a task query filter
type QueryOp string

const (
	OpEquals   QueryOp = "eq"
	OpContains QueryOp = "contains"
	OpBefore   QueryOp = "before"
	OpAfter    QueryOp = "after"
)

// MaxQueryValueLength caps the operand of a query filter
const MaxQueryValueLength = 256

// Missing slot names reported for an incomplete query filter
const (
	SlotField = "field"
	SlotQuery = "query"
)

// QueryFilterParams is the optional, untrusted query filter produced by extraction
type QueryFilterParams struct {
	Field *TaskField `json:"field"`
	Op    *QueryOp   `json:"op"`
	Value *string    `json:"value"`
}

// IsEmpty reports whether no part of the filter was supplied
func (q QueryFilterParams) IsEmpty() bool {
	return q.Field == nil && q.Op == nil && q.Value == nil
}

// String renders the filter as supplied
func (q QueryFilterParams) String() string {
	field, op, value := "?", "?", "?"
	if q.Field != nil {
		field = string(*q.Field)
	}
	if q.Op != nil {
		op = string(*q.Op)
	}
	if q.Value != nil {
		value = fmt.Sprintf("%q", *q.Value)
	}
	return fmt.Sprintf("{%s %s %s}", field, op, value)
}

// CheckedQuery is a query expression that passed CheckFilter. Its fields are
// unexported so the only way to build one is through validation.
type CheckedQuery struct {
	op   QueryOp
	text string
	at   time.Time
	id   uuid.UUID
}

// Op returns the comparison
func (c CheckedQuery) Op() QueryOp { return c.op }

// Text returns the operand for text fields
func (c CheckedQuery) Text() string { return c.text }

// Time returns the operand for date fields
func (c CheckedQuery) Time() time.Time { return c.at }

// ID returns the operand for the id field
func (c CheckedQuery) ID() uuid.UUID { return c.id }

// FieldFilter pairs a Task field with a validated query expression
type FieldFilter struct {
	Field TaskField
	Query CheckedQuery
}

// String renders the checked filter
func (f FieldFilter) String() string {
	switch {
	case f.Field == FieldID:
		return fmt.Sprintf("%s %s %s", f.Field, f.Query.op, f.Query.id)
	case f.Field.IsDate():
		return fmt.Sprintf("%s %s %s", f.Field, f.Query.op, f.Query.at.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s %s %q", f.Field, f.Query.op, f.Query.text)
	}
}

// Matches evaluates the filter against a task in memory
func (f FieldFilter) Matches(task Task) bool {
	switch f.Field {
	case FieldID:
		return task.ID == f.Query.id
	case FieldDescription:
		return matchText(task.Description, f.Query)
	case FieldAssignee:
		return matchText(task.Assignee, f.Query)
	case FieldCreateDate:
		return matchTime(task.CreateDate, f.Query)
	case FieldDueDate:
		return matchTime(task.DueDate, f.Query)
	}
	return false
}

func matchText(value string, q CheckedQuery) bool {
	switch q.op {
	case OpEquals:
		return strings.EqualFold(value, q.text)
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(q.text))
	}
	return false
}

func matchTime(value time.Time, q CheckedQuery) bool {
	switch q.op {
	case OpEquals:
		return value.Equal(q.at)
	case OpBefore:
		return value.Before(q.at)
	case OpAfter:
		return value.After(q.at)
	}
	return false
}

// allowedOps lists the comparisons permitted per field kind
func allowedOps(field TaskField) []QueryOp {
	switch {
	case field == FieldID:
		return []QueryOp{OpEquals}
	case field.IsDate():
		return []QueryOp{OpEquals, OpBefore, OpAfter}
	default:
		return []QueryOp{OpEquals, OpContains}
	}
}

// CheckFilter validates an untrusted filter. Slots that are absent or fail
// validation are returned in missing; reasons explains each failure.
func CheckFilter(q QueryFilterParams) (filter FieldFilter, missing []string, reasons []string) {
	if q.Field == nil {
		missing = append(missing, SlotField)
	} else if !q.Field.Valid() {
		missing = append(missing, SlotField)
		reasons = append(reasons, fmt.Sprintf("unknown field %q", *q.Field))
	}
	if q.Op == nil || q.Value == nil {
		missing = append(missing, SlotQuery)
	}
	if len(missing) > 0 {
		return FieldFilter{}, missing, reasons
	}

	field, op := *q.Field, *q.Op
	if !opAllowed(field, op) {
		return FieldFilter{}, []string{SlotQuery}, []string{fmt.Sprintf("operator %q is not allowed on %s", op, field)}
	}

	value := strings.TrimSpace(*q.Value)
	if problem := checkOperand(value); problem != "" {
		return FieldFilter{}, []string{SlotQuery}, []string{problem}
	}

	checked := CheckedQuery{op: op}
	switch {
	case field == FieldID:
		id, err := uuid.Parse(value)
		if err != nil {
			return FieldFilter{}, []string{SlotQuery}, []string{fmt.Sprintf("invalid task id %q", value)}
		}
		checked.id = id
	case field.IsDate():
		at, err := ParseTimestamp(value)
		if err != nil {
			return FieldFilter{}, []string{SlotQuery}, []string{err.Error()}
		}
		checked.at = at
	default:
		checked.text = value
	}
	return FieldFilter{Field: field, Query: checked}, nil, nil
}

func opAllowed(field TaskField, op QueryOp) bool {
	for _, allowed := range allowedOps(field) {
		if allowed == op {
			return true
		}
	}
	return false
}

func checkOperand(value string) string {
	if value == "" {
		return "empty query value"
	}
	if len(value) > MaxQueryValueLength {
		return fmt.Sprintf("query value longer than %d characters", MaxQueryValueLength)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return "query value contains control characters"
		}
	}
	return ""
}

// ParseTimestamp accepts RFC3339 timestamps or YYYY-MM-DD dates (midnight UTC)
func ParseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (expected RFC3339 like '2025-01-12T00:00:00Z' or date-only like '2025-01-12')", value)
	}
	return t.UTC(), nil
}
