package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskField names a single field of a Task
type TaskField string

const (
	FieldID          TaskField = "id"
	FieldDescription TaskField = "description"
	FieldCreateDate  TaskField = "create_date"
	FieldDueDate     TaskField = "due_date"
	FieldAssignee    TaskField = "assignee"
)

// TaskFields lists every Task field in declaration order
var TaskFields = []TaskField{FieldID, FieldDescription, FieldCreateDate, FieldDueDate, FieldAssignee}

// Valid reports whether f names a Task field
func (f TaskField) Valid() bool {
	for _, known := range TaskFields {
		if f == known {
			return true
		}
	}
	return false
}

// IsDate reports whether the field holds a timestamp
func (f TaskField) IsDate() bool {
	return f == FieldCreateDate || f == FieldDueDate
}

// Task is a stored task. ID is assigned once at creation and never changes.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	CreateDate  time.Time `json:"create_date"`
	DueDate     time.Time `json:"due_date"`
	Assignee    string    `json:"assignee"`
}

// String renders the task for chat replies
func (t Task) String() string {
	return fmt.Sprintf("[%s] %q for %s, due %s", t.ID, t.Description, t.Assignee, t.DueDate.Format(time.RFC3339))
}

// PartialTask wraps every Task field as optional
type PartialTask struct {
	ID          *uuid.UUID `json:"id"`
	Description *string    `json:"description"`
	CreateDate  *time.Time `json:"create_date"`
	DueDate     *time.Time `json:"due_date"`
	Assignee    *string    `json:"assignee"`
}

// Merge combines two partials field by field. When preferIncoming is true a
// present field in incoming overwrites the one in p; otherwise p wins when
// both are present. Absent fields are carried from whichever side has them.
func (p PartialTask) Merge(incoming PartialTask, preferIncoming bool) PartialTask {
	return PartialTask{
		ID:          pick(p.ID, incoming.ID, preferIncoming),
		Description: pick(p.Description, incoming.Description, preferIncoming),
		CreateDate:  pick(p.CreateDate, incoming.CreateDate, preferIncoming),
		DueDate:     pick(p.DueDate, incoming.DueDate, preferIncoming),
		Assignee:    pick(p.Assignee, incoming.Assignee, preferIncoming),
	}
}

// Present returns the names of fields that are set
func (p PartialTask) Present() []TaskField {
	var fields []TaskField
	if p.ID != nil {
		fields = append(fields, FieldID)
	}
	if p.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if p.CreateDate != nil {
		fields = append(fields, FieldCreateDate)
	}
	if p.DueDate != nil {
		fields = append(fields, FieldDueDate)
	}
	if p.Assignee != nil {
		fields = append(fields, FieldAssignee)
	}
	return fields
}

// HasChanges reports whether any user-editable field besides the id is set
func (p PartialTask) HasChanges() bool {
	return p.Description != nil || p.DueDate != nil || p.Assignee != nil
}

// ApplyTo overlays the present editable fields onto an existing task.
// ID and CreateDate are never overwritten.
func (p PartialTask) ApplyTo(task Task) Task {
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.DueDate != nil {
		task.DueDate = p.DueDate.UTC()
	}
	if p.Assignee != nil {
		task.Assignee = *p.Assignee
	}
	return task
}

// String renders only the present fields
func (p PartialTask) String() string {
	present := p.Present()
	parts := make([]string, 0, len(present))
	for _, field := range present {
		var value string
		switch field {
		case FieldID:
			value = p.ID.String()
		case FieldDescription:
			value = fmt.Sprintf("%q", *p.Description)
		case FieldCreateDate:
			value = p.CreateDate.Format(time.RFC3339)
		case FieldDueDate:
			value = p.DueDate.Format(time.RFC3339)
		case FieldAssignee:
			value = *p.Assignee
		}
		parts = append(parts, string(field)+"="+value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// NewTaskFields is the user-supplied part of a new task, fully populated
type NewTaskFields struct {
	Description string
	DueDate     time.Time
	Assignee    string
}

// pick chooses between two optional values
func pick[T any](existing, incoming *T, preferIncoming bool) *T {
	switch {
	case existing == nil:
		return incoming
	case incoming == nil:
		return existing
	case preferIncoming:
		return incoming
	default:
		return existing
	}
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
