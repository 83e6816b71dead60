package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"llm-task-manager/internal/models"

	"github.com/google/uuid"
)

// SlotFieldsToModify is reported when a modification names no field to change
const SlotFieldsToModify = "fields_to_modify"

// Missing is the set of required slots not yet supplied
type Missing []string

// String renders the slots as a comma separated list
func (m Missing) String() string {
	return strings.Join(m, ", ")
}

// Record is a fully populated parameter set. Its variants carry no optional
// fields: CompleteCreate, CompleteModify, CompleteDelete and CompleteQuery.
type Record interface {
	Intent() Intent
	isRecord()
}

// CompleteCreate holds everything needed to create a task
type CompleteCreate struct {
	Fields models.NewTaskFields
}

// CompleteModify identifies a task and the changes to apply
type CompleteModify struct {
	ID      uuid.UUID
	Changes models.PartialTask
}

// CompleteDelete identifies the task to delete
type CompleteDelete struct {
	ID uuid.UUID
}

// CompleteQuery holds a validated filter
type CompleteQuery struct {
	Filter models.FieldFilter
}

func (CompleteCreate) Intent() Intent { return CreateNewTask }
func (CompleteModify) Intent() Intent { return ModifyExistingTask }
func (CompleteDelete) Intent() Intent { return DeleteTask }
func (CompleteQuery) Intent() Intent  { return QueryTasks }

func (CompleteCreate) isRecord() {}
func (CompleteModify) isRecord() {}
func (CompleteDelete) isRecord() {}
func (CompleteQuery) isRecord()  {}

// CheckComplete converts e into a Record when every required slot is present.
// Otherwise it returns the exact set of missing slots; for query filters the
// validation reasons are returned as well.
func CheckComplete(e Extraction) (Record, Missing, []string, error) {
	switch v := e.(type) {
	case CreateParams:
		var missing Missing
		if v.Found.Description == nil {
			missing = append(missing, string(models.FieldDescription))
		}
		if v.Found.DueDate == nil {
			missing = append(missing, string(models.FieldDueDate))
		}
		if v.Found.Assignee == nil {
			missing = append(missing, string(models.FieldAssignee))
		}
		if len(missing) > 0 {
			return nil, missing, nil, nil
		}
		return CompleteCreate{Fields: models.NewTaskFields{
			Description: *v.Found.Description,
			DueDate:     v.Found.DueDate.UTC(),
			Assignee:    *v.Found.Assignee,
		}}, nil, nil, nil

	case ModifyParams:
		var missing Missing
		if v.Found.ID == nil {
			missing = append(missing, string(models.FieldID))
		}
		if !v.Found.HasChanges() {
			missing = append(missing, SlotFieldsToModify)
		}
		if len(missing) > 0 {
			return nil, missing, nil, nil
		}
		return CompleteModify{ID: *v.Found.ID, Changes: v.Found}, nil, nil, nil

	case DeleteParams:
		if v.Found.ID == nil {
			return nil, Missing{string(models.FieldID)}, nil, nil
		}
		return CompleteDelete{ID: *v.Found.ID}, nil, nil, nil

	case QueryParams:
		filter, missing, reasons := models.CheckFilter(v.Found)
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, missing, reasons, nil
		}
		return CompleteQuery{Filter: filter}, nil, nil, nil
	}
	return nil, nil, nil, fmt.Errorf("completeness: unhandled extraction type %T", e)
}
