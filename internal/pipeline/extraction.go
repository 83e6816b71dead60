package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"llm-task-manager/internal/models"
)

// Extraction is the tagged union of per-intent parameter payloads. The
// variants are CreateParams, ModifyParams, DeleteParams and QueryParams.
type Extraction interface {
	Intent() Intent
	String() string
	isExtraction()
}

// CreateTaskFields is the optional user-supplied part of a new task
type CreateTaskFields struct {
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Assignee    *string    `json:"assignee"`
}

// Merge combines two partial creation payloads field by field
func (c CreateTaskFields) Merge(incoming CreateTaskFields, preferIncoming bool) CreateTaskFields {
	merged := c.partial().Merge(incoming.partial(), preferIncoming)
	return CreateTaskFields{
		Description: merged.Description,
		DueDate:     merged.DueDate,
		Assignee:    merged.Assignee,
	}
}

func (c CreateTaskFields) partial() models.PartialTask {
	return models.PartialTask{Description: c.Description, DueDate: c.DueDate, Assignee: c.Assignee}
}

// CreateParams carries the CreateNewTask payload
type CreateParams struct {
	Found CreateTaskFields
}

// ModifyParams carries the ModifyExistingTask payload
type ModifyParams struct {
	Found models.PartialTask
}

// DeleteParams carries the DeleteTask payload
type DeleteParams struct {
	Found models.PartialTask
}

// QueryParams carries the QueryTasks payload
type QueryParams struct {
	Found models.QueryFilterParams
}

func (CreateParams) Intent() Intent { return CreateNewTask }
func (ModifyParams) Intent() Intent { return ModifyExistingTask }
func (DeleteParams) Intent() Intent { return DeleteTask }
func (QueryParams) Intent() Intent  { return QueryTasks }

func (CreateParams) isExtraction() {}
func (ModifyParams) isExtraction() {}
func (DeleteParams) isExtraction() {}
func (QueryParams) isExtraction()  {}

func (p CreateParams) String() string { return "CreateNewTask" + p.Found.partial().String() }
func (p ModifyParams) String() string { return "ModifyExistingTask" + p.Found.String() }
func (p DeleteParams) String() string { return "DeleteTask" + p.Found.String() }
func (p QueryParams) String() string  { return "QueryTasks" + p.Found.String() }

// Empty returns the variant of intent with no fields present
func Empty(intent Intent) (Extraction, error) {
	switch intent {
	case CreateNewTask:
		return CreateParams{}, nil
	case ModifyExistingTask:
		return ModifyParams{}, nil
	case DeleteTask:
		return DeleteParams{}, nil
	case QueryTasks:
		return QueryParams{}, nil
	}
	return nil, fmt.Errorf("unknown intent %q", intent)
}

// envelope is the wire shape of an extraction: the intent tag plus its payload
type envelope[T any] struct {
	Intent Intent `json:"intent"`
	Params T      `json:"params"`
}

type rawEnvelope struct {
	Intent Intent          `json:"intent"`
	Params json.RawMessage `json:"params"`
}

// EncodeExtraction serialises an extraction into its tagged wire form
func EncodeExtraction(e Extraction) ([]byte, error) {
	switch v := e.(type) {
	case CreateParams:
		return json.Marshal(envelope[CreateTaskFields]{Intent: CreateNewTask, Params: v.Found})
	case ModifyParams:
		return json.Marshal(envelope[models.PartialTask]{Intent: ModifyExistingTask, Params: v.Found})
	case DeleteParams:
		return json.Marshal(envelope[models.PartialTask]{Intent: DeleteTask, Params: v.Found})
	case QueryParams:
		return json.Marshal(envelope[models.QueryFilterParams]{Intent: QueryTasks, Params: v.Found})
	}
	return nil, fmt.Errorf("cannot encode extraction of type %T", e)
}

// DecodeExtraction parses the tagged wire form. The variant follows the tag
// in the data, not any intent the caller expected.
func DecodeExtraction(data []byte) (Extraction, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	params := raw.Params
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}

	switch raw.Intent {
	case CreateNewTask:
		var found CreateTaskFields
		if err := json.Unmarshal(params, &found); err != nil {
			return nil, err
		}
		return CreateParams{Found: found}, nil
	case ModifyExistingTask:
		var found models.PartialTask
		if err := json.Unmarshal(params, &found); err != nil {
			return nil, err
		}
		return ModifyParams{Found: found}, nil
	case DeleteTask:
		var found models.PartialTask
		if err := json.Unmarshal(params, &found); err != nil {
			return nil, err
		}
		return DeleteParams{Found: found}, nil
	case QueryTasks:
		var found models.QueryFilterParams
		if err := json.Unmarshal(params, &found); err != nil {
			return nil, err
		}
		return QueryParams{Found: found}, nil
	}
	return nil, fmt.Errorf("unknown intent tag %q", raw.Intent)
}
