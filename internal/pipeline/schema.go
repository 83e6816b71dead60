package pipeline

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"llm-task-manager/internal/models"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// canonicalExamples holds one example value per intent. The prompt schema is
// derived from the example's type, which is also the type the response is
// decoded into, so the two cannot drift apart.
var canonicalExamples = map[Intent]any{
	CreateNewTask:      envelope[CreateTaskFields]{Intent: CreateNewTask},
	ModifyExistingTask: envelope[models.PartialTask]{Intent: ModifyExistingTask},
	DeleteTask:         envelope[models.PartialTask]{Intent: DeleteTask},
	QueryTasks:         envelope[models.QueryFilterParams]{Intent: QueryTasks},
}

// typeSchemas overrides types whose Go shape differs from their JSON shape.
// A fresh map is built per call since the generated schema is edited in place.
func typeSchemas() map[reflect.Type]*jsonschema.Schema {
	return map[reflect.Type]*jsonschema.Schema{
		reflect.TypeFor[time.Time](): {
			Type:        "string",
			Format:      "date-time",
			Description: "RFC 3339 timestamp",
		},
		reflect.TypeFor[uuid.UUID](): {
			Type:        "string",
			Description: "task id (UUID, with or without hyphens)",
		},
	}
}

// fieldHints documents payload properties whose allowed values are not
// visible from the Go type alone
var fieldHints = map[Intent]map[string]string{
	QueryTasks: {
		"field": "one of: id, description, create_date, due_date, assignee",
		"op":    "one of: eq, contains (text fields), before, after (dates)",
		"value": "operand to compare against; dates as RFC 3339",
	},
	ModifyExistingTask: {
		"id":          "id of the task to change",
		"create_date": "never set; assigned by the system",
	},
	DeleteTask: {
		"id": "id of the task to delete",
	},
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[Intent][]byte{}
)

// SchemaFor generates the JSON schema describing an acceptable, possibly
// partial, answer for intent
func SchemaFor(intent Intent) (*jsonschema.Schema, error) {
	example, ok := canonicalExamples[intent]
	if !ok {
		return nil, fmt.Errorf("no canonical example for intent %q", intent)
	}

	schema, err := jsonschema.ForType(reflect.TypeOf(example), &jsonschema.ForOptions{TypeSchemas: typeSchemas()})
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema for %s: %w", intent, err)
	}

	if tag := schema.Properties["intent"]; tag != nil {
		tag.Description = fmt.Sprintf("always %q", intent)
		tag.Enum = make([]any, 0, len(Intents))
		for _, i := range Intents {
			tag.Enum = append(tag.Enum, string(i))
		}
	}
	schema.AdditionalProperties = nil
	if params := schema.Properties["params"]; params != nil {
		// every payload field may be absent or null
		params.Required = nil
		params.AdditionalProperties = nil
		for name, shared := range params.Properties {
			// override schemas may be shared between properties
			prop := new(jsonschema.Schema)
			*prop = *shared
			params.Properties[name] = prop
			allowNull(prop)
			if hint, ok := fieldHints[intent][name]; ok {
				prop.Description = hint
			}
		}
	}
	return schema, nil
}

// SchemaJSON returns the indented schema document for intent, cached per intent
func SchemaJSON(intent Intent) ([]byte, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if cached, ok := schemaCache[intent]; ok {
		return cached, nil
	}
	schema, err := SchemaFor(intent)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema for %s: %w", intent, err)
	}
	schemaCache[intent] = data
	return data, nil
}

func allowNull(s *jsonschema.Schema) {
	if s.Type != "" {
		s.Types = []string{"null", s.Type}
		s.Type = ""
		return
	}
	for _, t := range s.Types {
		if t == "null" {
			return
		}
	}
	if len(s.Types) > 0 {
		s.Types = append([]string{"null"}, s.Types...)
	}
}
