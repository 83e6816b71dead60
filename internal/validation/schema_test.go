package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskSchema = `{
  "type": "object",
  "properties": {
    "intent": {"type": "string", "enum": ["DeleteTask", "QueryTasks"]},
    "params": {"type": "object", "properties": {"id": {"type": ["null", "string"]}}}
  },
  "required": ["intent", "params"]
}`

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name     string
		document string
		problem  string
	}{
		{name: "valid", document: `{"intent":"DeleteTask","params":{"id":null}}`},
		{name: "missing params", document: `{"intent":"DeleteTask"}`, problem: "params"},
		{name: "intent outside enum", document: `{"intent":"Archive","params":{}}`, problem: "intent"},
		{name: "wrong type", document: `{"intent":"DeleteTask","params":{"id":7}}`, problem: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.document, []byte(taskSchema))
			if tt.problem == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestValidateDocumentRejectsMalformedInput(t *testing.T) {
	assert.Error(t, ValidateDocument(`{"intent":`, []byte(taskSchema)))
	_, err := LoadSchema([]byte(`{"type": 12}`))
	assert.Error(t, err)
}
