package pipeline

import (
	"errors"
	"testing"
	"time"

	"llm-task-manager/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func optional[T any](t *rapid.T, label string, gen *rapid.Generator[T]) *T {
	if !rapid.Bool().Draw(t, "has_"+label) {
		return nil
	}
	v := gen.Draw(t, label)
	return &v
}

var (
	textGen = rapid.StringMatching(`[a-zA-Z ]{1,20}`)
	timeGen = rapid.Custom(func(t *rapid.T) time.Time {
		return time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "unix"), 0).UTC()
	})
	idGen = rapid.Custom(func(t *rapid.T) uuid.UUID {
		var id uuid.UUID
		copy(id[:], rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "id_bytes"))
		return id
	})
	partialGen = rapid.Custom(func(t *rapid.T) models.PartialTask {
		return models.PartialTask{
			ID:          optional(t, "id", idGen),
			Description: optional(t, "description", textGen),
			CreateDate:  optional(t, "create_date", timeGen),
			DueDate:     optional(t, "due_date", timeGen),
			Assignee:    optional(t, "assignee", textGen),
		}
	})
	createGen = rapid.Custom(func(t *rapid.T) CreateTaskFields {
		return CreateTaskFields{
			Description: optional(t, "description", textGen),
			DueDate:     optional(t, "due_date", timeGen),
			Assignee:    optional(t, "assignee", textGen),
		}
	})
	filterGen = rapid.Custom(func(t *rapid.T) models.QueryFilterParams {
		return models.QueryFilterParams{
			Field: optional(t, "field", rapid.SampledFrom(models.TaskFields)),
			Op:    optional(t, "op", rapid.SampledFrom([]models.QueryOp{models.OpEquals, models.OpContains, models.OpBefore, models.OpAfter})),
			Value: optional(t, "value", textGen),
		}
	})
)

// extractionGen draws an extraction of intent
func extractionGen(intent Intent) *rapid.Generator[Extraction] {
	return rapid.Custom(func(t *rapid.T) Extraction {
		switch intent {
		case CreateNewTask:
			return CreateParams{Found: createGen.Draw(t, "create")}
		case ModifyExistingTask:
			return ModifyParams{Found: partialGen.Draw(t, "modify")}
		case DeleteTask:
			return DeleteParams{Found: partialGen.Draw(t, "delete")}
		default:
			return QueryParams{Found: filterGen.Draw(t, "query")}
		}
	})
}

// withoutFieldsOf clears every field of b that is present in a
func withoutFieldsOf(a, b models.PartialTask) models.PartialTask {
	if a.ID != nil {
		b.ID = nil
	}
	if a.Description != nil {
		b.Description = nil
	}
	if a.CreateDate != nil {
		b.CreateDate = nil
	}
	if a.DueDate != nil {
		b.DueDate = nil
	}
	if a.Assignee != nil {
		b.Assignee = nil
	}
	return b
}

func mustMerge(t *rapid.T, a, b Extraction, preferIncoming bool) Extraction {
	merged, err := Merge(a, b, preferIncoming)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return merged
}

func TestMergeDirectionIrrelevantForDisjointFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := partialGen.Draw(t, "a")
		b := withoutFieldsOf(a, partialGen.Draw(t, "b"))

		for _, wrap := range []func(models.PartialTask) Extraction{
			func(p models.PartialTask) Extraction { return ModifyParams{Found: p} },
			func(p models.PartialTask) Extraction { return DeleteParams{Found: p} },
			func(p models.PartialTask) Extraction {
				return CreateParams{Found: CreateTaskFields{Description: p.Description, DueDate: p.DueDate, Assignee: p.Assignee}}
			},
		} {
			forward := mustMerge(t, wrap(a), wrap(b), true)
			backward := mustMerge(t, wrap(a), wrap(b), false)
			if diff := cmp.Diff(forward, backward); diff != "" {
				t.Fatalf("direction changed the result (-true +false):\n%s", diff)
			}
		}
	})
}

func TestMergeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		intent := rapid.SampledFrom(Intents).Draw(t, "intent")
		a := extractionGen(intent).Draw(t, "a")
		if diff := cmp.Diff(a, mustMerge(t, a, a, true)); diff != "" {
			t.Fatalf("merge(a, a) != a:\n%s", diff)
		}
	})
}

func TestMergePreference(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := partialGen.Draw(t, "a")
		b := partialGen.Draw(t, "b")

		preferNew := mustMerge(t, ModifyParams{Found: a}, ModifyParams{Found: b}, true).(ModifyParams).Found
		preferOld := mustMerge(t, ModifyParams{Found: a}, ModifyParams{Found: b}, false).(ModifyParams).Found

		if b.Assignee != nil && *preferNew.Assignee != *b.Assignee {
			t.Fatalf("prefer incoming kept %q over %q", *preferNew.Assignee, *b.Assignee)
		}
		if a.Assignee != nil && *preferOld.Assignee != *a.Assignee {
			t.Fatalf("prefer existing kept %q over %q", *preferOld.Assignee, *a.Assignee)
		}
		if a.Assignee == nil && b.Assignee == nil && preferNew.Assignee != nil {
			t.Fatalf("assignee appeared from nowhere")
		}
	})
}

func TestMergeThenCompleteIffCovered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		intent := rapid.SampledFrom([]Intent{CreateNewTask, ModifyExistingTask, DeleteTask}).Draw(t, "intent")
		a := extractionGen(intent).Draw(t, "a")
		b := extractionGen(intent).Draw(t, "b")

		merged := mustMerge(t, a, b, true)
		record, missing, _, err := CheckComplete(merged)
		if err != nil {
			t.Fatalf("CheckComplete: %v", err)
		}

		covered := coverage(a).union(coverage(b))
		want := covered.covers(intent)
		if want != (record != nil) {
			t.Fatalf("covered=%v but record=%v missing=%v", want, record, missing)
		}
		if want && len(missing) != 0 {
			t.Fatalf("complete record reported missing %v", missing)
		}
		if !want && len(missing) == 0 {
			t.Fatalf("incomplete record reported no missing slots")
		}
	})
}

func TestMergeQueryKeepsNewestFilter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := filterGen.Draw(t, "a")
		b := filterGen.Draw(t, "b")
		prefer := rapid.Bool().Draw(t, "prefer")

		merged := mustMerge(t, QueryParams{Found: a}, QueryParams{Found: b}, prefer).(QueryParams)
		want := b
		if b.IsEmpty() {
			want = a
		}
		if diff := cmp.Diff(want, merged.Found); diff != "" {
			t.Fatalf("query merge blended filters:\n%s", diff)
		}
	})
}

func TestMergeAcrossIntentsIsDefect(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stored := rapid.SampledFrom(Intents).Draw(t, "stored")
		incoming := rapid.SampledFrom(Intents).Filter(func(i Intent) bool { return i != stored }).Draw(t, "incoming")

		_, err := Merge(extractionGen(stored).Draw(t, "a"), extractionGen(incoming).Draw(t, "b"), true)
		var defect *MergeDefectError
		if !errors.As(err, &defect) {
			t.Fatalf("expected MergeDefectError, got %v", err)
		}
		if defect.Stored != stored || defect.Incoming != incoming {
			t.Fatalf("defect reported %s/%s", defect.Stored, defect.Incoming)
		}
	})
}

func TestMergeNilSides(t *testing.T) {
	e := DeleteParams{Found: models.PartialTask{ID: &taskID}}

	merged, err := Merge(nil, e, true)
	require.NoError(t, err)
	assert.Equal(t, Extraction(e), merged)

	merged, err = Merge(e, nil, true)
	require.NoError(t, err)
	assert.Equal(t, Extraction(e), merged)
}

// fieldSet tracks which slots an extraction supplies
type fieldSet struct {
	id, description, dueDate, assignee bool
}

func coverage(e Extraction) fieldSet {
	switch v := e.(type) {
	case CreateParams:
		return fieldSet{description: v.Found.Description != nil, dueDate: v.Found.DueDate != nil, assignee: v.Found.Assignee != nil}
	case ModifyParams:
		return fieldSet{id: v.Found.ID != nil, description: v.Found.Description != nil, dueDate: v.Found.DueDate != nil, assignee: v.Found.Assignee != nil}
	case DeleteParams:
		return fieldSet{id: v.Found.ID != nil}
	}
	return fieldSet{}
}

func (f fieldSet) union(o fieldSet) fieldSet {
	return fieldSet{
		id:          f.id || o.id,
		description: f.description || o.description,
		dueDate:     f.dueDate || o.dueDate,
		assignee:    f.assignee || o.assignee,
	}
}

func (f fieldSet) covers(intent Intent) bool {
	switch intent {
	case CreateNewTask:
		return f.description && f.dueDate && f.assignee
	case ModifyExistingTask:
		return f.id && (f.description || f.dueDate || f.assignee)
	case DeleteTask:
		return f.id
	}
	return false
}
