package dialogue

import (
	"errors"
	"fmt"
	"strings"

	"llm-task-manager/internal/database"
	"llm-task-manager/internal/execution"
	"llm-task-manager/internal/models"
	"llm-task-manager/internal/pipeline"
)

var slotNames = map[string]string{
	string(models.FieldID):          "the task id",
	string(models.FieldDescription): "a description",
	string(models.FieldDueDate):     "a due date",
	string(models.FieldAssignee):    "an assignee",
	pipeline.SlotFieldsToModify:     "what to change (description, due date or assignee)",
	models.SlotField:                "which field to search (id, description, create_date, due_date or assignee)",
	models.SlotQuery:                "what to look for, e.g. \"contains report\" or \"before 2025-06-01\"",
}

func describeIntent(intent pipeline.Intent) string {
	switch intent {
	case pipeline.CreateNewTask:
		return "create a task"
	case pipeline.ModifyExistingTask:
		return "modify a task"
	case pipeline.DeleteTask:
		return "delete a task"
	case pipeline.QueryTasks:
		return "look up tasks"
	}
	return "handle that request"
}

func describeSlots(missing pipeline.Missing) string {
	names := make([]string, 0, len(missing))
	for _, slot := range missing {
		if name, ok := slotNames[slot]; ok {
			names = append(names, name)
		} else {
			names = append(names, slot)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

// followUp asks for exactly the missing slots
func followUp(intent pipeline.Intent, missing pipeline.Missing, reasons []string) string {
	text := fmt.Sprintf("To %s I still need %s.", describeIntent(intent), describeSlots(missing))
	if len(reasons) > 0 {
		text += " (" + strings.Join(reasons, "; ") + ")"
	}
	return text + " Send /cancel to start over."
}

func extractionFailedReply(intent pipeline.Intent, err error, missing pipeline.Missing) Reply {
	detail := "the answer could not be read"
	var deserErr *pipeline.DeserializationError
	switch {
	case errors.As(err, &deserErr):
		detail = deserErr.Err.Error()
	case errors.Is(err, pipeline.ErrExtractionFailed):
		detail = "the language model did not answer"
	}
	text := fmt.Sprintf("I understood you want to %s, but couldn't read the details (%s).", describeIntent(intent), detail)
	if len(missing) > 0 {
		text += fmt.Sprintf(" Please tell me %s.", describeSlots(missing))
	}
	return Reply{Text: text, Intent: intent, Missing: missing, outcome: OutcomeExtractionFailed}
}

func defectReply(intent pipeline.Intent) Reply {
	return Reply{
		Text:    "Something went wrong on my side while handling that request. It has been flagged for an operator.",
		Intent:  intent,
		Defect:  true,
		outcome: OutcomeDefect,
	}
}

// operationFailed explains a failed task operation without exposing store internals
func operationFailed(intent pipeline.Intent, err error) string {
	prefix := fmt.Sprintf("I couldn't %s", describeIntent(intent))
	if kind, ok := execution.KindOf(err); ok {
		switch kind {
		case execution.TaskCreationError:
			prefix = "I couldn't create the task"
		case execution.TaskModificationError:
			prefix = "I couldn't modify the task"
		case execution.TaskDeletionError:
			prefix = "I couldn't delete the task"
		case execution.TaskRetrievalError:
			prefix = "I couldn't look up tasks"
		}
	}

	switch {
	case errors.Is(err, database.ErrTaskNotFound):
		return prefix + ": no task has that id."
	case errors.Is(err, execution.ErrMissingTaskID):
		return prefix + ": I need the task id."
	case errors.Is(err, execution.ErrIncompleteParams):
		return prefix + ": some details are missing."
	}
	return prefix + " right now. Please try again later."
}

// withStoredFilter appends a partially supplied search to the text extracted
// for a follow-up turn. A newer filter replaces the stored one, so the model
// has to answer with the whole filter.
func withStoredFilter(params pipeline.Extraction, text string) string {
	query, ok := params.(pipeline.QueryParams)
	if !ok || query.Found.IsEmpty() {
		return text
	}
	return fmt.Sprintf("%s\n\nSearch so far (field, operator, value; ? is unknown): %s. Answer with the complete search, keeping these parts unless the message above changes them.",
		text, query.Found)
}
