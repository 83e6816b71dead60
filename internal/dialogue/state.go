// Package dialogue drives per-conversation slot-filling: classify a turn,
// extract its parameters, accumulate partial answers across turns and hand
// complete parameter sets to the execution router.
package dialogue

import (
	"encoding/json"
	"fmt"

	"llm-task-manager/internal/pipeline"
)

// Stage is the position of a conversation in the state machine
type Stage string

const (
	// ReceiveInput is the idle stage; the next turn is classified afresh
	ReceiveInput Stage = "ReceiveInput"
	// ValidateParams collects missing parameters for an already known intent
	ValidateParams Stage = "ValidateParams"
)

// State is the stored state of one conversation. Intent, Params and TurnLog
// are only meaningful in ValidateParams.
type State struct {
	Stage   Stage
	TurnLog []string
	Intent  pipeline.Intent
	Params  pipeline.Extraction
}

// Idle returns the initial state
func Idle() State {
	return State{Stage: ReceiveInput}
}

// Missing reports the slots the accumulated parameters still lack
func (s State) Missing() pipeline.Missing {
	if s.Stage != ValidateParams || s.Params == nil {
		return nil
	}
	_, missing, _, err := pipeline.CheckComplete(s.Params)
	if err != nil {
		return nil
	}
	return missing
}

type stateJSON struct {
	Stage   Stage           `json:"stage"`
	TurnLog []string        `json:"turnLog,omitempty"`
	Intent  pipeline.Intent `json:"intent,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON encodes the parameters in their tagged wire form
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Stage: s.Stage, TurnLog: s.TurnLog, Intent: s.Intent}
	if s.Params != nil {
		params, err := pipeline.EncodeExtraction(s.Params)
		if err != nil {
			return nil, err
		}
		out.Params = params
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes what MarshalJSON produced
func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Stage {
	case ReceiveInput, ValidateParams:
	default:
		return fmt.Errorf("unknown dialogue stage %q", in.Stage)
	}

	decoded := State{Stage: in.Stage, TurnLog: in.TurnLog, Intent: in.Intent}
	if len(in.Params) > 0 && string(in.Params) != "null" {
		params, err := pipeline.DecodeExtraction(in.Params)
		if err != nil {
			return fmt.Errorf("failed to decode stored parameters: %w", err)
		}
		decoded.Params = params
	}
	*s = decoded
	return nil
}
