package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"llm-task-manager/internal/execution"
	"llm-task-manager/internal/logging"
	"llm-task-manager/internal/pipeline"
	"llm-task-manager/internal/services"
	"llm-task-manager/internal/transcription"
	"llm-task-manager/internal/utils"

	"go.uber.org/zap"
)

// IntentClassifier identifies the intent of a turn
type IntentClassifier interface {
	Identify(ctx context.Context, text string) (pipeline.Intent, error)
}

// ParamExtractor extracts a possibly partial parameter set for a known intent
type ParamExtractor interface {
	Extract(ctx context.Context, intent pipeline.Intent, text string) (pipeline.Extraction, error)
}

// Resolver executes a complete parameter set
type Resolver interface {
	Resolve(ctx context.Context, intent pipeline.Intent, params pipeline.Extraction) (*execution.SuccessReport, error)
}

// TurnRecorder receives one event per processed turn
type TurnRecorder interface {
	RecordTurn(ctx context.Context, event services.TurnEvent)
}

// VoiceArchiver keeps a copy of inbound voice notes and returns where it went
type VoiceArchiver interface {
	Store(ctx context.Context, conversation, filename string, audio []byte, contentType string) (string, error)
}

// Turn outcomes reported to metrics
const (
	OutcomeExecuted             = "executed"
	OutcomeMissing              = "missing"
	OutcomeNoIntent             = "no_intent"
	OutcomeClassificationFailed = "classification_failed"
	OutcomeExtractionFailed     = "extraction_failed"
	OutcomeTranscriptionFailed  = "transcription_failed"
	OutcomeOperationFailed      = "operation_failed"
	OutcomeDefect               = "defect"
	OutcomeCancelled            = "cancelled"
	OutcomeIgnored              = "ignored"
)

// ErrStateNotSaved is returned with an executed Reply whose conversation
// reset could not be stored
var ErrStateNotSaved = errors.New("conversation state not saved")

// Reply is the result of one turn
type Reply struct {
	Text    string
	Stage   Stage
	Intent  pipeline.Intent
	Missing pipeline.Missing
	Report  *execution.SuccessReport
	Defect  bool

	outcome string
}

// Executed reports whether the turn carried out a task operation. An executed
// Reply is meaningful even when it comes with an error.
func (r Reply) Executed() bool {
	return r.Report != nil
}

// Machine is the dialogue state machine. Turns for the same conversation key
// are serialised; different keys proceed concurrently.
type Machine struct {
	classifier  IntentClassifier
	extractor   ParamExtractor
	router      Resolver
	store       ConversationStore
	transcriber transcription.Transcriber
	archive     VoiceArchiver
	recorder    TurnRecorder
	logger      *zap.Logger
	now         func() time.Time

	locks utils.KeyedMutex[string]

	// keys whose reset to ReceiveInput is executed but not yet stored
	resetMu sync.Mutex
	resets  map[string]struct{}
}

// Option configures optional collaborators of a Machine
type Option func(*Machine)

// WithTranscriber enables voice turns
func WithTranscriber(t transcription.Transcriber) Option {
	return func(m *Machine) { m.transcriber = t }
}

// WithVoiceArchive stores every voice note before it is transcribed
func WithVoiceArchive(a VoiceArchiver) Option {
	return func(m *Machine) { m.archive = a }
}

// WithTurnRecorder reports every turn, e.g. to services.TurnMetrics
func WithTurnRecorder(r TurnRecorder) Option {
	return func(m *Machine) { m.recorder = r }
}

// NewMachine creates a state machine over store
func NewMachine(classifier IntentClassifier, extractor ParamExtractor, router Resolver, store ConversationStore, logger *zap.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		classifier: classifier,
		extractor:  extractor,
		router:     router,
		store:      store,
		logger:     logger.Named("dialogue"),
		now:        time.Now,
		resets:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleText processes one text turn for conversation key. The returned error
// is reserved for conversation store failures; every other outcome is a Reply.
// When the operation ran but the new state could not be stored, the executed
// Reply is returned together with an error wrapping ErrStateNotSaved.
func (m *Machine) HandleText(ctx context.Context, key, text string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	return m.turn(ctx, key, text)
}

// HandleVoice transcribes audio and processes the transcript as a turn.
// A failed transcription leaves the conversation unchanged.
func (m *Machine) HandleVoice(ctx context.Context, key string, audio []byte, filename, contentType string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	if m.transcriber == nil {
		return m.unchanged(ctx, key, "Voice messages are not supported here, please send text.", OutcomeIgnored)
	}

	if m.archive != nil {
		if location, err := m.archive.Store(ctx, key, filename, audio, contentType); err != nil {
			m.logger.Warn("failed to archive voice note", zap.String("conversation", key), zap.Error(err))
		} else {
			m.logger.Debug("voice note archived", zap.String("conversation", key), zap.String("url", location))
		}
	}

	transcript, err := m.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		m.logger.Warn("transcription failed", zap.String("conversation", key), zap.Error(err))
		return m.unchanged(ctx, key, "I couldn't transcribe that voice message. Please try again or send text.", OutcomeTranscriptionFailed)
	}
	m.logger.Debug("voice transcribed", zap.String("conversation", key), zap.Int("chars", len(transcript)))
	return m.turn(ctx, key, transcript)
}

// Abandon drops any slot-filling in progress for key
func (m *Machine) Abandon(ctx context.Context, key string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	state, err := m.load(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	return m.abandon(ctx, key, state)
}

// State returns the stored state of key
func (m *Machine) State(ctx context.Context, key string) (State, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	return m.load(ctx, key)
}

// load returns the stored state of key, or Idle when an executed turn's reset
// is still waiting to be stored
func (m *Machine) load(ctx context.Context, key string) (State, error) {
	if m.resetPending(key) {
		return Idle(), nil
	}
	state, err := m.store.Load(ctx, key)
	if err != nil {
		return State{}, fmt.Errorf("failed to load conversation %s: %w", key, err)
	}
	return state, nil
}

func (m *Machine) turn(ctx context.Context, key, text string) (Reply, error) {
	started := m.now()
	state, err := m.load(ctx, key)
	if err != nil {
		return Reply{}, err
	}

	text = strings.TrimSpace(text)
	var (
		next  State
		reply Reply
	)
	switch {
	case text == "":
		return m.unchanged(ctx, key, "Please tell me what to do with your tasks.", OutcomeIgnored)
	case isCancel(text):
		return m.abandon(ctx, key, state)
	case state.Stage == ValidateParams:
		next, reply = m.validateParams(ctx, key, state, text)
	default:
		next, reply = m.receiveInput(ctx, key, text)
	}

	if err := m.persist(ctx, key, next); err != nil {
		if !reply.Executed() {
			return Reply{}, err
		}
		// the operation already ran: never replay the request from the stale state
		m.markReset(key)
		m.logger.Error("executed request but could not reset conversation",
			zap.String("conversation", key), zap.String("intent", string(reply.Intent)),
			zap.Strings("turn_log", append(append([]string(nil), state.TurnLog...), text)),
			zap.String("report", reply.Report.Describe()), zap.Error(err))
		reply.Stage = next.Stage
		m.record(ctx, key, reply, started)
		return reply, fmt.Errorf("%w: %w", ErrStateNotSaved, err)
	}
	reply.Stage = next.Stage
	m.record(ctx, key, reply, started)
	return reply, nil
}

// receiveInput classifies and extracts a fresh request
func (m *Machine) receiveInput(ctx context.Context, key, text string) (State, Reply) {
	logger := m.logger.With(zap.String("conversation", key))

	intent, err := m.classifier.Identify(ctx, text)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoApparentIntent) {
			return Idle(), Reply{
				Text:    "I couldn't find a task request in that. Please rephrase, for example \"create a task for Alice to write the report, due Friday\".",
				outcome: OutcomeNoIntent,
			}
		}
		logger.Warn("classification failed", zap.Error(err))
		return Idle(), Reply{
			Text:    "I couldn't work out what you want to do with your tasks. Please rephrase.",
			outcome: OutcomeClassificationFailed,
		}
	}
	logger = logger.With(zap.String("intent", string(intent)))

	empty, err := pipeline.Empty(intent)
	if err != nil {
		logger.Error("classifier returned an unknown intent", logging.Defect(), zap.Error(err))
		return Idle(), defectReply(intent)
	}

	incoming, err := m.extractor.Extract(ctx, intent, text)
	if err != nil {
		logger.Info("extraction failed, waiting for parameters", zap.Error(err))
		next := State{Stage: ValidateParams, TurnLog: []string{text}, Intent: intent, Params: empty}
		return next, extractionFailedReply(intent, err, next.Missing())
	}

	if incoming.Intent() != intent {
		// a variant that disagrees with the classified intent goes straight to
		// the router, which reports the pairing defect
		return m.dispatch(ctx, logger, State{}, intent, incoming)
	}

	pending := State{Stage: ValidateParams, TurnLog: []string{text}, Intent: intent, Params: empty}
	return m.absorb(ctx, logger, Idle(), pending, incoming)
}

// validateParams extracts under the stored intent and merges into the stored parameters
func (m *Machine) validateParams(ctx context.Context, key string, state State, text string) (State, Reply) {
	logger := m.logger.With(zap.String("conversation", key), zap.String("intent", string(state.Intent)))

	incoming, err := m.extractor.Extract(ctx, state.Intent, withStoredFilter(state.Params, text))
	if err != nil {
		logger.Info("extraction failed, still waiting for parameters", zap.Error(err))
		next := state
		next.TurnLog = append(append([]string(nil), state.TurnLog...), text)
		return next, extractionFailedReply(state.Intent, err, next.Missing())
	}

	pending := state
	pending.TurnLog = append(append([]string(nil), state.TurnLog...), text)
	return m.absorb(ctx, logger, state, pending, incoming)
}

// absorb merges incoming into pending.Params, preferring the newest values,
// and dispatches once the result is complete. On a merge defect the
// conversation stays at prior.
func (m *Machine) absorb(ctx context.Context, logger *zap.Logger, prior, pending State, incoming pipeline.Extraction) (State, Reply) {
	merged, err := pipeline.Merge(pending.Params, incoming, true)
	if err != nil {
		logger.Error("refusing to merge parameters", logging.Defect(),
			zap.Stringer("stored", pending.Params), zap.Stringer("incoming", incoming), zap.Error(err))
		reply := defectReply(pending.Intent)
		if missing := prior.Missing(); len(missing) > 0 {
			reply.Missing = missing
			reply.Text += fmt.Sprintf(" I still need %s, or send /cancel to start over.", describeSlots(missing))
		}
		return prior, reply
	}
	state := pending

	record, missing, reasons, err := pipeline.CheckComplete(merged)
	if err != nil {
		logger.Error("completeness check failed", logging.Defect(), zap.Error(err))
		return Idle(), defectReply(state.Intent)
	}
	if record == nil {
		state.Params = merged
		logger.Info("parameters incomplete", zap.Strings("missing", missing), zap.Stringer("params", merged))
		return state, Reply{
			Text:    followUp(state.Intent, missing, reasons),
			Intent:  state.Intent,
			Missing: missing,
			outcome: OutcomeMissing,
		}
	}
	return m.dispatch(ctx, logger, state, state.Intent, merged)
}

// dispatch hands a complete parameter set to the router. The conversation
// returns to ReceiveInput whatever the outcome.
func (m *Machine) dispatch(ctx context.Context, logger *zap.Logger, state State, intent pipeline.Intent, params pipeline.Extraction) (State, Reply) {
	report, err := m.router.Resolve(ctx, intent, params)
	if err == nil {
		logger.Info("request executed", zap.Int("tasks", len(report.Tasks)), zap.Int("turns", len(state.TurnLog)))
		return Idle(), Reply{Text: report.Describe(), Intent: intent, Report: report, outcome: OutcomeExecuted}
	}

	if execution.IsDefect(err) {
		logger.Error("request rejected as inconsistent", logging.Defect(),
			zap.Stringer("params", params), zap.Strings("turn_log", state.TurnLog), zap.Error(err))
		return Idle(), defectReply(intent)
	}

	logger.Warn("request failed", zap.Error(err))
	return Idle(), Reply{Text: operationFailed(intent, err), Intent: intent, outcome: OutcomeOperationFailed}
}

func (m *Machine) abandon(ctx context.Context, key string, state State) (Reply, error) {
	started := m.now()
	reply := Reply{Text: "There is nothing to cancel.", outcome: OutcomeIgnored}
	if state.Stage == ValidateParams {
		reply = Reply{
			Text:    fmt.Sprintf("Cancelled: I won't %s.", describeIntent(state.Intent)),
			Intent:  state.Intent,
			outcome: OutcomeCancelled,
		}
		m.logger.Info("slot filling abandoned", zap.String("conversation", key),
			zap.String("intent", string(state.Intent)), zap.Strings("turn_log", state.TurnLog))
	}

	if err := m.store.Delete(ctx, key); err != nil {
		return Reply{}, fmt.Errorf("failed to reset conversation %s: %w", key, err)
	}
	m.clearReset(key)
	reply.Stage = ReceiveInput
	m.record(ctx, key, reply, started)
	return reply, nil
}

// unchanged replies without touching the stored state
func (m *Machine) unchanged(ctx context.Context, key, text, outcome string) (Reply, error) {
	state, err := m.load(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{
		Text:    text,
		Stage:   state.Stage,
		Intent:  state.Intent,
		Missing: state.Missing(),
		outcome: outcome,
	}
	m.record(ctx, key, reply, m.now())
	return reply, nil
}

func (m *Machine) persist(ctx context.Context, key string, state State) error {
	var err error
	if state.Stage == ReceiveInput {
		err = m.store.Delete(ctx, key)
	} else {
		err = m.store.Save(ctx, key, state)
	}
	if err != nil {
		return fmt.Errorf("failed to store conversation %s: %w", key, err)
	}
	m.clearReset(key)
	return nil
}

func (m *Machine) markReset(key string) {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	m.resets[key] = struct{}{}
}

func (m *Machine) clearReset(key string) {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	delete(m.resets, key)
}

func (m *Machine) resetPending(key string) bool {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	_, ok := m.resets[key]
	return ok
}

func (m *Machine) record(ctx context.Context, key string, reply Reply, started time.Time) {
	if m.recorder == nil {
		return
	}
	m.recorder.RecordTurn(ctx, services.TurnEvent{
		Conversation: key,
		Intent:       string(reply.Intent),
		Stage:        string(reply.Stage),
		Outcome:      reply.outcome,
		Latency:      m.now().Sub(started),
		Missing:      len(reply.Missing),
		Defect:       reply.Defect,
		At:           started,
	})
}

func isCancel(text string) bool {
	switch strings.ToLower(text) {
	case "/cancel", "cancel":
		return true
	}
	return false
}
