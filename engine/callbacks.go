package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/planner"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Available callback types:
//   - BeforeTurn/AfterTurn: Around the complete turn pipeline
//   - BeforeAgent/AfterAgent: Around every agent call of a plan
//   - OnStateChange: After every applied state transition
//   - OnError: When a turn fails
type CallbackType string

const (
	// CallbackBeforeTurn is triggered after the session is loaded and before
	// the message is understood. Returning an error rejects the turn.
	CallbackBeforeTurn CallbackType = "before_turn"

	// CallbackAfterTurn is triggered after the reply was synthesized and the
	// session saved.
	CallbackAfterTurn CallbackType = "after_turn"

	// CallbackBeforeAgent is triggered before an agent begins execution.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent is triggered after an agent call finished, whatever
	// its outcome.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnStateChange is triggered for every state transition of a turn.
	CallbackOnStateChange CallbackType = "on_state_change"

	// CallbackOnError is triggered when a turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext provides the information a callback might need.
// Fields that do not apply to a callback type are left zero.
type CallbackContext struct {
	CallbackType CallbackType
	SessionID    string
	// Session is a snapshot; mutating it has no effect on the engine.
	Session *core.SessionContext
	Text    string
	Plan    *planner.Plan
	Agent   string
	Result  *core.TaskResult
	From    core.State
	To      core.State
	Err     error
	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for lifecycle hooks.
//
// Implementations should be fast (callbacks run synchronously on the turn
// path) and safe for concurrent use (turns of different sessions run in
// parallel).
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackAfterAgent,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("agent %s done: %v", cc.Agent, cc.Result.Success)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks keyed by type.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops execution of the remaining callbacks of that type.
// Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes one structured log line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event with context information.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"callback", string(c.callbackType), "session_id", cc.SessionID}
	if cc.Agent != "" {
		args = append(args, "agent", cc.Agent)
	}
	if cc.Result != nil {
		args = append(args, "success", cc.Result.Success)
	}
	if cc.From != "" || cc.To != "" {
		args = append(args, "from", cc.From, "to", cc.To)
	}
	if cc.Err != nil {
		args = append(args, "error", cc.Err)
	}
	c.logger.Info("lifecycle event", args...)
	return nil
}

// StateValidationCallback vetoes state transitions. The validator sees the
// session snapshot and the move; a returned error is logged by the engine.
// Transitions themselves are governed by the transition table, so the veto
// cannot undo a move; use it for auditing and alerting.
type StateValidationCallback struct {
	validator func(sess *core.SessionContext, from, to core.State) error
}

// NewStateValidationCallback creates a new state validation callback.
func NewStateValidationCallback(validator func(sess *core.SessionContext, from, to core.State) error) *StateValidationCallback {
	return &StateValidationCallback{validator: validator}
}

// Type returns the callback type (always CallbackOnStateChange).
func (c *StateValidationCallback) Type() CallbackType {
	return CallbackOnStateChange
}

// Execute runs the validator.
func (c *StateValidationCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.validator == nil {
		return nil
	}
	if err := c.validator(cc.Session, cc.From, cc.To); err != nil {
		return fmt.Errorf("state change %s -> %s rejected: %w", cc.From, cc.To, err)
	}
	return nil
}
