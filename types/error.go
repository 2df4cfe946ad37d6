package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind 错误类别，调用方按 Kind 分派而不是按具体类型。
type ErrorKind string

const (
	KindWorkflowConfiguration ErrorKind = "workflow_configuration"
	KindWorkflowExecution     ErrorKind = "workflow_execution"
	KindWorkflowRepair        ErrorKind = "workflow_repair"
	KindPopulation            ErrorKind = "population"
	KindGeneticOperation      ErrorKind = "genetic_operation"
	KindRaceCondition         ErrorKind = "race_condition"
	KindStateManagement       ErrorKind = "state_management"
	KindRunTracking           ErrorKind = "run_tracking"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Workflow error codes
const (
	ErrInvalidWorkflow    ErrorCode = "INVALID_WORKFLOW"
	ErrNodeExecution      ErrorCode = "NODE_EXECUTION_FAILED"
	ErrModelCall          ErrorCode = "MODEL_CALL_FAILED"
	ErrHopLimit           ErrorCode = "HOP_LIMIT_EXCEEDED"
	ErrRepairExhausted    ErrorCode = "REPAIR_EXHAUSTED"
	ErrToolUnavailable    ErrorCode = "TOOL_UNAVAILABLE"
	ErrCaseTimeout        ErrorCode = "CASE_TIMEOUT"
	ErrWorkflowPanic      ErrorCode = "WORKFLOW_PANIC"
	ErrWorkflowCancelled  ErrorCode = "WORKFLOW_CANCELLED"
	ErrConfigInvalid      ErrorCode = "CONFIG_INVALID"
	ErrBudgetExceeded     ErrorCode = "BUDGET_EXCEEDED"
	ErrUnsupportedSeeding ErrorCode = "UNSUPPORTED_SEEDING"
)

// Evolution error codes
const (
	ErrPopulationTooSmall   ErrorCode = "POPULATION_TOO_SMALL"
	ErrNotEnoughParents     ErrorCode = "NOT_ENOUGH_PARENTS"
	ErrOperatorFailed       ErrorCode = "OPERATOR_FAILED"
	ErrConcurrentExecute    ErrorCode = "CONCURRENT_EXECUTE"
	ErrInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrTrackerWrite         ErrorCode = "TRACKER_WRITE_FAILED"
	ErrTrackerRead          ErrorCode = "TRACKER_READ_FAILED"
	ErrInvalidStatusChange  ErrorCode = "INVALID_STATUS_CHANGE"
	ErrTooManyDiscards      ErrorCode = "TOO_MANY_DISCARDS"
	ErrGenerationIncomplete ErrorCode = "GENERATION_INCOMPLETE"
)

// Error 统一的结构化错误，可直接 JSON 序列化用于持久化与观测。
type Error struct {
	Kind      ErrorKind      `json:"kind"`
	Code      ErrorCode      `json:"code"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Action    string         `json:"action,omitempty"`
	Debug     map[string]any `json:"debug,omitempty"`
	Retryable bool           `json:"retryable"`
	Cause     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// MarshalJSON 序列化时附带 cause 文本。
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	out := struct {
		*alias
		Cause string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	return json.Marshal(out)
}

// NewError creates a new Error with the given kind, code and message.
func NewError(kind ErrorKind, code ErrorCode, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Title:     titles[kind],
		Message:   message,
		Retryable: retryableKinds[kind],
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithAction sets the human-facing remediation hint.
func (e *Error) WithAction(action string) *Error {
	e.Action = action
	return e
}

// WithDebug attaches one structured context entry.
func (e *Error) WithDebug(key string, value any) *Error {
	if e.Debug == nil {
		e.Debug = make(map[string]any)
	}
	e.Debug[key] = value
	return e
}

// WithRetryable overrides the kind's default retryability.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

var titles = map[ErrorKind]string{
	KindWorkflowConfiguration: "Workflow configuration error",
	KindWorkflowExecution:     "Workflow execution error",
	KindWorkflowRepair:        "Workflow repair error",
	KindPopulation:            "Population error",
	KindGeneticOperation:      "Genetic operation error",
	KindRaceCondition:         "Race condition",
	KindStateManagement:       "State management error",
	KindRunTracking:           "Run tracking error",
}

// retryable 指人工重试是否有意义
var retryableKinds = map[ErrorKind]bool{
	KindWorkflowExecution: true,
	KindGeneticOperation:  true,
}

// NewWorkflowConfigurationError 工作流配置错误
func NewWorkflowConfigurationError(message string, problems []string) *Error {
	e := NewError(KindWorkflowConfiguration, ErrInvalidWorkflow, message).
		WithAction("fix the workflow definition before submitting it again")
	if len(problems) > 0 {
		e.WithDebug("problems", problems)
	}
	return e
}

// NewWorkflowExecutionError 工作流执行错误
func NewWorkflowExecutionError(code ErrorCode, message string, cause error) *Error {
	return NewError(KindWorkflowExecution, code, message).
		WithCause(cause).
		WithAction("inspect the node trace and retry the invocation")
}

// NewWorkflowRepairError 工作流修复失败
func NewWorkflowRepairError(genomeID string, attempts int, cause error) *Error {
	return NewError(KindWorkflowRepair, ErrRepairExhausted,
		fmt.Sprintf("genome %s still invalid after %d repair attempts", genomeID, attempts)).
		WithCause(cause).
		WithDebug("genomeId", genomeID).
		WithDebug("attempts", attempts).
		WithAction("the genome is discarded from this generation")
}

// NewPopulationError 种群规模不变量被破坏
func NewPopulationError(operation string, observed, required int) *Error {
	return NewError(KindPopulation, ErrPopulationTooSmall,
		fmt.Sprintf("%s left %d genomes, at least %d required", operation, observed, required)).
		WithDebug("operation", operation).
		WithDebug("observedSize", observed).
		WithDebug("requiredSize", required).
		WithAction("lower the minimum population size or relax the filter")
}

// NewGeneticOperationError 遗传算子父代数量不足
func NewGeneticOperationError(operator string, required, provided int) *Error {
	return NewError(KindGeneticOperation, ErrNotEnoughParents,
		fmt.Sprintf("%s requires %d parents, got %d", operator, required, provided)).
		WithDebug("operator", operator).
		WithDebug("requiredParents", required).
		WithDebug("providedParents", provided).
		WithAction("retry the operator with a different parent selection")
}

// NewRaceConditionError 并发调用守卫
func NewRaceConditionError(operation string, state string) *Error {
	return NewError(KindRaceCondition, ErrConcurrentExecute,
		fmt.Sprintf("%s called while pipeline is %s", operation, state)).
		WithDebug("operation", operation).
		WithDebug("state", state)
}

// NewStateManagementError 非法状态转换
func NewStateManagementError(operation string, from, expected string) *Error {
	return NewError(KindStateManagement, ErrInvalidTransition,
		fmt.Sprintf("%s requires state %s, pipeline is %s", operation, expected, from)).
		WithDebug("operation", operation).
		WithDebug("state", from).
		WithDebug("expected", expected)
}

// NewRunTrackingError 持久化失败
func NewRunTrackingError(code ErrorCode, operation string, cause error) *Error {
	return NewError(KindRunTracking, code, operation+" failed").
		WithCause(cause).
		WithDebug("operation", operation)
}

// AsError extracts an *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
