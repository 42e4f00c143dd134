package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the pipeline job ID
	FieldJobID = "job_id"

	// FieldStage is the pipeline stage name
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldOwner is the submitting principal
	FieldOwner = "owner"
)

// Standard metric fields attached at the log call site.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the execution attempt number
	FieldAttempt = "attempt"
)
