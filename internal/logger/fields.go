package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing Fields (Context level)
// Propagated through the call chain via context.Context
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the export job ID
	FieldJobID = "job_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the configured gallery source identifier
	FieldSource = "source"
)

// ============================================
// Paging Fields
// ============================================

const (
	// FieldCursor is the resume cursor of a traversal
	FieldCursor = "cursor"

	// FieldBatchSize is the requested page size
	FieldBatchSize = "batch_size"

	// FieldMore is the "more available" flag reported by a page
	FieldMore = "more"
)

// ============================================
// Metric Fields (Entry level)
// Used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
