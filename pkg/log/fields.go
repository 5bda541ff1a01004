package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldConnectionID   = "connection_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldAttachmentID   = "attachment_id"
	FieldEventType      = "event_type"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
