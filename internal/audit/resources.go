package audit

// Resource kinds recorded in the audit trail.
const (
	ResourceOrder      = "order"
	ResourceMillInput  = "mill_input"
	ResourceMillOutput = "mill_output"
	ResourceDispatch   = "dispatch"
	ResourceLab        = "lab"
	ResourceParty      = "party"
	ResourceMill       = "mill"
	ResourceQuality    = "quality"
	ResourceProcess    = "process"
	ResourceAuditLog   = "audit_log"
)
