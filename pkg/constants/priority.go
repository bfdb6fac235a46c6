package constants

// Coarse priority classes assigned to CDC pointers so workers can filter
// a subset of event types without fetching the full payload.
const (
	PriorityHigh    = 1 // session lifecycle, user prompts
	PriorityMedium  = 2 // tool executions
	PriorityLow     = 3 // file edits / code changes
	PriorityBatch   = 4 // git commits and other batch-derived events
	PriorityDefault = 5 // everything else
)

// priorityByEventType maps event types to their priority class.
var priorityByEventType = map[string]int{
	"session_start": PriorityHigh,
	"session_end":   PriorityHigh,
	"user_prompt":   PriorityHigh,
	"tool_use":      PriorityMedium,
	"mcp_execution": PriorityMedium,
	"file_edit":     PriorityLow,
	"code_change":   PriorityLow,
	"git_commit":    PriorityBatch,
}

// PriorityForEventType returns the coarse priority class for an event type.
// Unknown types get PriorityDefault.
func PriorityForEventType(eventType string) int {
	if p, ok := priorityByEventType[eventType]; ok {
		return p
	}
	return PriorityDefault
}
