package models

import "time"

// ToolEventType names a tool lifecycle change
type ToolEventType string

const (
	ToolCreated   ToolEventType = "tool_created"
	ToolMerged    ToolEventType = "tool_merged"
	ToolActivated ToolEventType = "tool_activated"
)

// ToolEvent is delivered by the tool registry when a tracked tool changes.
// For merges, ToolIDs holds the source tools followed by the target tool.
type ToolEvent struct {
	Type      ToolEventType `json:"event_type" binding:"required"`
	ToolIDs   []string      `json:"tool_ids" binding:"required,min=1"`
	Timestamp time.Time     `json:"timestamp"`
}
