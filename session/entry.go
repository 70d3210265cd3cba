package session

import "time"

// Role tags a conversation entry. The set is closed: every switch over Role
// handles all four values.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleSystem, RoleUser, RoleAssistant, RoleToolResult}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleToolResult:
		return true
	}
	return false
}

// Entry is one unit of conversation history. Entries are handed out by value,
// so a stored entry cannot be changed after Append.
type Entry struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

// Extra carries the tool metadata required by tool_result entries.
type Extra struct {
	ToolName   string
	ToolCallID string
}

// WireMessage is the model-facing shape of an entry. It has no timestamp and
// uses "tool" for tool results.
type WireMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// WireRoleTool is the role tool results carry on the wire.
const WireRoleTool = "tool"

// ToWire maps an entry to its model-facing shape.
func ToWire(e Entry) WireMessage {
	switch e.Role {
	case RoleToolResult:
		return WireMessage{
			Role:       WireRoleTool,
			Content:    e.Content,
			Name:       e.ToolName,
			ToolCallID: e.ToolCallID,
		}
	case RoleSystem, RoleUser, RoleAssistant:
		return WireMessage{Role: string(e.Role), Content: e.Content}
	}
	// Append rejects unknown roles, so this is unreachable for stored entries.
	return WireMessage{Role: string(e.Role), Content: e.Content}
}
