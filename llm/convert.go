package llm

import (
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/google/uuid"
)

// JustificationArg is the argument every declared tool requires. It is taken
// out of the call arguments and carried as pipeline.Request.Justification.
const JustificationArg = "justification"

const justificationDescription = "Why this call is needed: your intent, the exact operation, " +
	"the expected outcome and any risk. Shown to the operator before the tool runs."

// openingMessage is sent when the window holds nothing but system entries,
// since vendors require at least one user turn.
const openingMessage = "Begin the session."

// toolCall is a tool use reconstructed from a tool_result entry.
type toolCall struct {
	ID   string
	Name string
}

type toolResult struct {
	ID      string
	Name    string
	Content string
}

// turn is one vendor message in vendor-neutral form. Assistant turns may carry
// calls; user turns may carry results.
type turn struct {
	Role    session.Role
	Text    string
	Calls   []toolCall
	Results []toolResult
}

// buildConversation splits a model window into the system prompt and the
// alternating turns every adapter renders.
//
// The history only stores tool results, so each run of consecutive results is
// preceded by an assistant turn holding the matching calls. The calls are
// attached to the previous assistant turn when there is one.
func buildConversation(req Request) (string, []turn) {
	var system []string
	var turns []turn

	for i := 0; i < len(req.Messages); i++ {
		msg := req.Messages[i]
		switch msg.Role {
		case string(session.RoleSystem):
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}
		case string(session.RoleUser):
			turns = append(turns, turn{Role: session.RoleUser, Text: msg.Content})
		case string(session.RoleAssistant):
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			turns = append(turns, turn{Role: session.RoleAssistant, Text: msg.Content})
		case session.WireRoleTool:
			var calls []toolCall
			var results []toolResult
			for ; i < len(req.Messages) && req.Messages[i].Role == session.WireRoleTool; i++ {
				m := req.Messages[i]
				calls = append(calls, toolCall{ID: m.ToolCallID, Name: m.Name})
				results = append(results, toolResult{ID: m.ToolCallID, Name: m.Name, Content: m.Content})
			}
			i--

			if n := len(turns); n > 0 && turns[n-1].Role == session.RoleAssistant && len(turns[n-1].Calls) == 0 {
				turns[n-1].Calls = calls
			} else {
				turns = append(turns, turn{Role: session.RoleAssistant, Calls: calls})
			}
			turns = append(turns, turn{Role: session.RoleUser, Results: results})
		}
	}

	if req.PersonaPrompt != "" {
		system = append(system, "Active persona ("+req.PersonaID+"):\n"+req.PersonaPrompt)
	}
	if len(turns) == 0 {
		turns = append(turns, turn{Role: session.RoleUser, Text: openingMessage})
	}
	return strings.Join(system, "\n\n"), turns
}

// toolSchema returns the tool's argument schema with the required
// justification argument added. The tool's own schema is not modified.
func toolSchema(t tools.Tool) map[string]any {
	schema := map[string]any{"type": "object"}
	for k, v := range t.Schema() {
		schema[k] = v
	}

	props := map[string]any{}
	if existing, ok := schema["properties"].(map[string]any); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props[JustificationArg] = map[string]any{
		"type":        "string",
		"description": justificationDescription,
	}
	schema["properties"] = props

	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = append(required, r...)
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	schema["required"] = append(required, JustificationArg)
	return schema
}

// schemaParts returns the properties and required list of a tool schema.
func schemaParts(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)
	return props, required
}

// toRequest turns a vendor tool call into a pipeline request, moving the
// justification out of the arguments. A missing id is generated. The call is
// decoded with pipeline.DecodeRequest, so a malformed call is returned as a
// tool validation error.
func toRequest(id, name string, args map[string]any) (pipeline.Request, error) {
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	raw := map[string]any{
		"request_id": id,
		"tool_name":  name,
	}
	params := make(map[string]any, len(args))
	for k, v := range args {
		if k == JustificationArg {
			raw["justification"] = v
			continue
		}
		params[k] = v
	}
	raw["parameters"] = params

	req, err := pipeline.DecodeRequest(raw)
	if err != nil {
		return pipeline.Request{ID: id, ToolName: name}, err
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	return req, nil
}

// addToolCall records a decoded call on r, or the reason it was rejected.
func (r *Response) addToolCall(id, name string, args map[string]any) {
	req, err := toRequest(id, name, args)
	if err != nil {
		r.Invalid = append(r.Invalid, err)
		return
	}
	r.ToolRequests = append(r.ToolRequests, req)
}
