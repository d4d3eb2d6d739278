// Package mcp exposes scenario sessions as MCP tools so an agent can drive
// a lesson conversation over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/parla/pkg/engine"
	"github.com/ormasoftchile/parla/pkg/lesson"
	"github.com/ormasoftchile/parla/pkg/scenario"
)

// Handlers serves the parla tools over one engine. Engine sessions are not
// safe for concurrent use, so every tool call holds mu.
type Handlers struct {
	eng *engine.Engine

	mu       sync.Mutex
	sessions map[string]*engine.Session
}

// NewHandlers creates the tool handlers.
func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{eng: eng, sessions: map[string]*engine.Session{}}
}

type lessonInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Lock      string   `json:"lock"`
	Completed bool     `json:"completed"`
	Scenarios []string `json:"scenarios,omitempty"`
}

// HandleLessons implements the parla/lessons tool.
func (h *Handlers) HandleLessons(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	completed, err := h.eng.Progress().CompletedLessons()
	if err != nil {
		return errorResult(fmt.Sprintf("read progress: %s", err)), nil
	}
	var out []lessonInfo
	for _, l := range h.eng.Lessons().Lessons() {
		info := lessonInfo{
			ID:        l.ID,
			Title:     l.Title,
			Lock:      string(h.eng.LockReason(l.ID)),
			Completed: completed[l.ID],
		}
		for _, sl := range l.Slides {
			if sl.Type == lesson.SlideScenario && sl.Scenario != nil {
				info.Scenarios = append(info.Scenarios, sl.Scenario.ID)
			}
		}
		out = append(out, info)
	}
	return jsonResult(out, false), nil
}

// HandleStart implements the parla/start tool.
func (h *Handlers) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	lessonID, _ := args["lesson"].(string)
	scenarioID, _ := args["scenario"].(string)
	if lessonID == "" || scenarioID == "" {
		return errorResult("lesson and scenario arguments are required"), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// Open hands back the live session when this scenario is already open,
	// so repeated starts share one session id.
	s, err := h.eng.Open(lessonID, scenarioID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	h.sessions[s.ID()] = s
	return jsonResult(s.Snapshot(), false), nil
}

// HandleSend implements the parla/send tool. The turn runs synchronously.
func (h *Handlers) HandleSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	text, _ := args["text"].(string)
	if strings.TrimSpace(text) == "" {
		return errorResult("text argument is required"), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, res := h.session(args)
	if res != nil {
		return res, nil
	}
	snap, err := s.Submit(ctx, text)
	switch {
	case errors.Is(err, scenario.ErrInvalidState):
		return errorResult("all goals are complete; restart or leave the session"), nil
	case err != nil:
		return errorResult(err.Error()), nil
	}
	return jsonResult(snap, false), nil
}

// HandleRestart implements the parla/restart tool.
func (h *Handlers) HandleRestart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, res := h.session(req.GetArguments())
	if res != nil {
		return res, nil
	}
	return jsonResult(s.Restart(), false), nil
}

// HandleLeave implements the parla/leave tool. It persists progress and
// closes the session.
func (h *Handlers) HandleLeave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, res := h.session(req.GetArguments())
	if res != nil {
		return res, nil
	}
	snap := s.Leave()
	delete(h.sessions, s.ID())
	return jsonResult(snap, false), nil
}

// HandleValidate implements the parla/validate tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	l, errs := lesson.ValidateFile(path)
	if lesson.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d slides)", l.ID, len(l.Slides))), nil
}

// HandleSchema implements the parla/schema tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := lesson.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// session resolves the session argument; a non-nil result reports why not.
func (h *Handlers) session(args map[string]any) (*engine.Session, *mcp.CallToolResult) {
	id, _ := args["session"].(string)
	if id == "" {
		return nil, errorResult("session argument is required")
	}
	s, ok := h.sessions[id]
	if !ok {
		return nil, errorResult(fmt.Sprintf("unknown session %q", id))
	}
	return s, nil
}

func formatErrors(errs []*lesson.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
