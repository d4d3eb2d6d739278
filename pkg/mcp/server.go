package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/parla/pkg/engine"
)

// NewServer creates an MCP server with the parla tools registered.
func NewServer(version string, eng *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"parla",
		version,
		server.WithToolCapabilities(true),
	)
	h := NewHandlers(eng)

	s.AddTool(
		mcp.NewTool("parla/lessons",
			mcp.WithDescription("List lessons with their lock state and scenario ids"),
		),
		h.HandleLessons,
	)

	s.AddTool(
		mcp.NewTool("parla/start",
			mcp.WithDescription("Start or resume a scenario conversation; returns a session id and the first coach message"),
			mcp.WithString("lesson", mcp.Required(), mcp.Description("Lesson id")),
			mcp.WithString("scenario", mcp.Required(), mcp.Description("Scenario id within the lesson")),
		),
		h.HandleStart,
	)

	s.AddTool(
		mcp.NewTool("parla/send",
			mcp.WithDescription("Send a learner message and get the evaluated reply"),
			mcp.WithString("session", mcp.Required(), mcp.Description("Session id from parla/start")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Learner message in the target language")),
		),
		h.HandleSend,
	)

	s.AddTool(
		mcp.NewTool("parla/restart",
			mcp.WithDescription("Restart the scenario from its first goal"),
			mcp.WithString("session", mcp.Required(), mcp.Description("Session id")),
		),
		h.HandleRestart,
	)

	s.AddTool(
		mcp.NewTool("parla/leave",
			mcp.WithDescription("Save progress and close the session"),
			mcp.WithString("session", mcp.Required(), mcp.Description("Session id")),
		),
		h.HandleLeave,
	)

	s.AddTool(
		mcp.NewTool("parla/validate",
			mcp.WithDescription("Validate a lesson document"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the lesson YAML or JSON file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("parla/schema",
			mcp.WithDescription("Export the lesson JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
