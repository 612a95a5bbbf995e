package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerTools returns every tool definition paired with its handler
func (tk *Toolkit) ServerTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("run_command",
				mcp.WithDescription("Run a shell command in a project. Dev servers start in the background on port 3000 and preview servers on port 4173; both keep running after the call returns. Other commands run to completion with a timeout."),
				mcp.WithString("command", mcp.Required(), mcp.Description("Shell command to run")),
				mcp.WithString("cwd", mcp.Description("Working directory; defaults to the server's working directory")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				command, err := req.RequireString("command")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(tk.RunCommand(ctx, command, req.GetString("cwd", ""))), nil
			},
		},
		{
			Tool: mcp.NewTool("open_browser_preview",
				mcp.WithDescription("Open a URL in the user's default browser."),
				mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL to open")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				url, err := req.RequireString("url")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(tk.OpenBrowserPreview(ctx, url)), nil
			},
		},
		{
			Tool: mcp.NewTool("kill_project_dev_server",
				mcp.WithDescription("Stop the project's dev server on port 3000. Processes belonging to this application are never killed."),
				mcp.WithString("cwd", mcp.Description("Project directory")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText(tk.KillProjectDevServer(ctx, req.GetString("cwd", ""))), nil
			},
		},
		{
			Tool: mcp.NewTool("validate_page",
				mcp.WithDescription("Load a page in a headless browser (or over HTTP when no browser is available), report errors it shows and auto-fix the fixable ones."),
				mcp.WithString("url", mcp.Required(), mcp.Description("Page URL, e.g. http://localhost:3000")),
				mcp.WithNumber("timeout", mcp.Description("Timeout in milliseconds (default 15000)")),
				mcp.WithString("cwd", mcp.Description("Project directory; enables auto-fixing")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				url, err := req.RequireString("url")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				timeout := time.Duration(req.GetFloat("timeout", 0)) * time.Millisecond
				return mcp.NewToolResultText(tk.ValidatePage(ctx, url, timeout, req.GetString("cwd", ""))), nil
			},
		},
		{
			Tool: mcp.NewTool("dev_server_status",
				mcp.WithDescription("List tracked dev/preview servers and what listens on ports 3000, 4173 and 5173."),
			),
			Handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText(tk.DevServerStatus(ctx)), nil
			},
		},
	}
}

// NewMCPServer exposes the toolkit over the Model Context Protocol
func NewMCPServer(tk *Toolkit, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"octo-runner",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(tk.ServerTools()...)
	return s
}

// ServeStdio serves the toolkit on stdin/stdout until the client disconnects
func ServeStdio(tk *Toolkit, version string) error {
	return server.ServeStdio(NewMCPServer(tk, version))
}
