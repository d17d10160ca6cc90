// Package tools holds the shared plumbing for the station's MCP tools:
// registration, result encoding, confirmation prompts and auditing.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Registration pairs an MCP tool definition with its handler. Guarded tools
// change station state and require a confirmation token.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
	Guarded bool
}

// RegisterAll adds every Registration to s.
func RegisterAll(s *server.MCPServer, registrations []Registration) {
	for _, r := range registrations {
		s.AddTool(r.Tool, r.Handler)
	}
}

// GuardedNames returns the names of the guarded registrations, in order.
func GuardedNames(registrations []Registration) []string {
	var names []string
	for _, r := range registrations {
		if r.Guarded {
			names = append(names, r.Tool.Name)
		}
	}
	return names
}
