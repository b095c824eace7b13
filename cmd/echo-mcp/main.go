// Command echo-mcp runs the echo MCP server over stdio. It doubles as
// a fixture for exercising the MCP client against a real subprocess.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/waveline-ai/waveline/pkg/mcpserver/echo"
)

func main() {
	s := echo.NewServer()
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
