package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("PERSISTCHECK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8090"
	}
	// Optional: the service runs without auth by default.
	apiKey := os.Getenv("PERSISTCHECK_API_KEY")

	s := server.NewMCPServer(
		"persistcheck",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	c := &apiClient{
		baseURL: apiURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}

	runCheckTool := mcp.NewTool("run_check",
		mcp.WithDescription("Open the application in a headless browser, click a control, reload the page and verify the chosen setting survived. Returns the outcome, matched text and screenshot paths. Omitted arguments use the service defaults."),
		mcp.WithString("url",
			mcp.Description("Page of the application under test (default: the service's target URL)"),
		),
		mcp.WithString("button_text",
			mcp.Description("Visible text of the control to click, e.g. 'Senior'"),
		),
		mcp.WithString("expect_text",
			mcp.Description("Text that must be present after the reload, e.g. 'Level 1A'"),
		),
		mcp.WithString("storage_key",
			mcp.Description("Optional localStorage key to read after the reload"),
		),
		mcp.WithString("storage_expect",
			mcp.Description("Value storage_key must hold; requires storage_key"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the report (default: true). When false, returns a run ID for get_check."),
		),
	)
	s.AddTool(runCheckTool, handleRunCheck(c))

	getCheckTool := mcp.NewTool("get_check",
		mcp.WithDescription("Fetch the status and report of a check started with run_check wait=false."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run ID returned by run_check"),
		),
	)
	s.AddTool(getCheckTool, handleGetCheck(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
