package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/persistcheck/models"
)

// apiClient talks to a running persistcheck server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// do sends a request and decodes a 2xx body into out. Non-2xx bodies are
// decoded as ErrorResponse and returned as errors.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e models.ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Error != nil {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func handleRunCheck(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := models.CheckRequest{
			URL:           request.GetString("url", ""),
			ButtonText:    request.GetString("button_text", ""),
			ExpectText:    request.GetString("expect_text", ""),
			StorageKey:    request.GetString("storage_key", ""),
			StorageExpect: request.GetString("storage_expect", ""),
			Async:         !request.GetBool("wait", true),
		}

		if payload.Async {
			var acc models.CheckAccepted
			if err := c.do(ctx, http.MethodPost, "/api/v1/checks", payload, &acc); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("check request failed: %v", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf(
				"Check started.\nRun ID: %s\nStatus: %s\n\nUse get_check with this ID to fetch the report.",
				acc.ID, acc.Status,
			)), nil
		}

		var rep models.Report
		if err := c.do(ctx, http.MethodPost, "/api/v1/checks", payload, &rep); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("check request failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatReport(&rep)), nil
	}
}

func handleGetCheck(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		var status models.CheckStatusResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/checks/"+id, nil, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get check failed: %v", err)), nil
		}

		if status.Report == nil {
			return mcp.NewToolResultText(fmt.Sprintf("Run ID: %s\nStatus: %s", status.ID, status.Status)), nil
		}
		return mcp.NewToolResultText(formatReport(status.Report)), nil
	}
}

// formatReport renders a report as plain text for the model.
func formatReport(rep *models.Report) string {
	var sb strings.Builder

	if rep.ID != "" {
		fmt.Fprintf(&sb, "Run ID: %s\n", rep.ID)
	}
	fmt.Fprintf(&sb, "Outcome: %s\n", strings.ToUpper(rep.Outcome))
	fmt.Fprintf(&sb, "URL: %s\n", rep.URL)
	fmt.Fprintf(&sb, "Clicked: %q\n", rep.ButtonText)
	fmt.Fprintf(&sb, "Expected after reload: %q (found: %t, matches: %d)\n", rep.ExpectText, rep.Found, rep.MatchCount)

	if rep.StorageKey != "" {
		value := "<absent>"
		if rep.StorageValue != nil {
			value = *rep.StorageValue
		}
		fmt.Fprintf(&sb, "localStorage[%s]: %s\n", rep.StorageKey, value)
	}
	if rep.Error != nil {
		fmt.Fprintf(&sb, "Failed at %s: [%s] %s\n", rep.FailedStep, rep.Error.Code, rep.Error.Message)
	}
	fmt.Fprintf(&sb, "Drift after reload: text %d/64, dom %d/64\n", rep.TextDrift, rep.DOMDrift)
	if len(rep.Screenshots) > 0 {
		fmt.Fprintf(&sb, "Screenshots: %s\n", strings.Join(rep.Screenshots, ", "))
	}
	if rep.Snapshot != "" {
		fmt.Fprintf(&sb, "Snapshot: %s\n", rep.Snapshot)
	}
	fmt.Fprintf(&sb, "Duration: %dms", rep.DurationMs)

	return sb.String()
}
