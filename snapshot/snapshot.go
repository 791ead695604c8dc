// Package snapshot writes a Markdown rendering of a page next to the
// screenshots, so a failed run can be diffed as text.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// Writer converts page HTML to Markdown. It is safe for concurrent use.
type Writer struct {
	conv *converter.Converter
}

// NewWriter creates a Writer with the base, commonmark and table plugins.
// The base plugin drops script, style, head and form inputs.
func NewWriter() *Writer {
	return &Writer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Render converts htmlContent to Markdown. pageURL resolves relative links.
func (w *Writer) Render(htmlContent, pageURL string) (string, error) {
	return w.conv.ConvertString(htmlContent, converter.WithDomain(pageURL))
}

// Write renders htmlContent and stores it at path, creating parent directories.
func (w *Writer) Write(path, htmlContent, pageURL string) error {
	md, err := w.Render(htmlContent, pageURL)
	if err != nil {
		return fmt.Errorf("snapshot: render: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot: create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return fmt.Errorf("snapshot: write: %w", err)
	}
	return nil
}
