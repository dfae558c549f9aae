package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var reHeadingMark = regexp.MustCompile(`^#{1,6}\s+`)

// Text writes the summary as a plain .txt file with markdown syntax removed.
type Text struct{}

func (Text) Format() string { return "txt" }

func (Text) Export(_ context.Context, in Input) (string, error) {
	var out strings.Builder
	out.WriteString(in.Title + "\n\n")

	for _, line := range strings.Split(in.Summary, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" {
			continue
		}
		trimmed = reHeadingMark.ReplaceAllString(trimmed, "")
		out.WriteString(stripInlineMarkdown(trimmed) + "\n")
	}

	path := filepath.Join(in.Dir, in.TaskID+".txt")
	if err := os.WriteFile(path, []byte(out.String()), 0o644); err != nil {
		return "", fmt.Errorf("write txt: %w", err)
	}
	return path, nil
}
