package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Markdown writes the summary as a .md file with a title header.
type Markdown struct{}

func (Markdown) Format() string { return "markdown" }

func (Markdown) Export(_ context.Context, in Input) (string, error) {
	content := fmt.Sprintf("# %s\n\n_%s_\n\n%s\n",
		in.Title,
		time.Now().Format("2006-01-02 15:04"),
		strings.TrimSpace(in.Summary),
	)

	path := filepath.Join(in.Dir, in.TaskID+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}
	return path, nil
}
