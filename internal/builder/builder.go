// Package builder adapts the external source-transformation pipeline (the
// actual bundler/minifier is a black box reached through an external
// command) to the scheduler's Builder interface, and discovers buildable
// plugins on disk.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/xhyrom-forks/BunnyPlugins/internal/scheduler"
)

// ExecBuilder runs a configured command once per plugin. The plugin's name
// and paths are passed through the environment so any bundler invocation
// style works unchanged.
type ExecBuilder struct {
	// Command is the argv to execute, e.g. ["node", "scripts/build.mjs"].
	Command []string
}

// NewExecBuilder validates the command and returns the builder.
func NewExecBuilder(command []string) (*ExecBuilder, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("build.command must not be empty")
	}
	return &ExecBuilder{Command: command}, nil
}

// Build runs the pipeline command for one plugin. Output is captured and
// attached to the error on failure so the batch rejection carries the
// bundler's diagnostics.
func (e *ExecBuilder) Build(ctx context.Context, req scheduler.Request) error {
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Env = append(os.Environ(),
		"BUNNY_PLUGIN="+req.Name,
		"BUNNY_PLUGIN_DIR="+req.SourceDir,
		"BUNNY_OUT_DIR="+req.OutputDir,
	)
	for k, v := range req.Flags {
		cmd.Env = append(cmd.Env, "BUNNY_FLAG_"+k+"="+v)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Debug("Running pipeline command", "plugin", req.Name, "command", e.Command[0])
	if err := cmd.Run(); err != nil {
		output := bytes.TrimSpace(out.Bytes())
		if len(output) > 0 {
			return fmt.Errorf("pipeline command failed: %w\n%s", err, output)
		}
		return fmt.Errorf("pipeline command failed: %w", err)
	}
	return nil
}

// Discover lists the buildable plugins under root: every immediate
// subdirectory containing the manifest file, in lexical order. An empty
// manifest name accepts every subdirectory.
func Discover(root, manifest string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		if manifest != "" {
			if _, err := os.Stat(filepath.Join(root, entry.Name(), manifest)); err != nil {
				continue
			}
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Requests converts discovered plugin names into immutable build requests.
func Requests(names []string, pluginsDir, outputDir string) []scheduler.Request {
	reqs := make([]scheduler.Request, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, scheduler.Request{
			Name:      name,
			SourceDir: filepath.Join(pluginsDir, name),
			OutputDir: filepath.Join(outputDir, name),
		})
	}
	return reqs
}
