// Package report provides the write_report tool, which stores an HTML
// document produced by a model on disk.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/chainkit/tool"
)

// Name is the tool name exposed to models.
const Name = "write_report"

const description = "Write an HTML file to disk. Use this tool whenever someone asks for a report."

// Args are the write_report arguments.
type Args struct {
	Filename string `json:"filename" jsonschema:"name of the HTML file to write"`
	HTML     string `json:"html" jsonschema:"complete HTML document"`
}

// Options configures the write_report tool.
type Options struct {
	// BaseDir confines reports to a directory. Filenames must then be local
	// paths. An empty BaseDir writes relative to the working directory.
	BaseDir string

	ToolOptions []func(o *tool.Options)
}

// New creates the write_report tool.
func New(optFns ...func(o *Options)) (*tool.FunctionTool, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewTypedTool(Name, description, func(_ context.Context, args Args) (any, error) {
		path, err := resolve(opts.BaseDir, args.Filename)
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create directories for %s: %w", args.Filename, err)
		}

		if err := os.WriteFile(path, []byte(args.HTML), 0o644); err != nil {
			return nil, fmt.Errorf("cannot write %s: %w", args.Filename, err)
		}

		return fmt.Sprintf("Successfully wrote %d bytes to %s", len(args.HTML), args.Filename), nil
	}, opts.ToolOptions...)
}

func resolve(baseDir, filename string) (string, error) {
	if filename == "" {
		return "", tool.NewToolError(Name, "filename is required", tool.CodeValidation)
	}

	if baseDir == "" {
		return filename, nil
	}

	if !filepath.IsLocal(filename) {
		return "", tool.NewToolError(Name, fmt.Sprintf("filename %q escapes the report directory", filename), tool.CodeValidation)
	}

	return filepath.Join(baseDir, filename), nil
}
