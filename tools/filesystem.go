package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/config"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/bmatcuk/doublestar/v4"
)

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file."
}

func (t *ReadFileTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"path": stringProperty("Path of the file to read, relative to the working directory."),
	}, "path")
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'path' argument")
	}
	if err := checkHidden(path, t.fsAccess); err != nil {
		return "", err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(content), nil
}

// WriteFileTool implements the tool for writing to a file.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Parent directories are created."
}

func (t *WriteFileTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"path":    stringProperty("Path of the file to write."),
		"content": stringProperty("Full new content of the file."),
	}, "path", "content")
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, pathOk := args["path"].(string)
	content, contentOk := args["content"].(string)
	if !pathOk || !contentOk {
		return "", errors.New("missing or invalid 'path' or 'content' arguments")
	}
	if err := checkHidden(path, t.fsAccess); err != nil {
		return "", err
	}

	readOnly, err := isPathRestricted(filepath.ToSlash(filepath.Clean(path)), t.fsAccess.ReadOnly)
	if err != nil {
		return "", err
	}
	if readOnly {
		return "", errors.New("access denied: path '%s' is read-only", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.Wrapf(err, "failed to create directory for '%s'", path)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// ListFilesTool lists the files below a directory, optionally filtered by a
// glob. Hidden paths are left out.
type ListFilesTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "Lists files below a directory. Supports ** glob patterns, e.g. '**/*.go'."
}

func (t *ListFilesTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"path":    stringProperty("Directory to list. Defaults to the working directory."),
		"pattern": stringProperty("Glob pattern relative to path. Defaults to '**'."),
	})
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		pattern = "**"
	}
	if err := checkHidden(root, t.fsAccess); err != nil {
		return "", err
	}

	var files []string
	err := doublestar.GlobWalk(os.DirFS(root), pattern, func(rel string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		full := filepath.ToSlash(filepath.Join(root, rel))
		hidden, err := isPathRestricted(full, t.fsAccess.Hidden)
		if err != nil {
			return err
		}
		if !hidden {
			files = append(files, full)
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to list files in '%s'", root)
	}
	if len(files) == 0 {
		return "No files found.", nil
	}
	return strings.Join(files, "\n"), nil
}

func checkHidden(path string, access *config.FilesystemAccess) error {
	hidden, err := isPathRestricted(filepath.ToSlash(filepath.Clean(path)), access.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
