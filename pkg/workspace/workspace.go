package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

const (
	// DefaultWorkspacesPath is the base directory for task workspaces
	DefaultWorkspacesPath = "/var/lib/openclaw/workspaces"

	// MaxDeliverableFileBytes caps a single collected file
	MaxDeliverableFileBytes = 50 * 1024

	// MaxDeliverableTotalBytes caps the whole deliverable set
	MaxDeliverableTotalBytes = 200 * 1024
)

// Directories never collected as deliverables
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".openclaw":    true,
	"__pycache__":  true,
	".cache":       true,
	".npm":         true,
}

// Files never collected as deliverables
var skipFiles = map[string]bool{
	"result.json":       true,
	"AGENTS.md":         true,
	"SOUL.md":           true,
	"package-lock.json": true,
}

// Manager hands out per-task workspace directories. A workspace persists
// across iterations of the same task so files written in iteration k are
// visible in iteration k+1.
type Manager struct {
	basePath string
}

// NewManager creates a workspace manager rooted at basePath
func NewManager(basePath string) (*Manager, error) {
	if basePath == "" {
		basePath = DefaultWorkspacesPath
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspaces directory: %w", err)
	}

	return &Manager{basePath: basePath}, nil
}

// Path returns the host path for a workspace
func (m *Manager) Path(workspaceID string) string {
	return filepath.Join(m.basePath, workspaceID)
}

// Ensure creates the workspace directory if missing and returns its path.
// The agent runs as an arbitrary uid inside its container, so the
// directory is world-writable.
func (m *Manager) Ensure(workspaceID string) (string, error) {
	path := m.Path(workspaceID)
	if err := os.MkdirAll(path, 0777); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", workspaceID, err)
	}
	// MkdirAll applies umask; force the mode
	if err := os.Chmod(path, 0777); err != nil {
		return "", fmt.Errorf("failed to chmod workspace %s: %w", workspaceID, err)
	}
	return path, nil
}

// Delete removes a workspace and all its contents
func (m *Manager) Delete(workspaceID string) error {
	path := m.Path(workspaceID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", workspaceID, err)
	}
	return nil
}

// ListFiles returns workspace-relative paths of all regular files, skipping
// the directories and files excluded from deliverables. Used for the
// continuation preamble.
func (m *Manager) ListFiles(workspaceID string) ([]string, error) {
	root := m.Path(workspaceID)
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if skipFiles[info.Name()] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace %s: %w", workspaceID, err)
	}

	sort.Strings(files)
	return files, nil
}

// CollectDeliverables reads workspace files into a name -> content map,
// capped per file and in total, skipping binaries and scratch files
func (m *Manager) CollectDeliverables(workspaceID string) (map[string]string, error) {
	files, err := m.ListFiles(workspaceID)
	if err != nil {
		return nil, err
	}

	root := m.Path(workspaceID)
	deliverables := make(map[string]string)
	total := 0

	for _, rel := range files {
		if total >= MaxDeliverableTotalBytes {
			break
		}

		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			continue
		}
		if len(data) > MaxDeliverableFileBytes {
			data = data[:MaxDeliverableFileBytes]
		}
		if !utf8.Valid(data) {
			continue
		}

		deliverables[rel] = string(data)
		total += len(data)
	}

	return deliverables, nil
}
