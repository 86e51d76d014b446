// Package gitsnap captures and restores per-project file trees with git.
//
// Snapshots around the execution boundary are best-effort: a failed
// snapshot is logged to the event log and reported as "no snapshot", never
// as an error. Rollback failures do propagate.
//
// Information Hiding:
// - git subprocess invocation and output parsing internal
// - Working-tree layout (one directory per project id) internal
package gitsnap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/notify"
	"github.com/forgeworks/forge/storage"
)

// Store is the persistence surface the snapshot service needs.
type Store interface {
	storage.ProjectStore
	storage.SnapshotStore
	storage.EventStore
}

// Manager runs git against per-project working trees.
type Manager struct {
	store        Store
	events       *notify.Emitter
	projectsPath string
}

// NewManager creates a snapshot manager rooted at projectsPath.
func NewManager(store Store, events *notify.Emitter, projectsPath string) *Manager {
	return &Manager{store: store, events: events, projectsPath: projectsPath}
}

func (m *Manager) projectDir(projectID string) string {
	return filepath.Join(m.projectsPath, projectID)
}

// git runs one git command in dir and returns its combined output.
func (m *Manager) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// EnsureRepo creates the project working tree and initializes a repository
// with an initial commit if none exists yet.
func (m *Manager) EnsureRepo(ctx context.Context, projectID string) error {
	dir := m.projectDir(projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return nil
	}

	if _, err := m.git(ctx, dir, "init"); err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	if _, err := m.git(ctx, dir, "add", "-A"); err != nil {
		return fmt.Errorf("stage initial tree: %w", err)
	}
	if _, err := m.git(ctx, dir, "commit", "--allow-empty", "-m", "[Forge] Initial project setup"); err != nil {
		return fmt.Errorf("create initial commit: %w", err)
	}
	return nil
}

// CreateSnapshot commits the project's pending changes and records the
// snapshot. Returns the commit hash, or "" when the tree is clean or the
// snapshot failed (failure is logged, never propagated).
func (m *Manager) CreateSnapshot(ctx context.Context, projectID, description, operationID string) (string, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return "", fault.NotFound("project", projectID)
	}

	dir := m.projectDir(projectID)
	hash, snapErr := m.commitSnapshot(ctx, dir, description, operationID)
	if snapErr != nil {
		// Best-effort boundary: record the failure and report no snapshot.
		_ = m.store.AppendEvent(ctx, "git.snapshot_failed", operationID, map[string]any{
			"error":       snapErr.Error(),
			"description": description,
		})
		return "", nil
	}
	if hash == "" {
		return "", nil
	}

	snap := model.Snapshot{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		CommitHash:  hash,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.CreateSnapshotRecord(ctx, snap); err != nil {
		return "", fmt.Errorf("record snapshot: %w", err)
	}

	if err := m.store.AppendEvent(ctx, "git.snapshot_created", operationID, map[string]any{
		"snapshotId":  snap.ID,
		"commitHash":  hash,
		"description": description,
	}); err != nil {
		return "", fmt.Errorf("log snapshot: %w", err)
	}

	if m.events != nil {
		m.events.SnapshotCreated(projectID, snap)
	}
	return hash, nil
}

// commitSnapshot stages and commits pending changes. Returns "" with no
// error when there is nothing to commit.
func (m *Manager) commitSnapshot(ctx context.Context, dir, description, operationID string) (string, error) {
	status, err := m.git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", nil
	}

	if _, err := m.git(ctx, dir, "add", "-A"); err != nil {
		return "", err
	}

	message := fmt.Sprintf("[Manual Snapshot] %s", description)
	if operationID != "" {
		message = fmt.Sprintf("[AI Snapshot] %s (Operation: %s)", description, operationID)
	}
	if _, err := m.git(ctx, dir, "commit", "-m", message); err != nil {
		return "", err
	}

	return m.git(ctx, dir, "rev-parse", "HEAD")
}

// Rollback hard-resets the project tree to a recorded snapshot, taking a
// safety snapshot of the current state first.
func (m *Manager) Rollback(ctx context.Context, snapshotID string) error {
	snap, err := m.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return fault.NotFound("snapshot", snapshotID)
	}

	if _, err := m.CreateSnapshot(ctx, snap.ProjectID, "Before rollback to: "+snap.Description, ""); err != nil {
		return err
	}

	dir := m.projectDir(snap.ProjectID)
	if _, err := m.git(ctx, dir, "reset", "--hard", snap.CommitHash); err != nil {
		_ = m.store.AppendEvent(ctx, "git.rollback_failed", "", map[string]any{
			"snapshotId": snapshotID,
			"error":      err.Error(),
		})
		return fmt.Errorf("rollback failed: %w", err)
	}

	if err := m.store.AppendEvent(ctx, "git.rollback_completed", "", map[string]any{
		"snapshotId": snapshotID,
		"commitHash": snap.CommitHash,
	}); err != nil {
		return fmt.Errorf("log rollback: %w", err)
	}

	if m.events != nil {
		m.events.RollbackCompleted(snap.ProjectID, snapshotID, snap.CommitHash)
	}
	return nil
}

// TreeStatus is a summary of a project's working tree.
type TreeStatus struct {
	Branch       string `json:"branch"`
	HasChanges   bool   `json:"has_changes"`
	ChangedFiles int    `json:"changed_files"`
}

// Status reports the project's current branch and pending change count.
func (m *Manager) Status(ctx context.Context, projectID string) (TreeStatus, error) {
	dir := m.projectDir(projectID)

	branch, err := m.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return TreeStatus{}, err
	}

	status, err := m.git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return TreeStatus{}, err
	}

	changed := 0
	if status != "" {
		changed = len(strings.Split(status, "\n"))
	}
	return TreeStatus{Branch: branch, HasChanges: changed > 0, ChangedFiles: changed}, nil
}

// Snapshots returns the project's 50 most recent snapshots.
func (m *Manager) Snapshots(ctx context.Context, projectID string) ([]model.Snapshot, error) {
	return m.store.ListSnapshots(ctx, projectID, 50)
}
