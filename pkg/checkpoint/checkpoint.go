package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"igsync/pkg/logger"
)

// Checkpoint is the progress of one sync cycle
type Checkpoint struct {
	CycleID   string               `json:"cycle_id"`
	BaseID    string               `json:"base_id"`
	Completed map[string]time.Time `json:"completed"` // record ID -> finished at
	Failed    map[string]string    `json:"failed"`    // record ID -> error kind
	// Snapshotted is set once the Previous Views/Followers copy has run
	Snapshotted bool      `json:"snapshotted"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

// Manager handles checkpoint operations
type Manager struct {
	checkpointPath string
	logger         logger.Logger
	now            func() time.Time
}

// NewManager creates a manager for the base's checkpoint file. An empty dir
// uses the platform data directory.
func NewManager(dir, baseID string) (*Manager, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	name := baseID
	if name == "" {
		name = "default"
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", name)),
		logger:         logger.GetLogger(),
		now:            time.Now,
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint for cycleID, replacing any existing one
func (m *Manager) Create(cycleID, baseID string) (*Checkpoint, error) {
	now := m.now()
	checkpoint := &Checkpoint{
		CycleID:   cycleID,
		BaseID:    baseID,
		Completed: make(map[string]time.Time),
		Failed:    make(map[string]string),
		StartedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"cycle_id": cycleID,
		"path":     m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint. It returns nil, nil when there is none.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Completed == nil {
		checkpoint.Completed = make(map[string]time.Time)
	}
	if checkpoint.Failed == nil {
		checkpoint.Failed = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"cycle_id":   checkpoint.CycleID,
		"completed":  len(checkpoint.Completed),
		"updated_at": checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = m.now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"cycle_id":  checkpoint.CycleID,
		"completed": len(checkpoint.Completed),
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// MarkCompleted records that the account row finished in this cycle
func (m *Manager) MarkCompleted(checkpoint *Checkpoint, recordID string) error {
	checkpoint.Completed[recordID] = m.now()
	delete(checkpoint.Failed, recordID)
	return m.Save(checkpoint)
}

// MarkFailed records an account that failed; it is retried on resume
func (m *Manager) MarkFailed(checkpoint *Checkpoint, recordID, kind string) error {
	checkpoint.Failed[recordID] = kind
	return m.Save(checkpoint)
}

// MarkSnapshotted records that the cycle's history snapshot completed
func (m *Manager) MarkSnapshotted(checkpoint *Checkpoint) error {
	checkpoint.Snapshotted = true
	return m.Save(checkpoint)
}

// IsCompleted checks if the account row already finished in this cycle
func (checkpoint *Checkpoint) IsCompleted(recordID string) bool {
	_, exists := checkpoint.Completed[recordID]
	return exists
}

// Info returns a summary of the stored checkpoint, or nil if there is none
func (m *Manager) Info() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"cycle_id":   checkpoint.CycleID,
		"completed":  len(checkpoint.Completed),
		"failed":     len(checkpoint.Failed),
		"started_at": checkpoint.StartedAt,
		"updated_at": checkpoint.UpdatedAt,
		"age":        m.now().Sub(checkpoint.UpdatedAt),
	}, nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igsync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igsync")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igsync")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igsync")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
