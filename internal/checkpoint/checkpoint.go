// Package checkpoint persists per-job progress snapshots as JSON files so an
// interrupted run can resume without redoing completed rows.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal"
)

// Checkpoint is the on-disk snapshot. CompletedRows and Results always match
// one to one: every listed row has exactly one result and vice versa.
type Checkpoint struct {
	JobID         string                   `json:"job_id"`
	Timestamp     time.Time                `json:"timestamp"`
	CompletedRows []int                    `json:"completed_rows"`
	Results       []internal.ProcessedItem `json:"results"`
}

const fileSuffix = "_checkpoint.json"

type Store struct {
	dir string
	log *zap.SugaredLogger
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir, log: zap.S()}, nil
}

// Path returns the checkpoint file path for a job id (the input file stem).
func (s *Store) Path(jobID string) string {
	return filepath.Join(s.dir, jobID+fileSuffix)
}

// Save overwrites the full snapshot for the job. The write goes through a
// temp file and a rename so an abrupt termination mid-write can never leave
// a half-written snapshot behind.
func (s *Store) Save(jobID string, completedRows map[int]bool, results []internal.ProcessedItem) error {
	rows := make([]int, 0, len(completedRows))
	for row := range completedRows {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	data, err := json.MarshalIndent(Checkpoint{
		JobID:         jobID,
		Timestamp:     time.Now(),
		CompletedRows: rows,
		Results:       results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := s.Path(jobID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load returns the snapshot for a job, or nil when there is none. A file
// that fails to parse degrades to "no checkpoint found" rather than an
// error: a corrupt snapshot should never block a fresh run.
func (s *Store) Load(jobID string) *Checkpoint {
	data, err := os.ReadFile(s.Path(jobID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnw("failed to read checkpoint", "job", jobID, "error", err)
		}
		return nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.log.Warnw("failed to parse checkpoint, ignoring it", "job", jobID, "error", err)
		return nil
	}
	return &cp
}

// Delete removes the snapshot for a job. Deleting a snapshot that does not
// exist is not an error.
func (s *Store) Delete(jobID string) error {
	err := os.Remove(s.Path(jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Info describes one stored checkpoint for listings.
type Info struct {
	JobID     string
	Timestamp time.Time
	Rows      int
	Path      string
}

// List returns the checkpoints currently on disk, newest first. Files that
// fail to parse are skipped.
func (s *Store) List() ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, path := range matches {
		jobID := strings.TrimSuffix(filepath.Base(path), fileSuffix)
		cp := s.Load(jobID)
		if cp == nil {
			continue
		}
		infos = append(infos, Info{
			JobID:     cp.JobID,
			Timestamp: cp.Timestamp,
			Rows:      len(cp.CompletedRows),
			Path:      path,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.After(infos[j].Timestamp) })
	return infos, nil
}
