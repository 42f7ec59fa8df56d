// Package artifact is the filesystem-backed artifact store. Every job owns
// a directory of blobs plus a manifest.json listing them.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kalambet/specwright/internal/contract"
)

// ManifestName is the per-job artifact index file.
const ManifestName = "manifest.json"

// FS stores artifacts under root/<jobID>/. Saves are atomic: content is
// written to a temp file in the job directory, then renamed into place.
type FS struct {
	root string

	// Serializes manifest read-modify-write cycles.
	mu sync.Mutex
}

// NewFS opens (creating if needed) an artifact root directory.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &contract.StorageError{Op: "creating artifact root", Err: err}
	}
	return &FS{root: root}, nil
}

func (s *FS) jobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func validFilename(filename string) error {
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "\\") || filename == "." || filename == ".." {
		return fmt.Errorf("invalid artifact filename %q", filename)
	}
	return nil
}

// SaveBytes writes a blob under the job's directory and returns its path.
func (s *FS) SaveBytes(jobID, filename string, data []byte) (string, error) {
	if err := validFilename(filename); err != nil {
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}

	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filename+".tmp-*")
	if err != nil {
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}

	dst := filepath.Join(dir, filename)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}
	return dst, nil
}

// SaveJSON marshals v (indented, stable field order) and saves it as a blob.
func (s *FS) SaveJSON(jobID, filename string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", &contract.StorageError{Op: "save " + filename, Err: err}
	}
	return s.SaveBytes(jobID, filename, append(data, '\n'))
}

// LoadBytes reads a blob back. A missing artifact satisfies
// errors.Is(err, fs.ErrNotExist).
func (s *FS) LoadBytes(jobID, filename string) ([]byte, error) {
	if err := validFilename(filename); err != nil {
		return nil, &contract.StorageError{Op: "load " + filename, Err: err}
	}
	data, err := os.ReadFile(filepath.Join(s.jobDir(jobID), filename))
	if err != nil {
		return nil, &contract.StorageError{Op: "load " + filename, Err: err}
	}
	return data, nil
}

// LoadJSON reads a blob and unmarshals it into v.
func (s *FS) LoadJSON(jobID, filename string, v any) error {
	data, err := s.LoadBytes(jobID, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &contract.StorageError{Op: "load " + filename, Err: err}
	}
	return nil
}

// Manifest returns the job's artifact records. A job with no manifest yields
// an empty slice.
func (s *FS) Manifest(jobID string) ([]contract.ArtifactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readManifest(jobID)
}

func (s *FS) readManifest(jobID string) ([]contract.ArtifactRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.jobDir(jobID), ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return []contract.ArtifactRecord{}, nil
	}
	if err != nil {
		return nil, &contract.StorageError{Op: "read manifest", Err: err}
	}
	var records []contract.ArtifactRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &contract.StorageError{Op: "read manifest", Err: err}
	}
	return records, nil
}

// AppendManifest adds records to the job's manifest, replacing any existing
// record with the same name so re-saves never duplicate entries.
func (s *FS) AppendManifest(jobID string, records ...contract.ArtifactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readManifest(jobID)
	if err != nil {
		return err
	}

	for _, r := range records {
		replaced := false
		for i := range existing {
			if existing[i].Name == r.Name {
				existing[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, r)
		}
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return &contract.StorageError{Op: "write manifest", Err: err}
	}
	if _, err := s.SaveBytes(jobID, ManifestName, append(data, '\n')); err != nil {
		return err
	}
	return nil
}
