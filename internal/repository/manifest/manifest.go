package manifest

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// ChecksumFunction is used to calculate staged file hashes.
const ChecksumFunction crypto.Hash = crypto.SHA512

var errHashUnavailable = errors.New("hash function unavailable")

// Actor identifies who ran the stager.
type Actor struct {
	// Hostname is the machine the run happened on.
	Hostname string `yaml:"hostname"`
	// Username is the system user who ran the stager.
	Username string `yaml:"username"`
}

// Manifest describes the result of one staging run.
type Manifest struct {
	// RunID uniquely identifies the run.
	RunID string `yaml:"run_id"`
	// StagerVersion is the version of the binary that produced the manifest.
	StagerVersion string `yaml:"stager_version"`
	// StagedAt is the UTC completion time of the run.
	StagedAt time.Time `yaml:"staged_at"`
	// StagedBy is the actor that ran the stager. Optional.
	StagedBy *Actor `yaml:"staged_by,omitempty"`
	// SourceRevision is the git HEAD of the root, empty outside a work tree.
	SourceRevision string `yaml:"source_revision,omitempty"`
	// Root is the project root the run read from.
	Root string `yaml:"root"`
	// Files maps slash-separated paths relative to the package directory to
	// base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// New returns an empty manifest for the given run.
func New(runID, stagerVersion string) *Manifest {
	return &Manifest{
		RunID:         runID,
		StagerVersion: stagerVersion,
		Files:         make(map[string]string),
	}
}

// Add records the checksum of the file at path under the key rel.
func (m *Manifest) Add(rel, path string) error {
	sum, err := FileChecksum(path)
	if err != nil {
		return err
	}

	m.Files[filepath.ToSlash(rel)] = base64.StdEncoding.EncodeToString(sum)

	return nil
}

// FileChecksum returns checksum bytes for a file using ChecksumFunction.
func FileChecksum(path string) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := ChecksumFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate checksum of %s: %w", path, err)
	}

	return hasher.Sum(nil), nil
}

// EncodedChecksum returns FileChecksum in the manifest's base64 form.
func EncodedChecksum(path string) (string, error) {
	sum, err := FileChecksum(path)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sum), nil
}
