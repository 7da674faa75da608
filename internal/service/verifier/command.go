package verifier

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/systemml/systemml-stager/internal/domain/layout"
	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/repository/manifest"
	"github.com/systemml/systemml-stager/internal/service/stager"
)

var (
	// ErrVerificationFailed is returned when the staged files differ from the manifest.
	ErrVerificationFailed = errors.New("staged files differ from manifest")
	// errManifestDisabled is returned when no manifest path is configured.
	errManifestDisabled = errors.New("manifest is disabled, nothing to verify against")
)

// Report lists the differences between the staging directories and the manifest.
// Paths are slash-separated and relative to the package directory.
type Report struct {
	// RunID is the run the manifest belongs to.
	RunID string
	// Checked is the number of staged files inspected.
	Checked int
	// Missing are files in the manifest that are no longer staged.
	Missing []string
	// Modified are staged files whose checksum changed.
	Modified []string
	// Unexpected are staged files the manifest does not know.
	Unexpected []string
}

// OK reports whether the staging directories match the manifest.
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Modified) == 0 && len(r.Unexpected) == 0
}

// Run loads the layout and verifies the staged files.
func Run(ctx context.Context, opts *stager.Options) error {
	ctx = logger.WithName(ctx, "verifier")

	_, l, err := stager.LoadLayout(ctx, opts)
	if err != nil {
		return err
	}

	report, err := Verify(ctx, l)
	if err != nil {
		return err
	}

	for _, rel := range report.Missing {
		logger.ErrorKV(ctx, "Staged file missing", "path", rel)
	}

	for _, rel := range report.Modified {
		logger.ErrorKV(ctx, "Staged file modified", "path", rel)
	}

	for _, rel := range report.Unexpected {
		logger.ErrorKV(ctx, "Unexpected staged file", "path", rel)
	}

	if !report.OK() {
		return fmt.Errorf("%w: %d missing, %d modified, %d unexpected",
			ErrVerificationFailed, len(report.Missing), len(report.Modified), len(report.Unexpected))
	}

	logger.InfoKV(ctx, "Staged files match manifest", "run_id", report.RunID, "files", report.Checked)

	return nil
}

// Verify compares the staging directories of l with its manifest.
func Verify(ctx context.Context, l *layout.Layout) (*Report, error) {
	if l.ManifestPath == "" {
		return nil, errManifestDisabled
	}

	m, err := manifest.NewFileRepository(l.ManifestPath).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	report := &Report{RunID: m.RunID}
	seen := make(map[string]struct{}, len(m.Files))

	err = stager.Collect(l, func(rel, path string) error {
		report.Checked++
		seen[rel] = struct{}{}

		want, ok := m.Files[rel]
		if !ok {
			report.Unexpected = append(report.Unexpected, rel)
			return nil
		}

		got, err := manifest.EncodedChecksum(path)
		if err != nil {
			return err
		}

		if got != want {
			report.Modified = append(report.Modified, rel)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for rel := range m.Files {
		if _, ok := seen[rel]; !ok {
			report.Missing = append(report.Missing, rel)
		}
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Modified)
	sort.Strings(report.Unexpected)

	return report, nil
}
