// Package validation checks the data directories before a run starts. A
// missing raw file surfaces here as one aggregate error instead of a parser
// failure deep inside the clean stage.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileValidator checks raw inputs and artifact destinations for a run.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator.
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateRawDir verifies that dir exists and that every named file in it is
// present, readable, and non-empty. All unusable files are reported in one
// error so a partial cache can be repaired in a single pass.
func (v *FileValidator) ValidateRawDir(dir string, files []string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("raw directory does not exist",
			slog.String("directory", dir))
		return fmt.Errorf("raw directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("stat raw directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		v.logger.Error("raw path is not a directory",
			slog.String("path", dir))
		return fmt.Errorf("%s is not a directory", dir)
	}

	var missing []string
	for _, name := range files {
		if err := v.ValidateFile(filepath.Join(dir, name)); err != nil {
			v.logger.Error("raw file failed validation",
				slog.String("file", name),
				slog.String("error", err.Error()))
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("raw directory %s is missing usable files: %s",
			dir, strings.Join(missing, ", "))
	}

	v.logger.Info("raw directory validated",
		slog.String("directory", dir),
		slog.Int("files", len(files)))
	return nil
}

// ValidateFile checks that a path names a readable, non-empty regular file.
// A zero-byte file counts as unusable: an interrupted fetch can leave one
// behind, and every parser downstream would misread it as a schema change.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	f.Close()
	return nil
}

// ValidateOutputDirectory ensures the artifact directory exists and is
// writable before any stage produces output.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("cannot create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write_test")
	f, err := os.Create(probe)
	if err != nil {
		v.logger.Error("output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)

	v.logger.Debug("output directory validated",
		slog.String("directory", dir))
	return nil
}
