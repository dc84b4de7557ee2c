// Package validation checks command-line inputs before any work starts.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"dzs/taxi-etl/internal/models"
)

// TripsFileExtensions are the input formats of an offline reconciliation.
var TripsFileExtensions = []string{".json", ".csv"}

// IsValidInputFile checks that path is an existing regular file whose
// extension is one of extensions.
func IsValidInputFile(path string, extensions ...string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("error checking path %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path %s is not a regular file", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if len(extensions) > 0 && !slices.Contains(extensions, ext) {
		return fmt.Errorf("unsupported input file %s: expected %s", path, strings.Join(extensions, " or "))
	}
	return nil
}

// IsValidOutputFormat checks that format is one of supported.
func IsValidOutputFormat(format string, supported ...string) error {
	if slices.Contains(supported, format) {
		return nil
	}
	return fmt.Errorf("unsupported output format: %s. Supported formats are %s", format, strings.Join(supported, ", "))
}

// IsValidTableName checks that name is a known map table.
func IsValidTableName(name string) error {
	switch name {
	case models.TablePaymentType, models.TableCompany:
		return nil
	default:
		return fmt.Errorf("unknown map table: %s", name)
	}
}

// IsValidFilePermissions checks that others have no access to mode.
func IsValidFilePermissions(mode os.FileMode) error {
	if mode&0007 != 0 {
		return fmt.Errorf("file permissions are too permissive: %s. Recommended 0600 or 0640", mode.String())
	}
	return nil
}
