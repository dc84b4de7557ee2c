package validation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/validation"
)

func TestIsValidInputFile(t *testing.T) {
	tmpDir := t.TempDir()
	jsonFile := filepath.Join(tmpDir, "taxi_raw_2024-02-01.json")
	assert.NoError(t, os.WriteFile(jsonFile, []byte("[]"), 0600))
	txtFile := filepath.Join(tmpDir, "notes.txt")
	assert.NoError(t, os.WriteFile(txtFile, []byte("x"), 0600))

	tests := []struct {
		name        string
		path        string
		expectError bool
		errContains string
	}{
		{
			name: "Valid JSON file",
			path: jsonFile,
		},
		{
			name:        "Non-existent path",
			path:        filepath.Join(tmpDir, "missing.json"),
			expectError: true,
			errContains: "path does not exist",
		},
		{
			name:        "Directory",
			path:        tmpDir,
			expectError: true,
			errContains: "not a regular file",
		},
		{
			name:        "Unsupported extension",
			path:        txtFile,
			expectError: true,
			errContains: "expected .json or .csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.IsValidInputFile(tt.path, validation.TripsFileExtensions...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsValidOutputFormat(t *testing.T) {
	assert.NoError(t, validation.IsValidOutputFormat("yaml", "json", "yaml", "xlsx"))

	err := validation.IsValidOutputFormat("xml", "json", "yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "json, yaml")
}

func TestIsValidTableName(t *testing.T) {
	assert.NoError(t, validation.IsValidTableName(models.TablePaymentType))
	assert.NoError(t, validation.IsValidTableName(models.TableCompany))
	assert.Error(t, validation.IsValidTableName("pickup_area"))
}

func TestIsValidFilePermissions(t *testing.T) {
	tests := []struct {
		name        string
		mode        os.FileMode
		expectError bool
	}{
		{"owner only", 0600, false},
		{"group read", 0640, false},
		{"world readable", 0644, true},
		{"world writable", 0777, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.IsValidFilePermissions(tt.mode)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
