// Package common provides the CSV codec shared by the pipeline, the map table
// store and the offline commands.
package common

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"

	"github.com/gocarina/gocsv"
)

// DefaultDelimiter is used when no delimiter is configured.
const DefaultDelimiter = ','

// MarshalCSV encodes rows with a header line derived from the csv struct tags.
// An empty slice still produces the header.
func MarshalCSV[TRow any](rows []TRow, delimiter rune) ([]byte, error) {
	if rows == nil {
		rows = []TRow{}
	}
	var buf bytes.Buffer
	csvWriter := csv.NewWriter(&buf)
	csvWriter.Comma = delimiterOrDefault(delimiter)

	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return nil, fmt.Errorf("error writing CSV data: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalCSV decodes CSV data into rows. Empty input yields no rows.
func UnmarshalCSV[TRow any](data []byte, delimiter rune) ([]TRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.Comma = delimiterOrDefault(delimiter)

	var rows []TRow
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing CSV data: %w", err)
	}
	return rows, nil
}

// ReadCSVFile reads CSV data into a slice of structs using gocsv.
func ReadCSVFile[TRow any](filePath string, delimiter rune, logger logging.Logger) ([]TRow, error) {
	logger = logging.Component(logger, "csv")
	logger.Info("Reading CSV file", logging.Field{Key: "file", Value: filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		logger.WithError(err).Error("Failed to open CSV file")
		return nil, fmt.Errorf("error opening CSV file: %w", err)
	}

	rows, err := UnmarshalCSV[TRow](data, delimiter)
	if err != nil {
		logger.WithError(err).Error("Failed to parse CSV file")
		return nil, err
	}

	logger.Info("Successfully read CSV data", logging.Field{Key: logging.FieldCount, Value: len(rows)})
	return rows, nil
}

// WriteCSVFile writes rows to filePath, creating parent directories.
func WriteCSVFile[TRow any](rows []TRow, filePath string, delimiter rune, logger logging.Logger) error {
	logger = logging.Component(logger, "csv")

	data, err := MarshalCSV(rows, delimiter)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal rows to CSV")
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), models.PermissionDirectory); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, models.PermissionFile); err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}

	logger.Info("Successfully wrote CSV file",
		logging.Field{Key: "file", Value: filePath},
		logging.Field{Key: logging.FieldCount, Value: len(rows)})
	return nil
}

// ParseDelimiter returns the first rune of s, or DefaultDelimiter when s is empty.
func ParseDelimiter(s string) rune {
	for _, r := range s {
		return r
	}
	return DefaultDelimiter
}

func delimiterOrDefault(d rune) rune {
	if d == 0 {
		return DefaultDelimiter
	}
	return d
}
