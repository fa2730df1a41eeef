package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ultralytics/stars/internal/model"
)

// ReadJSON loads a previously written snapshot. A missing, empty or
// malformed file yields the zero document and false.
func ReadJSON[T any](path string) (T, bool) {
	var doc T
	data, err := os.ReadFile(path)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return doc, false
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		var zero T
		return zero, false
	}
	return doc, true
}

// EncodeJSON renders v as compact JSON with a trailing newline, without
// HTML escaping so non-ASCII and markup characters are kept verbatim.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteJSON writes v to path, creating parent directories. The file is
// replaced atomically so readers never observe a truncated snapshot.
func WriteJSON(path string, v any) error {
	data, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// exportJSON writes a snapshot and reports the outcome
func exportJSON(path string, v any, records int) (model.ExportResult, error) {
	err := WriteJSON(path, v)
	result := model.ExportResult{
		Type:        "json",
		Path:        path,
		RecordCount: records,
		Success:     err == nil,
		Timestamp:   time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result, err
}

// usersCSVHeader is the column layout of the stargazer export
var usersCSVHeader = []string{"", "Repo", "Name", "Company", "Email", "Location", "GitHub", "Followers", "Date"}

// WriteStargazersCSV exports stargazers with a public email to path
func WriteStargazersCSV(path string, users []model.Stargazer) (model.ExportResult, error) {
	result := model.ExportResult{Type: "csv", Path: path, Timestamp: time.Now()}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(usersCSVHeader); err != nil {
		return result, fmt.Errorf("failed to write header: %w", err)
	}
	for i, u := range users {
		row := []string{
			strconv.Itoa(i),
			u.Repo,
			u.Name,
			u.Company,
			u.Email,
			u.Location,
			u.HTMLURL,
			strconv.Itoa(u.Followers),
			u.StarredAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := writer.Write(row); err != nil {
			return result, fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return result, fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.RecordCount = len(users)
	result.Success = true
	return result, nil
}
