package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot file names under the data directory
const (
	GitHubFile    = "github.json"
	PyPIFile      = "pypi.json"
	AnalyticsFile = "google_analytics.json"
	RedditFile    = "reddit.json"
	SummaryFile   = "summary.json"
	OrgStarsFile  = "org_stars.json"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	if baseOutputDir == "" {
		baseOutputDir = "data"
	}
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// Path returns the full path for a snapshot file
func (om *OutputManager) Path(fileName string) string {
	// Clean the filename to remove any path separators
	return filepath.Join(om.BaseOutputDir, filepath.Base(fileName))
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	if err := os.MkdirAll(om.BaseOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
