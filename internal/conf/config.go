// config.go: settings struct and functions to load and save the application
// configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RotationType defines the log rotation strategy.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // path to log file
	Rotation    RotationType // rotation type
	MaxSize     int64        // max size in bytes for RotationSize
	RotationDay string       // day of the week for RotationWeekly
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    // name of this node, included in logs and track records
	Log  LogConfig // main log settings
}

// SQLiteSettings contains settings for the SQLite database output.
type SQLiteSettings struct {
	Enabled bool   // true to enable sqlite output
	Path    string // path to sqlite database file
}

// MySQLSettings contains settings for the MySQL database output.
type MySQLSettings struct {
	Enabled  bool   // true to enable mysql output
	Username string // mysql username
	Password string // mysql password
	Database string // mysql database name
	Host     string // mysql host
	Port     string // mysql port
}

// OutputSettings contains the persistence backends.
type OutputSettings struct {
	SQLite SQLiteSettings // sqlite settings
	MySQL  MySQLSettings  // mysql settings
}

// GroupingSettings tunes the pending-review grouper.
type GroupingSettings struct {
	IoUThreshold   float64 // minimum IoU for two detections to share a group
	CentroidFactor float64 // centroid-distance fallback, fraction of average box dimension
}

// TrajectorySettings tunes the per-clip trajectory tracker.
type TrajectorySettings struct {
	MinPoints        int     // discard tracker candidates with fewer observations
	BaselinePoints   int     // points used to establish the baseline area
	MergeMaxGap      float64 // max seconds between fragments for merging
	MergeOverlap     float64 // tolerated fragment overlap in seconds
	MergeMaxDistance float64 // max px between extrapolated and observed position
	TrailingGap      float64 // seconds before clip end that trigger trailing gap fill
	InternalGap      float64 // seconds between points that trigger internal gap fill
	FrameBudget      int     // max re-detection frames per trajectory
	SampleStride     float64 // seconds between sampled gap-fill frames
	RedetectMinConf  float64 // confidence threshold for gap-fill re-detection
}

// TrackSettings tunes the cross-status track builder.
type TrackSettings struct {
	IoUThreshold  float64           // minimum IoU against a track's running-average box
	Profiles      map[string]string // camera id -> adjacency profile name
	Windows       map[string]int    // adjacency profile name -> window in seconds
	DefaultWindow int               // adjacency window in seconds for unprofiled cameras
	CacheTTL      int               // track aggregate cache TTL in seconds
}

// AdjacencyWindow returns the temporal-adjacency window in seconds for the
// given camera.
func (t *TrackSettings) AdjacencyWindow(cameraID string) int {
	if profile, ok := t.Profiles[cameraID]; ok {
		if window, ok := t.Windows[profile]; ok {
			return window
		}
	}
	return t.DefaultWindow
}

// ConsolidationSettings groups the tunables for all consolidation passes.
type ConsolidationSettings struct {
	Grouping   GroupingSettings   // pending-review grouper settings
	Trajectory TrajectorySettings // trajectory tracker settings
	Tracks     TrackSettings      // cross-status track builder settings
}

// Settings is the root configuration struct.
type Settings struct {
	Debug bool // true to enable debug level logging

	Main          MainSettings
	Output        OutputSettings
	Consolidation ConsolidationSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the default configuration to the first default
// config path so later runs have a file to edit.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(configPaths[0], 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}

	if err := SaveYAMLConfig(configPath, settings); err != nil {
		return fmt.Errorf("error writing default config: %w", err)
	}

	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first for an atomic replace
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the candidate configuration directories,
// current working directory first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting user home directory: %w", err)
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "groundtruth"),
	}, nil
}

// GetBasePath resolves a possibly relative directory against the working
// directory and ensures it exists.
func GetBasePath(path string) string {
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Printf("Failed to create directory %s: %v", path, err)
	}
	return path
}
