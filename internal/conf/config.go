// config.go: settings struct for the wildset pipeline plus functions to
// load and save them.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings are application-wide options.
type MainSettings struct {
	Name     string `yaml:"name"`     // application name used in logs
	LogLevel string `yaml:"loglevel"` // trace, debug, info, warn, error
	DataDir  string `yaml:"datadir"`  // working directory for pipeline artifacts
}

// SourceSettings configure the observation API client.
type SourceSettings struct {
	BaseURL            string        `yaml:"baseurl"`
	Timeout            time.Duration `yaml:"timeout"`
	RateLimitPerMinute int           `yaml:"ratelimitperminute"`
	CacheTTL           time.Duration `yaml:"cachettl"`
	PerPage            int           `yaml:"perpage"`
	MaxResults         int           `yaml:"maxresults"`
}

// FetchSettings describe which observations to request.
type FetchSettings struct {
	TaxonIDs       []int64 `yaml:"taxonids"`
	PlaceID        int64   `yaml:"placeid"`
	CenterLat      float64 `yaml:"centerlat"`
	CenterLon      float64 `yaml:"centerlon"`
	RadiusKM       float64 `yaml:"radiuskm"`
	QualityGrade   string  `yaml:"qualitygrade"`
	ObservedAfter  string  `yaml:"observedafter"`
	ObservedBefore string  `yaml:"observedbefore"`
}

// DedupSettings configure duplicate detection.
type DedupSettings struct {
	SpatialThresholdM     float64 `yaml:"spatialthresholdm"`
	TemporalThresholdDays float64 `yaml:"temporalthresholddays"`
	MinClusterSize        int     `yaml:"minclustersize"`
}

// SelectionSettings configure representative sample selection.
type SelectionSettings struct {
	Method           string `yaml:"method"` // quality, clustering, stratified, random
	TargetPerSpecies int    `yaml:"targetperspecies"`
	MinPerSpecies    int    `yaml:"minperspecies"`
	Balance          bool   `yaml:"balance"`
	Seed             int64  `yaml:"seed"` // 0 leaves the selector unseeded
}

// QualitySettings configure quality score attachment.
type QualitySettings struct {
	SidecarSuffix string `yaml:"sidecarsuffix"`
	Workers       int    `yaml:"workers"`
}

// DownloadSettings configure photo downloading.
type DownloadSettings struct {
	Dir     string        `yaml:"dir"` // empty means <datadir>/images
	Workers int           `yaml:"workers"`
	Size    string        `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreSettings configure the persistent page cache.
type StoreSettings struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"` // empty means <datadir>/cache.db
	MaxAge  time.Duration `yaml:"maxage"`
}

// OutputSettings configure dataset assembly.
type OutputSettings struct {
	Dir string `yaml:"dir"` // empty means <datadir>/dataset
}

// TelemetrySettings configure optional error reporting.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings is the full configuration tree.
type Settings struct {
	Debug bool `yaml:"debug"`

	Main      MainSettings      `yaml:"main"`
	Source    SourceSettings    `yaml:"source"`
	Fetch     FetchSettings     `yaml:"fetch"`
	Dedup     DedupSettings     `yaml:"dedup"`
	Selection SelectionSettings `yaml:"selection"`
	Quality   QualitySettings   `yaml:"quality"`
	Download  DownloadSettings  `yaml:"download"`
	Store     StoreSettings     `yaml:"store"`
	Output    OutputSettings    `yaml:"output"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

// ImageDir resolves the photo download directory.
func (s *Settings) ImageDir() string {
	if s.Download.Dir != "" {
		return s.Download.Dir
	}
	return filepath.Join(s.Main.DataDir, "images")
}

// StorePath resolves the page cache database path.
func (s *Settings) StorePath() string {
	if s.Store.Path != "" {
		return s.Store.Path
	}
	return filepath.Join(s.Main.DataDir, "cache.db")
}

// DatasetDir resolves the dataset output directory.
func (s *Settings) DatasetDir() string {
	if s.Output.Dir != "" {
		return s.Output.Dir
	}
	return filepath.Join(s.Main.DataDir, "dataset")
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings struct.
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

	// Defaults defined in defaults.go
	setDefaultConfig()

	// Environment variables override values from the config file
	if err := configureEnvironmentVariables(); err != nil {
		return fmt.Errorf("error configuring environment variables: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create one with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// GetDefaultConfigPaths returns the configuration search paths for the
// current operating system. If a config.yaml already exists in one of them,
// only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error getting executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "wildset"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "wildset"),
			"/etc/wildset",
		}
	}

	for _, path := range configPaths {
		configFile := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFile); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the active configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.New("config file not found")
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig overwrites the configuration file with the given settings.
// Comments and ordering of the original file are not preserved.
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
	tempFileName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempFileName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempFileName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		_ = os.Remove(tempFileName)
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
