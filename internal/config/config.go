package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the staging layout and runtime options.
type Config struct {
	// RootDir is the project root. Empty means RootDepth levels above the working directory.
	RootDir string `yaml:"root_dir,omitempty"`
	// RootDepth is how many directories to climb from the working directory to reach the root.
	RootDepth int `yaml:"root_depth"`
	// PackageDir is the destination package root, relative to the working directory.
	PackageDir string `yaml:"package_dir"`
	// JavaDir is the name of the compiled-artifact staging directory inside PackageDir.
	JavaDir string `yaml:"java_dir"`
	// CppDir is the name of the native-source staging directory inside PackageDir.
	CppDir string `yaml:"cpp_dir"`
	// BuildOutputDir is the build-output directory relative to the root.
	BuildOutputDir string `yaml:"build_output_dir"`
	// ArchivePattern is the shell glob used to pick archives from BuildOutputDir.
	ArchivePattern string `yaml:"archive_pattern"`
	// ScriptsDir is the scripts tree relative to the root.
	ScriptsDir string `yaml:"scripts_dir"`
	// NativeSourceDir holds the native files relative to the root.
	NativeSourceDir string `yaml:"native_source_dir"`
	// NativeFiles are the file names copied from NativeSourceDir.
	NativeFiles []string `yaml:"native_files"`
	// ManifestFile is the manifest name inside PackageDir. Empty disables the manifest.
	ManifestFile string `yaml:"manifest_file"`
	// MetricsFile is the Prometheus textfile path. Empty disables metrics output.
	MetricsFile string `yaml:"metrics_file,omitempty"`
	// WatchDebounce is the quiet period before the watcher restages.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for stager settings.
	DefaultConfigFilename = "systemml-stager.yaml"

	// DefaultRootDepth is the distance from the python source dir to the project root.
	DefaultRootDepth = 3

	// DefaultPackageDir is the package root the staging dirs live in.
	DefaultPackageDir = "systemml"

	// DefaultJavaDir is the compiled-artifact staging directory name.
	DefaultJavaDir = "systemml-java"

	// DefaultCppDir is the native-source staging directory name.
	DefaultCppDir = "systemml-cpp"

	// DefaultBuildOutputDir is where the upstream build leaves its archives.
	DefaultBuildOutputDir = "target"

	// DefaultArchivePattern matches the snapshot archive produced by the build.
	DefaultArchivePattern = "systemml-*-incubating-SNAPSHOT.jar"

	// DefaultScriptsDir is the scripts tree shipped with the archive.
	DefaultScriptsDir = "scripts"

	// DefaultManifestFile is the manifest written next to the staging dirs.
	// It is hidden so package-data globs over the package dir skip it.
	DefaultManifestFile = ".systemml-stage.yaml"

	// DefaultWatchDebounce is the quiet period before a watch-triggered restage.
	DefaultWatchDebounce = time.Second

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the permission for files written by the stager.
	DefaultFilePermissions = 0o644

	// DefaultEnvFilename is the optional dotenv file read before env overrides.
	DefaultEnvFilename = ".env"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvRootDir    = "SYSTEMML_STAGER_ROOT_DIR"
	EnvPackageDir = "SYSTEMML_STAGER_PACKAGE_DIR"
	EnvLogLevel   = "SYSTEMML_STAGER_LOG_LEVEL"
	EnvRootDepth  = "SYSTEMML_STAGER_ROOT_DEPTH"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errEmptyName is returned when a staging directory name is blank.
	errEmptyName = errors.New("staging directory name must not be empty")
	// errNestedName is returned when a staging directory name is not a single path element.
	errNestedName = errors.New("staging directory name must be a single path element")
	// errNoNativeFiles is returned when the native file list is empty.
	errNoNativeFiles = errors.New("at least one native file must be configured")
	// errNegativeDepth is returned for a negative root depth.
	errNegativeDepth = errors.New("root depth must not be negative")
)

// DefaultNativeFiles returns the native source, header and build-config names.
func DefaultNativeFiles() []string {
	return []string{"systemml.cpp", "systemml.h", "CMakeLists.txt"}
}

// DefaultNativeSourceDir returns the native source directory relative to the root.
func DefaultNativeSourceDir() string {
	return filepath.Join("src", "main", "cpp")
}

// Default returns a configuration populated with the historical layout.
func Default() *Config {
	cfg := preset()
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default path yields the defaults; a missing file at an
// explicitly requested path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := preset()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFilename
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

// ApplyEnv overrides cfg with SYSTEMML_STAGER_* variables found in the environment.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if v, ok := os.LookupEnv(EnvRootDir); ok && v != "" {
		cfg.RootDir = v
	}

	if v, ok := os.LookupEnv(EnvPackageDir); ok && v != "" {
		cfg.PackageDir = v
	}

	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}

	if v, ok := os.LookupEnv(EnvRootDepth); ok && v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvRootDepth, err)
		}

		cfg.RootDepth = depth
	}

	return Validate(cfg)
}

// Validate fills defaults for unset fields and checks the remaining values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.RootDepth < 0 {
		return errNegativeDepth
	}

	applyDefaults(cfg)

	for _, name := range []string{cfg.JavaDir, cfg.CppDir} {
		if err := validateDirName(name); err != nil {
			return fmt.Errorf("invalid staging directory %q: %w", name, err)
		}
	}

	if _, err := filepath.Match(cfg.ArchivePattern, ""); err != nil {
		return fmt.Errorf("invalid archive pattern %q: %w", cfg.ArchivePattern, err)
	}

	if len(cfg.NativeFiles) == 0 {
		return errNoNativeFiles
	}

	return nil
}

// preset returns the values a YAML document may override but which have a
// meaningful zero value of their own.
func preset() *Config {
	return &Config{
		RootDepth:    DefaultRootDepth,
		ManifestFile: DefaultManifestFile,
	}
}

// applyDefaults fills every unset field with its default value.
func applyDefaults(cfg *Config) {
	setDefault(&cfg.PackageDir, DefaultPackageDir)
	setDefault(&cfg.JavaDir, DefaultJavaDir)
	setDefault(&cfg.CppDir, DefaultCppDir)
	setDefault(&cfg.BuildOutputDir, DefaultBuildOutputDir)
	setDefault(&cfg.ArchivePattern, DefaultArchivePattern)
	setDefault(&cfg.ScriptsDir, DefaultScriptsDir)
	setDefault(&cfg.NativeSourceDir, DefaultNativeSourceDir())
	setDefault(&cfg.LogLevel, DefaultLogLevel)

	if cfg.NativeFiles == nil {
		cfg.NativeFiles = DefaultNativeFiles()
	}

	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = DefaultWatchDebounce
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func validateDirName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errEmptyName
	}

	if filepath.Base(name) != name {
		return errNestedName
	}

	return nil
}
