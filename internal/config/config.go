// Package config loads livewatch configuration from command-line flags,
// environment variables, a .env file and the YAML watch file.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
	"github.com/listenupapp/livewatch/internal/validation"
)

// Default values for the watch file.
const (
	DefaultConfigFile     = "livewatch.yaml"
	DefaultLiveReloadPort = 35729
	DefaultDebounce       = 200 * time.Millisecond
	DefaultUnlockInterval = 10 * time.Millisecond
	DefaultUnlockTryLimit = 50
)

// Config holds the complete livewatch configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Watch  WatchConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Environment string `validate:"oneof=development staging production"`
	// Root is the directory that dirs patterns and command dirs are relative to.
	Root       string `validate:"required"`
	ConfigFile string
	// Force keeps the watch cycle and the task sequence going after warnings
	// and fatal errors.
	Force bool
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"oneof=debug verbose info warn warning error"`
}

// WatchConfig is the structured part of the configuration, read from the
// watch file.
type WatchConfig struct {
	Dirs         []string            `yaml:"dirs" validate:"dive,required"`
	IgnoredFiles []string            `yaml:"ignoredFiles" validate:"dive,required"`
	LiveReload   LiveReloadConfig    `yaml:"livereload"`
	Beep         bool                `yaml:"beep"`
	ErrorStack   bool                `yaml:"errorStack"`
	Debounce     time.Duration       `yaml:"debounce" validate:"gt=0"`
	Unlock       UnlockConfig        `yaml:",inline"`
	Tasks        map[string]TaskList `yaml:"tasks" validate:"dive,keys,required,excludesall=./,endkeys,min=1,dive,required"`
	Commands     map[string]Command  `yaml:"commands" validate:"dive"`
}

// UnlockConfig bounds how long a locked file is polled before dispatch.
type UnlockConfig struct {
	Interval time.Duration `yaml:"unlockInterval" validate:"gt=0"`
	TryLimit int           `yaml:"unlockTryLimit" validate:"gte=0"`
}

// LiveReloadConfig configures the live-reload server.
//
// In the watch file it is either a mapping, a boolean (enable or disable with
// defaults) or a port number (enabled on that port).
type LiveReloadConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Port       int      `yaml:"port" validate:"min=1,max=65535"`
	Extensions []string `yaml:"extensions" validate:"min=1,dive,required,excludesall=./"`
	// Key and Cert are PEM file paths or inline PEM blocks. When both are set
	// the server speaks TLS.
	Key  string `yaml:"key"`
	Cert string `yaml:"cert"`
	// AllowedOrigins restricts browser origins for CORS and the websocket.
	// Empty allows all.
	AllowedOrigins []string `yaml:"allowedOrigins" validate:"dive,required"`
}

// UnmarshalYAML accepts a bool, a port number or a mapping.
func (l *LiveReloadConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if b, err := strconv.ParseBool(node.Value); err == nil {
			l.Enabled = b
			return nil
		}
		port, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: livereload must be a boolean, a port or a mapping", node.Line)
		}
		l.Enabled = true
		l.Port = port
		return nil
	}

	type plain LiveReloadConfig
	return node.Decode((*plain)(l))
}

// TaskList is an ordered list of task names. A single scalar decodes to a
// one-element list.
type TaskList []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (t *TaskList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = TaskList{node.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*t = names
		return nil
	default:
		return fmt.Errorf("line %d: task list must be a name or a list of names", node.Line)
	}
}

// Command is a shell command run for a task.
type Command struct {
	Run string            `yaml:"run" validate:"required"`
	Dir string            `yaml:"dir"`
	Env map[string]string `yaml:"env"`
}

// UnmarshalYAML accepts a bare command string or a mapping.
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Run = node.Value
		return nil
	}
	type plain Command
	return node.Decode((*plain)(c))
}

// Flags carries command-line values. Empty strings mean "not given".
type Flags struct {
	Env        string
	LogLevel   string
	ConfigFile string
	EnvFile    string
	Root       string
	Force      string
	Port       string
}

// DefaultWatch returns the watch configuration used when the watch file is
// absent or leaves keys out.
func DefaultWatch() WatchConfig {
	return WatchConfig{
		Dirs: []string{"!bower_components", "!node_modules"},
		LiveReload: LiveReloadConfig{
			Enabled:    true,
			Port:       DefaultLiveReloadPort,
			Extensions: []string{"js", "css", "html"},
		},
		Beep:       true,
		ErrorStack: true,
		Debounce:   DefaultDebounce,
		Unlock: UnlockConfig{
			Interval: DefaultUnlockInterval,
			TryLimit: DefaultUnlockTryLimit,
		},
		Tasks:    map[string]TaskList{},
		Commands: map[string]Command{},
	}
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Watch file, then defaults (lowest priority).
func LoadConfig(flags Flags) (*Config, error) {
	envFile := flags.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// A missing .env file is fine.
	if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidConfig, "load %s", envFile)
	}

	root, err := expandPath(getConfigValue(flags.Root, "LIVEWATCH_ROOT", "."))
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidConfig, "invalid root")
	}

	configFile := getConfigValue(flags.ConfigFile, "LIVEWATCH_CONFIG", "")
	explicit := configFile != ""
	if !explicit {
		configFile = DefaultConfigFile
	}
	if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(root, configFile)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags.Env, "ENV", "development"),
			Root:        root,
			ConfigFile:  configFile,
			Force:       getBoolConfigValue(flags.Force, "LIVEWATCH_FORCE", false),
		},
		Logger: LoggerConfig{
			Level: strings.ToLower(getConfigValue(flags.LogLevel, "LOG_LEVEL", "info")),
		},
		Watch: DefaultWatch(),
	}

	data, err := os.ReadFile(configFile) //#nosec G304 -- watch file path comes from the user
	switch {
	case err == nil:
		if err := decodeWatch(data, &cfg.Watch); err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidConfig, "parse %s", configFile)
		}
	case os.IsNotExist(err) && !explicit:
		cfg.App.ConfigFile = ""
	default:
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidConfig, "read %s", configFile)
	}

	if port := getIntConfigValue(flags.Port, "LIVEWATCH_PORT", 0); port != 0 {
		cfg.Watch.LiveReload.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decodeWatch decodes a watch file over w, keeping defaults for absent keys.
// Unknown keys are rejected.
func decodeWatch(data []byte, w *WatchConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(w); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field constraints and that every task named in the task
// mapping has a command when commands are configured.
func (c *Config) Validate() error {
	v := validation.New()
	if err := v.Validate(c); err != nil {
		return err
	}

	if len(c.Watch.Commands) == 0 {
		return nil
	}

	var missing []string
	for ext, tasks := range c.Watch.Tasks {
		for _, task := range tasks {
			if _, ok := c.Watch.Commands[task]; !ok {
				missing = append(missing, fmt.Sprintf("%s (tasks.%s)", task, ext))
			}
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return domainerrors.InvalidConfigf("tasks without a command: %s", strings.Join(missing, ", "))
	}

	return nil
}

// TLS returns the PEM key and certificate for the live-reload server, or nil
// slices when TLS is not configured. Each value is either an inline PEM block
// or a path relative to root.
func (l LiveReloadConfig) TLS(root string) (key, cert []byte, err error) {
	if l.Key == "" && l.Cert == "" {
		return nil, nil, nil
	}
	if l.Key == "" || l.Cert == "" {
		return nil, nil, domainerrors.InvalidConfig("livereload key and cert must be set together")
	}
	if key, err = readPEM(l.Key, root); err != nil {
		return nil, nil, err
	}
	if cert, err = readPEM(l.Cert, root); err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}

func readPEM(value, root string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(value), "-----BEGIN") {
		return []byte(value), nil
	}
	path := value
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	data, err := os.ReadFile(path) //#nosec G304 -- TLS material path comes from the user
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidConfig, "read %s", value)
	}
	return data, nil
}

// expandPath expands ~, makes the path absolute and cleans it.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments). Variables already set in
// the environment win.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- .env path comes from the user
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
