package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"preview-watcher/internal/logging"

	"gopkg.in/yaml.v3"
)

// Watch modes
const (
	WatchModePush = "push"
	WatchModePoll = "poll"
)

// Config holds all application configuration
type Config struct {
	WatchDir    string
	PreviewDir  string
	DatabaseDir string
	DatabaseURL string
	ZipDir      string
	StaticDir   string

	AuthToken      string
	AuthTokenHash  string
	WebURL         string
	PermissionsURL string

	Quality    int
	PixelLimit int
	MagickPath string

	WatchMode       string
	PollInterval    time.Duration
	WatchDebounce   time.Duration
	ForceResync     bool
	ExcludePatterns []string

	CleanZipDays     int
	CleanZipSchedule string

	Host            string
	Port            string
	SocketPort      string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool
	ShutdownGrace   time.Duration

	// ConfigFile is the YAML file the values were overlaid from, if any.
	ConfigFile string

	// ZipsEnabled is false when ZIP_DIR could not be created or written.
	ZipsEnabled bool
}

// settings resolves a key from the environment first, then the config file.
type settings struct {
	file map[string]string
}

func (s settings) lookup(keys ...string) (value, key string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, k
		}
	}
	for _, k := range keys {
		if v, ok := s.file[k]; ok && v != "" {
			return v, k
		}
	}
	return "", keys[0]
}

// str returns the first non-empty value among keys (legacy aliases after the primary name).
func (s settings) str(defaultValue string, keys ...string) string {
	if v, _ := s.lookup(keys...); v != "" {
		return v
	}
	return defaultValue
}

func (s settings) boolean(key string, defaultValue bool) bool {
	value, _ := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) integer(defaultValue int, keys ...string) int {
	value, key := s.lookup(keys...)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) duration(key string, defaultValue time.Duration) time.Duration {
	value, _ := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("  Invalid %s %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// loadConfigFile reads a flat YAML mapping keyed by environment variable names.
// Lists are joined with commas so EXCLUDE_PATTERNS can be written as a sequence.
func loadConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch typed := v.(type) {
		case nil:
			continue
		case string:
			values[key] = typed
		case []interface{}:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[key] = strings.Join(parts, ",")
		default:
			values[key] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

// LoadConfig loads and validates configuration from environment variables,
// overlaid on the optional YAML file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")

	s := settings{}
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		values, err := loadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		s.file = values
		logging.Info("  CONFIG_FILE:         %s (%d keys)", configFile, len(values))
		if lvl, ok := values["LOG_LEVEL"]; ok && os.Getenv("LOG_LEVEL") == "" {
			if level, valid := logging.ParseLevel(lvl); valid {
				logging.SetLevel(level)
			}
		}
	}

	cfg := &Config{
		WatchDir:         s.str("/data", "WATCH_DIR", "INTERNAL_PATH"),
		PreviewDir:       s.str("/previews", "PREVIEW_DIR", "PREVIEW_PATH"),
		DatabaseDir:      s.str("/database", "DATABASE_DIR"),
		DatabaseURL:      s.str("", "DB_URL"),
		ZipDir:           s.str("/zips", "ZIP_DIR", "ZIP_PATH"),
		StaticDir:        s.str("", "STATIC_DIR"),
		AuthToken:        s.str("", "AUTH_TOKEN", "AUTH"),
		AuthTokenHash:    s.str("", "AUTH_TOKEN_HASH"),
		WebURL:           s.str("*", "WEB_URL"),
		PermissionsURL:   s.str("", "PERMISSIONS_URL"),
		Quality:          s.integer(50, "QUALITY"),
		PixelLimit:       s.integer(1200, "PIXEL_LIMIT"),
		MagickPath:       s.str("", "MAGICK_PATH", "MAGIC_PATH"),
		WatchMode:        strings.ToLower(s.str(WatchModePush, "WATCH_MODE")),
		PollInterval:     s.duration("POLL_INTERVAL", time.Second),
		WatchDebounce:    s.duration("WATCH_DEBOUNCE", 250*time.Millisecond),
		ForceResync:      s.boolean("FORCE_RESYNC", false),
		ExcludePatterns:  splitList(s.str("", "EXCLUDE_PATTERNS")),
		CleanZipDays:     s.integer(7, "CLEAN_ZIP_DAYS"),
		CleanZipSchedule: s.str("@daily", "CLEAN_ZIP_SCHEDULE"),
		Host:             s.str("0.0.0.0", "HOST", "IP_SERVER"),
		Port:             s.str("8000", "PORT"),
		SocketPort:       s.str("", "SOCKET_PORT"),
		MetricsPort:      s.str("9090", "METRICS_PORT"),
		MetricsEnabled:   s.boolean("METRICS_ENABLED", true),
		LogStaticFiles:   s.boolean("LOG_STATIC_FILES", false),
		LogHealthChecks:  s.boolean("LOG_HEALTH_CHECKS", true),
		ShutdownGrace:    s.duration("SHUTDOWN_GRACE", 30*time.Second),
		ConfigFile:       configFile,
	}

	if cfg.Quality < 0 || cfg.Quality > 100 {
		clamped := min(max(cfg.Quality, 0), 100)
		logging.Warn("  QUALITY %d out of range (0-100), using %d", cfg.Quality, clamped)
		cfg.Quality = clamped
	}
	if cfg.PixelLimit <= 0 {
		logging.Warn("  PIXEL_LIMIT must be positive, using default: 1200")
		cfg.PixelLimit = 1200
	}
	if cfg.CleanZipDays <= 0 {
		logging.Warn("  CLEAN_ZIP_DAYS must be positive, using default: 7")
		cfg.CleanZipDays = 7
	}
	if cfg.WatchMode != WatchModePush && cfg.WatchMode != WatchModePoll {
		return nil, fmt.Errorf("invalid WATCH_MODE %q (expected %q or %q)", cfg.WatchMode, WatchModePush, WatchModePoll)
	}

	cfg.logValues()

	if err := cfg.setupDirectories(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) logValues() {
	logging.Info("  WATCH_DIR:           %s", c.WatchDir)
	logging.Info("  PREVIEW_DIR:         %s", c.PreviewDir)
	logging.Info("  DATABASE:            %s", redactURL(c.DatabaseURL, c.DatabaseDir))
	logging.Info("  ZIP_DIR:             %s", c.ZipDir)
	logging.Info("  QUALITY:             %d", c.Quality)
	logging.Info("  PIXEL_LIMIT:         %d", c.PixelLimit)
	logging.Info("  WATCH_MODE:          %s", c.WatchMode)
	if c.WatchMode == WatchModePoll {
		logging.Info("  POLL_INTERVAL:       %v", c.PollInterval)
	} else {
		logging.Info("  WATCH_DEBOUNCE:      %v", c.WatchDebounce)
	}
	logging.Info("  FORCE_RESYNC:        %v", c.ForceResync)
	logging.Info("  EXCLUDE_PATTERNS:    %d", len(c.ExcludePatterns))
	logging.Info("  CLEAN_ZIP_DAYS:      %d (%s)", c.CleanZipDays, c.CleanZipSchedule)
	logging.Info("  MAGICK_PATH:         %s", valueOr(c.MagickPath, "(none)"))
	logging.Info("  WEB_URL:             %s", c.WebURL)
	logging.Info("  AUTH:                %s", authMode(c))
	logging.Info("  HOST:                %s", c.Host)
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  SOCKET_PORT:         %s", valueOr(c.SocketPort, "(none)"))
	logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  SHUTDOWN_GRACE:      %v", c.ShutdownGrace)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
}

func (c *Config) setupDirectories() error {
	section("DIRECTORIES")

	var err error
	if c.WatchDir, err = filepath.Abs(c.WatchDir); err != nil {
		return fmt.Errorf("failed to resolve watch directory path: %w", err)
	}
	info, err := os.Stat(c.WatchDir)
	if err != nil {
		return fmt.Errorf("watch directory %s is not accessible: %w", c.WatchDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch directory %s is not a directory", c.WatchDir)
	}
	logging.Info("  Watch directory (absolute): %s", c.WatchDir)

	if c.PreviewDir, err = filepath.Abs(c.PreviewDir); err != nil {
		return fmt.Errorf("failed to resolve preview directory path: %w", err)
	}
	if err := prepareDir(c.PreviewDir); err != nil {
		return fmt.Errorf("preview directory: %w", err)
	}
	logging.Info("  [OK] Preview directory is writable: %s", c.PreviewDir)

	if c.DatabaseURL == "" {
		if c.DatabaseDir, err = filepath.Abs(c.DatabaseDir); err != nil {
			return fmt.Errorf("failed to resolve database directory path: %w", err)
		}
		if err := prepareDir(c.DatabaseDir); err != nil {
			return fmt.Errorf("database directory: %w", err)
		}
		logging.Info("  [OK] Database directory is writable")
	}

	if c.ZipDir, err = filepath.Abs(c.ZipDir); err != nil {
		return fmt.Errorf("failed to resolve zip directory path: %w", err)
	}
	c.ZipsEnabled = prepareOptionalDir(c.ZipDir, "Async bundles")

	if c.StaticDir != "" {
		if c.StaticDir, err = filepath.Abs(c.StaticDir); err != nil {
			return fmt.Errorf("failed to resolve static directory path: %w", err)
		}
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:      ENABLED (required)")
	logging.Info("    Async bundles: %s", onOff(c.ZipsEnabled))
	logging.Info("    Static files:  %s", onOff(c.StaticDir != ""))
	logging.Info("    Permissions:   %s", onOff(c.PermissionsURL != ""))
	logging.Info("    Metrics:       %s", onOff(c.MetricsEnabled))
	return nil
}

// DatabaseLocation returns DB_URL, or the default SQLite file under DATABASE_DIR.
func (c *Config) DatabaseLocation() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.DatabaseDir, "previews.db")
}

// InternalDirs lists configured output directories that live inside the watch
// root and must never be fed back into the pipeline.
func (c *Config) InternalDirs() []string {
	var dirs []string
	for _, d := range []string{c.PreviewDir, c.ZipDir, c.DatabaseDir} {
		if d == "" {
			continue
		}
		rel, err := filepath.Rel(c.WatchDir, d)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		dirs = append(dirs, d)
	}
	return dirs
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func authMode(c *Config) string {
	switch {
	case c.AuthTokenHash != "":
		return "bearer (bcrypt hash)"
	case c.AuthToken != "":
		return "bearer (token)"
	default:
		return "NOT CONFIGURED"
	}
}

// redactURL hides credentials in a database URL for logging.
func redactURL(url, databaseDir string) string {
	if url == "" {
		return "sqlite " + filepath.Join(databaseDir, "previews.db")
	}
	schemeEnd := strings.Index(url, "://")
	at := strings.LastIndex(url, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return url
	}
	return url[:schemeEnd+3] + "****" + url[at:]
}
