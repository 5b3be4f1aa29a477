// Package config provides configuration management for vodarchive.
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables, with sensible defaults for everything.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort             = 8787
	DefaultLogLevel         = "info"
	DefaultDataDir          = ".vodarchive"
	DefaultSoftCapMinutes   = 300
	DefaultHardCapMinutes   = 720
	DefaultPollInterval     = time.Hour
	DefaultBatchLimit       = 1000
	DefaultChannel          = "NopixelVODS"
	DefaultDescriptionTempl = "$$video_title$$\n\n" +
		"Streamed by $$video_streamer_name$$ ($$video_streamer_login$$)\n" +
		"Original: $$video_url$$\n" +
		"Part $$video_part$$ of $$video_total_parts$$, full length $$video_duration$$"

	// Environment variable names
	EnvConfigFile          = "VODARCHIVE_CONFIG"
	EnvPort                = "VODARCHIVE_PORT"
	EnvLogLevel            = "VODARCHIVE_LOG_LEVEL"
	EnvDataDir             = "VODARCHIVE_DATA_DIR"
	EnvFFmpeg              = "VODARCHIVE_FFMPEG"
	EnvSoftCapMinutes      = "VODARCHIVE_SOFT_CAP_MINUTES"
	EnvHardCapMinutes      = "VODARCHIVE_HARD_CAP_MINUTES"
	EnvPollInterval        = "VODARCHIVE_POLL_INTERVAL"
	EnvBatchLimit          = "VODARCHIVE_BATCH_LIMIT"
	EnvSourceURL           = "VODARCHIVE_SOURCE_URL"
	EnvSourceToken         = "VODARCHIVE_SOURCE_TOKEN"
	EnvUploadURL           = "VODARCHIVE_UPLOAD_URL"
	EnvUploadToken         = "VODARCHIVE_UPLOAD_TOKEN"
	EnvDefaultChannel      = "VODARCHIVE_DEFAULT_CHANNEL"
	EnvTags                = "VODARCHIVE_TAGS"
	EnvDescriptionTemplate = "VODARCHIVE_DESCRIPTION_TEMPLATE"

	// Database filename
	DBFilename = "vodarchive.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	DownloadDir() string
	FFmpegPath() string
	SoftCap() time.Duration
	HardCap() time.Duration
	PollInterval() time.Duration
	BatchLimit() int
	SourceBaseURL() string
	SourceToken() string
	UploadBaseURL() string
	UploadToken() string
	DefaultChannel() string
	Tags() []string
	DescriptionTemplate() string
}

// Error is a configuration problem. It is fatal at startup.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// File is the on-disk YAML layout. Zero values mean "use the default".
type File struct {
	Port                int        `yaml:"port"`
	LogLevel            string     `yaml:"log_level"`
	DataDir             string     `yaml:"data_dir"`
	FFmpeg              string     `yaml:"ffmpeg"`
	SoftCapMinutes      int        `yaml:"soft_cap_minutes"`
	HardCapMinutes      int        `yaml:"hard_cap_minutes"`
	PollInterval        string     `yaml:"poll_interval"`
	BatchLimit          int        `yaml:"batch_limit"`
	Source              SourceFile `yaml:"source"`
	Upload              UploadFile `yaml:"upload"`
	DescriptionTemplate string     `yaml:"description_template"`
}

type SourceFile struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type UploadFile struct {
	BaseURL        string   `yaml:"base_url"`
	Token          string   `yaml:"token"`
	DefaultChannel string   `yaml:"default_channel"`
	Tags           []string `yaml:"tags"`
}

// FileConfig is the resolved configuration.
type FileConfig struct {
	port                int
	logLevel            string
	dataDir             string
	ffmpegPath          string
	softCap             time.Duration
	hardCap             time.Duration
	pollInterval        time.Duration
	batchLimit          int
	sourceBaseURL       string
	sourceToken         string
	uploadBaseURL       string
	uploadToken         string
	defaultChannel      string
	tags                []string
	descriptionTemplate string
}

// New loads configuration from the file named by VODARCHIVE_CONFIG (if set)
// and the environment.
func New() (*FileConfig, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load resolves defaults, then the YAML file at path (skipped when empty),
// then environment overrides, and validates the result.
func Load(path string) (*FileConfig, error) {
	cfg := &FileConfig{
		port:                DefaultPort,
		logLevel:            DefaultLogLevel,
		dataDir:             defaultDataDir(),
		softCap:             DefaultSoftCapMinutes * time.Minute,
		hardCap:             DefaultHardCapMinutes * time.Minute,
		pollInterval:        DefaultPollInterval,
		batchLimit:          DefaultBatchLimit,
		defaultChannel:      DefaultChannel,
		descriptionTemplate: DefaultDescriptionTempl,
	}

	if path != "" {
		f, err := loadFile(path)
		if err != nil {
			return nil, &Error{Key: EnvConfigFile, Err: err}
		}
		if err := cfg.applyFile(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*File, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format %q (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

func (c *FileConfig) applyFile(f *File) error {
	if f.Port != 0 {
		c.port = f.Port
	}
	if f.LogLevel != "" {
		c.logLevel = f.LogLevel
	}
	if f.DataDir != "" {
		c.dataDir = f.DataDir
	}
	if f.FFmpeg != "" {
		c.ffmpegPath = f.FFmpeg
	}
	if f.SoftCapMinutes != 0 {
		c.softCap = time.Duration(f.SoftCapMinutes) * time.Minute
	}
	if f.HardCapMinutes != 0 {
		c.hardCap = time.Duration(f.HardCapMinutes) * time.Minute
	}
	if f.PollInterval != "" {
		d, err := time.ParseDuration(f.PollInterval)
		if err != nil {
			return &Error{Key: "poll_interval", Err: err}
		}
		c.pollInterval = d
	}
	if f.BatchLimit != 0 {
		c.batchLimit = f.BatchLimit
	}
	if f.Source.BaseURL != "" {
		c.sourceBaseURL = f.Source.BaseURL
	}
	if f.Source.Token != "" {
		c.sourceToken = f.Source.Token
	}
	if f.Upload.BaseURL != "" {
		c.uploadBaseURL = f.Upload.BaseURL
	}
	if f.Upload.Token != "" {
		c.uploadToken = f.Upload.Token
	}
	if f.Upload.DefaultChannel != "" {
		c.defaultChannel = f.Upload.DefaultChannel
	}
	if len(f.Upload.Tags) > 0 {
		c.tags = f.Upload.Tags
	}
	if f.DescriptionTemplate != "" {
		c.descriptionTemplate = f.DescriptionTemplate
	}
	return nil
}

func (c *FileConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return &Error{Key: EnvPort, Err: err}
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if ff := os.Getenv(EnvFFmpeg); ff != "" {
		c.ffmpegPath = ff
	}
	if err := envMinutes(EnvSoftCapMinutes, &c.softCap); err != nil {
		return err
	}
	if err := envMinutes(EnvHardCapMinutes, &c.hardCap); err != nil {
		return err
	}
	if pi := os.Getenv(EnvPollInterval); pi != "" {
		d, err := time.ParseDuration(pi)
		if err != nil {
			return &Error{Key: EnvPollInterval, Err: err}
		}
		c.pollInterval = d
	}
	if bl := os.Getenv(EnvBatchLimit); bl != "" {
		n, err := strconv.Atoi(bl)
		if err != nil {
			return &Error{Key: EnvBatchLimit, Err: err}
		}
		c.batchLimit = n
	}
	if v := os.Getenv(EnvSourceURL); v != "" {
		c.sourceBaseURL = v
	}
	if v := os.Getenv(EnvSourceToken); v != "" {
		c.sourceToken = v
	}
	if v := os.Getenv(EnvUploadURL); v != "" {
		c.uploadBaseURL = v
	}
	if v := os.Getenv(EnvUploadToken); v != "" {
		c.uploadToken = v
	}
	if v := os.Getenv(EnvDefaultChannel); v != "" {
		c.defaultChannel = v
	}
	if v := os.Getenv(EnvTags); v != "" {
		c.tags = splitList(v)
	}
	if v := os.Getenv(EnvDescriptionTemplate); v != "" {
		c.descriptionTemplate = v
	}
	return nil
}

func (c *FileConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return &Error{Key: "port", Err: fmt.Errorf("port must be between 1 and 65535, got %d", c.port)}
	}
	if c.softCap <= 0 {
		return &Error{Key: "soft_cap_minutes", Err: fmt.Errorf("must be positive, got %v", c.softCap)}
	}
	if c.hardCap <= 0 {
		return &Error{Key: "hard_cap_minutes", Err: fmt.Errorf("must be positive, got %v", c.hardCap)}
	}
	if c.softCap > c.hardCap {
		return &Error{Key: "soft_cap_minutes", Err: fmt.Errorf("soft cap %v exceeds hard cap %v", c.softCap, c.hardCap)}
	}
	if c.pollInterval <= 0 {
		return &Error{Key: "poll_interval", Err: fmt.Errorf("must be positive, got %v", c.pollInterval)}
	}
	if c.batchLimit <= 0 {
		return &Error{Key: "batch_limit", Err: fmt.Errorf("must be positive, got %d", c.batchLimit)}
	}
	return nil
}

func envMinutes(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &Error{Key: key, Err: err}
	}
	*dst = time.Duration(n) * time.Minute
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Port returns the HTTP server port
func (c *FileConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *FileConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *FileConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *FileConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// DownloadDir is where recordings are downloaded and split, one
// subdirectory per video.
func (c *FileConfig) DownloadDir() string {
	return filepath.Join(c.dataDir, "downloads")
}

// FFmpegPath is empty when ffmpeg should be found on PATH.
func (c *FileConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *FileConfig) SoftCap() time.Duration {
	return c.softCap
}

func (c *FileConfig) HardCap() time.Duration {
	return c.hardCap
}

func (c *FileConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *FileConfig) BatchLimit() int {
	return c.batchLimit
}

func (c *FileConfig) SourceBaseURL() string {
	return c.sourceBaseURL
}

func (c *FileConfig) SourceToken() string {
	return c.sourceToken
}

func (c *FileConfig) UploadBaseURL() string {
	return c.uploadBaseURL
}

func (c *FileConfig) UploadToken() string {
	return c.uploadToken
}

func (c *FileConfig) DefaultChannel() string {
	return c.defaultChannel
}

func (c *FileConfig) Tags() []string {
	return append([]string(nil), c.tags...)
}

func (c *FileConfig) DescriptionTemplate() string {
	return c.descriptionTemplate
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
