package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ytuploader/internal/core"
)

// Executor kinds.
const (
	ExecutorBrowser = "browser"
	ExecutorCommand = "command"
)

// AccountConfig is one upload identity.
type AccountConfig struct {
	Name       string `yaml:"name"`
	CookieFile string `yaml:"cookie_file"`
	ChannelURL string `yaml:"channel_url"`
}

// GoogleConfig locates the work sheet.
type GoogleConfig struct {
	ServiceAccountFile string `yaml:"service_account_file"`
	SpreadsheetID      string `yaml:"spreadsheet_id"`
	WorksheetName      string `yaml:"worksheet_name"`
}

// SheetMapping names the sheet columns used by the uploader.
type SheetMapping struct {
	Title            string `yaml:"title"`
	Description      string `yaml:"description"`
	Hashtags         string `yaml:"hashtags"`
	Tags             string `yaml:"tags"`
	Filename         string `yaml:"filename"`
	DriveFileID      string `yaml:"drive_file_id"`
	DriveDownloadURL string `yaml:"drive_download_url"`
	Status           string `yaml:"status"`
	YouTubeURL       string `yaml:"youtube_url"`
	AlteredContent   string `yaml:"altered_content"`
	MadeForKids      string `yaml:"made_for_kids"`
}

// ScheduleConfig is the daily upload schedule.
type ScheduleConfig struct {
	Times     []string `yaml:"times"`
	Randomize bool     `yaml:"randomize"`
	Timezone  string   `yaml:"timezone"`
}

// ExecutorConfig selects how an upload attempt is performed.
type ExecutorConfig struct {
	Kind    string        `yaml:"kind"`
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrowserConfig configures the headless Chrome uploader.
type BrowserConfig struct {
	ChromePath string        `yaml:"chrome_path"`
	Headless   *bool         `yaml:"headless"`
	UserAgent  string        `yaml:"user_agent"`
	CookiesDir string        `yaml:"cookies_dir"`
	Timeout    time.Duration `yaml:"timeout"`
}

// S3Config configures s3:// video references.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// DriveConfig configures video downloads.
type DriveConfig struct {
	StagingDir        string        `yaml:"staging_dir"`
	MaxBytesPerSecond int64         `yaml:"max_bytes_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	S3                S3Config      `yaml:"s3"`
}

// CleanupConfig configures housekeeping.
type CleanupConfig struct {
	LogDirectory         string `yaml:"log_directory"`
	RetentionDays        int    `yaml:"retention_days"`
	RemoveUploadedVideos *bool  `yaml:"remove_uploaded_videos"`
	Cron                 string `yaml:"cron"`
	KeepRuns             int    `yaml:"keep_runs"`
}

// NotifyConfig configures end-of-run notifications.
type NotifyConfig struct {
	BarkURL   string `yaml:"bark_url"`
	OnSuccess bool   `yaml:"on_success"`
}

// AppConfig is the uploader's YAML configuration.
type AppConfig struct {
	Accounts             []AccountConfig `yaml:"accounts"`
	Google               GoogleConfig    `yaml:"google"`
	SheetMapping         SheetMapping    `yaml:"sheet_mapping"`
	Schedule             ScheduleConfig  `yaml:"schedule"`
	Executor             ExecutorConfig  `yaml:"executor"`
	Browser              BrowserConfig   `yaml:"browser"`
	Drive                DriveConfig     `yaml:"drive"`
	Cleanup              CleanupConfig   `yaml:"cleanup"`
	Notify               NotifyConfig    `yaml:"notify"`
	MaxRetries           int             `yaml:"max_retries"`
	RetryIntervalSeconds int             `yaml:"retry_interval_seconds"`
}

const (
	defaultMaxRetries      = 3
	defaultRetryInterval   = 30
	defaultRetentionDays   = 1
	defaultKeepRuns        = 500
	defaultLogDirectory    = "logs"
	defaultCookiesDir      = "cookies"
	defaultStatusColumn    = "UploadYT"
	defaultURLColumn       = "YTUrl"
	defaultBrowserTimeout  = 15 * time.Minute
	defaultDownloadTimeout = 60 * time.Second
)

// LoadApp reads the YAML file at path, applies defaults and resolves
// relative paths against the file's directory.
func LoadApp(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return ParseApp(data, base)
}

// ParseApp decodes YAML data. Relative paths resolve against baseDir.
func ParseApp(data []byte, baseDir string) (*AppConfig, error) {
	var cfg AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.resolvePaths(baseDir)
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryIntervalSeconds == 0 {
		c.RetryIntervalSeconds = defaultRetryInterval
	}
	if c.SheetMapping.Status == "" {
		c.SheetMapping.Status = defaultStatusColumn
	}
	if c.SheetMapping.YouTubeURL == "" {
		c.SheetMapping.YouTubeURL = defaultURLColumn
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
	if c.Executor.Kind == "" {
		c.Executor.Kind = ExecutorBrowser
	}
	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}
	if c.Browser.CookiesDir == "" {
		c.Browser.CookiesDir = defaultCookiesDir
	}
	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = defaultBrowserTimeout
	}
	if c.Drive.StagingDir == "" {
		c.Drive.StagingDir = core.DefaultStagingDir
	}
	if c.Drive.Timeout == 0 {
		c.Drive.Timeout = defaultDownloadTimeout
	}
	if c.Cleanup.LogDirectory == "" {
		c.Cleanup.LogDirectory = defaultLogDirectory
	}
	if c.Cleanup.RetentionDays == 0 {
		c.Cleanup.RetentionDays = defaultRetentionDays
	}
	if c.Cleanup.RemoveUploadedVideos == nil {
		remove := true
		c.Cleanup.RemoveUploadedVideos = &remove
	}
	if c.Cleanup.Cron == "" {
		c.Cleanup.Cron = core.DefaultCleanupCron
	}
	if c.Cleanup.KeepRuns == 0 {
		c.Cleanup.KeepRuns = defaultKeepRuns
	}
}

func (c *AppConfig) resolvePaths(baseDir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || baseDir == "" {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	for i := range c.Accounts {
		c.Accounts[i].CookieFile = resolve(c.Accounts[i].CookieFile)
	}
	c.Google.ServiceAccountFile = resolve(c.Google.ServiceAccountFile)
	c.Browser.ChromePath = resolveExecutable(c.Browser.ChromePath, resolve)
	c.Browser.CookiesDir = resolve(c.Browser.CookiesDir)
	c.Drive.StagingDir = resolve(c.Drive.StagingDir)
	c.Cleanup.LogDirectory = resolve(c.Cleanup.LogDirectory)
}

// resolveExecutable leaves bare program names for PATH lookup.
func resolveExecutable(p string, resolve func(string) string) string {
	if !strings.ContainsRune(p, filepath.Separator) && !strings.ContainsRune(p, '/') {
		return p
	}
	return resolve(p)
}

// CoreAccounts converts the accounts, falling back to
// <cookies_dir>/<name>.json when an account has no cookie file.
func (c *AppConfig) CoreAccounts() []core.Account {
	out := make([]core.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		cookie := a.CookieFile
		if cookie == "" {
			cookie = filepath.Join(c.Browser.CookiesDir, a.Name+".json")
		}
		out = append(out, core.Account{Name: a.Name, CookieFile: cookie, ChannelURL: a.ChannelURL})
	}
	return out
}

// ColumnMapping converts the sheet mapping.
func (c *AppConfig) ColumnMapping() core.ColumnMapping {
	m := c.SheetMapping
	return core.ColumnMapping{
		Title:            m.Title,
		Description:      m.Description,
		Hashtags:         m.Hashtags,
		Tags:             m.Tags,
		Filename:         m.Filename,
		DriveFileID:      m.DriveFileID,
		DriveDownloadURL: m.DriveDownloadURL,
		Status:           m.Status,
		YouTubeURL:       m.YouTubeURL,
		AlteredContent:   m.AlteredContent,
		MadeForKids:      m.MadeForKids,
	}
}

// ScheduleSpec parses the schedule section.
func (c *AppConfig) ScheduleSpec() (core.ScheduleSpec, error) {
	return core.ParseScheduleSpec(c.Schedule.Times, c.Schedule.Timezone, c.Schedule.Randomize)
}

// ControllerConfig converts the retry and cleanup settings.
func (c *AppConfig) ControllerConfig() core.ControllerConfig {
	return core.ControllerConfig{
		Mapping:         c.ColumnMapping(),
		MaxRetries:      c.MaxRetries,
		RetryInterval:   time.Duration(c.RetryIntervalSeconds) * time.Second,
		StagingDir:      c.Drive.StagingDir,
		RemoveUploaded:  *c.Cleanup.RemoveUploadedVideos,
		NotifyOnSuccess: c.Notify.OnSuccess,
	}
}
