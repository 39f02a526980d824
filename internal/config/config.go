package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".mclippy"
	userConfigFile = "config.yaml"

	composioBaseURL = "https://mcp.composio.dev/composio/server/"
)

// Env keys for developer/system configuration, loaded from .env or the
// process environment.
const (
	EnvGoogleAPIKey       = "GOOGLE_API_KEY"
	EnvGmailServerUUID    = "GMAIL_MCP_SERVER_UUID"
	EnvCalendarServerUUID = "CALENDAR_MCP_SERVER_UUID"
)

// NotificationPrefs controls which check results produce desktop
// notifications.
type NotificationPrefs struct {
	Email    string `yaml:"email"`    // "important" or "off"
	Calendar string `yaml:"calendar"` // "on" or "off"
}

// Schedule holds the user's active window for proactive checks.
type Schedule struct {
	FrequencyMinutes int   `yaml:"frequency_minutes"`
	ActiveDays       []int `yaml:"active_days"` // 0=Monday .. 6=Sunday
	ActiveStartHour  int   `yaml:"active_start_hour"`
	ActiveEndHour    int   `yaml:"active_end_hour"`
}

// Config is the per-user configuration persisted under ~/.mclippy.
type Config struct {
	UserEmail      string            `yaml:"user_email"`
	Persona        string            `yaml:"persona"`
	Priorities     string            `yaml:"priorities"`
	Notifications  NotificationPrefs `yaml:"notifications"`
	Schedule       Schedule          `yaml:"schedule"`
	WorkStartHour  int               `yaml:"work_start_hour"`
	WorkEndHour    int               `yaml:"work_end_hour"`
	Timezone       string            `yaml:"timezone"`
	LastEmailCheck time.Time         `yaml:"last_email_check,omitempty"`

	// Developer/system values resolved from the environment, never
	// written back to the YAML file.
	GoogleAPIKey       string `yaml:"-"`
	GmailServerUUID    string `yaml:"-"`
	CalendarServerUUID string `yaml:"-"`

	path string
}

// Default returns a Config populated with the defaults used before any
// user customization.
func Default() *Config {
	return &Config{
		Notifications: NotificationPrefs{Email: "important", Calendar: "on"},
		Schedule: Schedule{
			FrequencyMinutes: 30,
			ActiveDays:       []int{0, 1, 2, 3, 4},
			ActiveStartHour:  9,
			ActiveEndHour:    18,
		},
		WorkStartHour: 9,
		WorkEndHour:   18,
		Timezone:      "Asia/Kolkata",
	}
}

// Dir returns the per-user configuration directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, configDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the user config from disk, applying defaults for anything the
// file does not set, then overlays environment values. A missing file is
// not an error; callers detect first run via Configured().
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, userConfigFile))
}

// LoadFrom reads the user config from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run, defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.loadEnv()
	return cfg, nil
}

// loadEnv pulls developer configuration from .env (if present) and the
// process environment. Environment always wins over the file.
func (c *Config) loadEnv() {
	_ = godotenv.Load() // optional; absence is fine

	c.GoogleAPIKey = os.Getenv(EnvGoogleAPIKey)
	c.GmailServerUUID = os.Getenv(EnvGmailServerUUID)
	c.CalendarServerUUID = os.Getenv(EnvCalendarServerUUID)
}

// Save writes the user config back to its YAML file.
func (c *Config) Save() error {
	if c.path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		c.path = filepath.Join(dir, userConfigFile)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Configured reports whether the setup flow has run.
func (c *Config) Configured() bool {
	return c.UserEmail != ""
}

// GmailServerURL returns the full MCP endpoint URL for the Gmail provider.
func (c *Config) GmailServerURL() string {
	return serverURL(c.GmailServerUUID)
}

// CalendarServerURL returns the full MCP endpoint URL for the Calendar
// provider.
func (c *Config) CalendarServerURL() string {
	return serverURL(c.CalendarServerUUID)
}

func serverURL(uuid string) string {
	if uuid == "" {
		return ""
	}
	return composioBaseURL + uuid + "?transport=sse&include_composio_helper_actions=true"
}

// SetLastEmailCheck records a successful email fetch checkpoint and
// persists it.
func (c *Config) SetLastEmailCheck(t time.Time) error {
	c.LastEmailCheck = t.UTC()
	return c.Save()
}

// Location resolves the configured working timezone, falling back to a
// fixed IST offset when the tz database is unavailable.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+1800)
}
