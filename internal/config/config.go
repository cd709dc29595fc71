package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration for the API service.
type Config struct {
	ListenAddr      string        `env:"APP_LISTEN_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"APP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"APP_WRITE_TIMEOUT" envDefault:"20s"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"APP_LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"APP_LOG_FILE"`

	TracingEnabled bool `env:"APP_TRACING_ENABLED" envDefault:"false"`

	AnalyticsEnabled    bool          `env:"APP_ANALYTICS_ENABLED" envDefault:"true"`
	AnalyticsURL        string        `env:"APP_ANALYTICS_URL" envDefault:"http://127.0.0.1:8000"`
	AnalyticsESPath     string        `env:"APP_ANALYTICS_ES_PATH" envDefault:"/rest/rules/es/?query="`
	AnalyticsFilterPath string        `env:"APP_ANALYTICS_FILTER_PATH" envDefault:"/rest/rules/hunt-filter/"`
	AnalyticsTimeout    time.Duration `env:"APP_ANALYTICS_TIMEOUT" envDefault:"10s"`

	TimelineStrict bool `env:"APP_TIMELINE_STRICT" envDefault:"true"`

	DashboardSectionsFile string   `env:"APP_DASHBOARD_SECTIONS_FILE"`
	DashboardPanels       []string `env:"APP_DASHBOARD_PANELS" envSeparator:"," envDefault:"metadata,basic,organizational,ip,http,dns,tls,smtp,smb,ssh"`
	DashboardBlockSize    int      `env:"APP_DASHBOARD_BLOCK_SIZE" envDefault:"5"`
	DashboardMoreSize     int      `env:"APP_DASHBOARD_MORE_SIZE" envDefault:"30"`

	LayoutSQLitePath string `env:"APP_LAYOUT_SQLITE_PATH"`

	DBEnabled      bool          `env:"APP_DB_ENABLED" envDefault:"false"`
	DBHost         string        `env:"APP_DB_HOST" envDefault:"127.0.0.1"`
	DBPort         int           `env:"APP_DB_PORT" envDefault:"3306"`
	DBUser         string        `env:"APP_DB_USER" envDefault:"scirius"`
	DBPassword     string        `env:"APP_DB_PASSWORD"`
	DBName         string        `env:"APP_DB_NAME" envDefault:"scirius"`
	DBConnTimeout  time.Duration `env:"APP_DB_CONN_TIMEOUT" envDefault:"5s"`
	DBQueryTimeout time.Duration `env:"APP_DB_QUERY_TIMEOUT" envDefault:"10s"`
}

// FromEnv loads configuration from environment variables. Values found in the
// optional env files only apply when the variable is not already set.
func FromEnv() (Config, error) {
	loadConfigDefaultsFromFile()
	loadSecretsDefaultsFromFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.AnalyticsURL = strings.TrimRight(strings.TrimSpace(cfg.AnalyticsURL), "/")
	if cfg.DashboardBlockSize <= 0 {
		cfg.DashboardBlockSize = 5
	}
	if cfg.DashboardMoreSize <= 0 {
		cfg.DashboardMoreSize = 30
	}
	return cfg, nil
}

func loadConfigDefaultsFromFile() {
	bootstrapCandidates := []string{
		"./hunt-dashboard.env",
		"/etc/default/hunt-dashboard",
	}

	for _, candidate := range bootstrapCandidates {
		_ = applyEnvDefaultsFromFile(absPath(candidate))
	}

	candidates := make([]string, 0, 2)
	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	candidates = append(candidates, "/etc/hunt-dashboard/config.env")

	for _, candidate := range candidates {
		if err := applyEnvDefaultsFromFile(absPath(candidate)); err == nil {
			return
		}
	}
}

func loadSecretsDefaultsFromFile() {
	candidates := make([]string, 0, 3)
	if explicit := strings.TrimSpace(os.Getenv("APP_SECRETS_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	if credDir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); credDir != "" {
		credName := strings.TrimSpace(os.Getenv("APP_SECRETS_CREDENTIAL_NAME"))
		if credName == "" {
			credName = "app-secrets"
		}
		candidates = append(candidates, filepath.Join(credDir, credName))
	}
	candidates = append(candidates, "/etc/hunt-dashboard/secrets.env")
	for _, candidate := range candidates {
		if err := applyEnvDefaultsFromFile(candidate); err == nil {
			return
		}
	}
}

func absPath(candidate string) string {
	if filepath.IsAbs(candidate) {
		return candidate
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, candidate)
	}
	return candidate
}

func applyEnvDefaultsFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if key == "" {
			continue
		}

		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}

	return scanner.Err()
}

// MySQLDSN returns a mysql driver DSN with safe defaults for TCP access.
func (c Config) MySQLDSN() string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("timeout", c.DBConnTimeout.String())
	params.Set("readTimeout", c.DBQueryTimeout.String())
	params.Set("writeTimeout", c.DBQueryTimeout.String())
	params.Set("charset", "utf8mb4")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, params.Encode())
}
