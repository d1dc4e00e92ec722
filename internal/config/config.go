package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatsync/internal/logger"
)

// loadEnv reads .env only outside production (in containers/prod the config
// comes from env alone). Walks up to five directories so tests and tools run
// from subdirectories still find it.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		f, err := os.Open(dir + "/.env")
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		idx := strings.LastIndex(parent, "/")
		if idx <= 0 {
			return
		}
		dir = parent[:idx]
		if dir == "" {
			dir = "/"
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if key != "" && os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// Config is the daemon configuration: gateway server, upstream endpoints,
// reconciliation windows and the optional push/persistence extras.
type Config struct {
	// Gateway HTTP server
	ServerAddr   string `yaml:"server_addr"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`

	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	// GatewaySecret, when set, is required in X-Gateway-Secret on every
	// request. Empty means the gateway trusts its network (localhost).
	GatewaySecret string `yaml:"-"`

	// Upstream platform
	UpstreamSocketURL string `yaml:"upstream_socket_url"`
	UpstreamAPIURL    string `yaml:"upstream_api_url"`
	UpstreamToken     string `yaml:"-"`
	LocalUserID       string `yaml:"local_user_id"`

	// Reconciliation windows. The source system shipped these as magic
	// constants; they are tunable here.
	DuplicateWindowMS  int `yaml:"duplicate_window_ms"`
	OptimisticWindowMS int `yaml:"optimistic_window_ms"`
	NotificationCap    int `yaml:"notification_cap"`

	// Snapshot persistence. Empty RedisURL selects the in-memory store.
	RedisURL string `yaml:"-"`

	// Web Push
	VAPIDKeysFile string `yaml:"vapid_keys_file"`

	LogLevel string `yaml:"log_level"`
}

// DuplicateWindow returns the fuzzy-duplicate window as a duration.
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowMS) * time.Millisecond
}

// OptimisticWindow returns the placeholder-reconcile window as a duration.
func (c *Config) OptimisticWindow() time.Duration {
	return time.Duration(c.OptimisticWindowMS) * time.Millisecond
}

// Load builds the configuration: .env (if present), then YAML
// (CONFIG_PATH or config/sync.yaml), then env overrides; env wins.
func Load() *Config {
	loadEnv()

	cfg := &Config{
		ServerAddr:         ":8090",
		ReadTimeout:        15,
		WriteTimeout:       15,
		IdleTimeout:        60,
		CORSAllowedOrigins: "*",
		DuplicateWindowMS:  1000,
		OptimisticWindowMS: 5000,
		NotificationCap:    50,
		LogLevel:           "info",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/sync.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Errorf("config: parse %s: %v (defaults in use)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	overrideStr(&cfg.ServerAddr, "SERVER_ADDR")
	overrideStr(&cfg.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	overrideStr(&cfg.UpstreamSocketURL, "UPSTREAM_SOCKET_URL")
	overrideStr(&cfg.UpstreamAPIURL, "UPSTREAM_API_URL")
	overrideStr(&cfg.LocalUserID, "LOCAL_USER_ID")
	overrideStr(&cfg.VAPIDKeysFile, "VAPID_KEYS_FILE")
	overrideStr(&cfg.LogLevel, "LOG_LEVEL")
	overrideInt(&cfg.DuplicateWindowMS, "DUPLICATE_WINDOW_MS")
	overrideInt(&cfg.OptimisticWindowMS, "OPTIMISTIC_WINDOW_MS")
	overrideInt(&cfg.NotificationCap, "NOTIFICATION_CAP")

	cfg.UpstreamToken = os.Getenv("UPSTREAM_TOKEN")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.GatewaySecret = os.Getenv("GATEWAY_SECRET")
	return cfg
}

func overrideStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
