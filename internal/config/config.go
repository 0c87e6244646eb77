package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bassista/go_devwatch/internal/logger"
)

const (
	envPrefix         = "DEVWATCH"
	DefaultConfigPath = "./config"
	ConfigName        = "config"
	ConfigType        = "yaml"
)

// Defaults for device entries. Viper defaults do not reach into lists.
const (
	DefaultOctoPrintName     = "OctoPrint"
	DefaultOctoPrintPort     = 80
	DefaultUnifiVideoName    = "Unifi Video"
	DefaultUnifiVideoPort    = 7080
	DefaultCameraPassword    = "ubnt"
	DefaultCameraIDField     = "id"
	defaultOctoPrintPath     = "/"
	unifiVideoAPIPathVersion = "/api/2.0/"
)

var (
	AllSensors       = []string{"Temperatures", "Current State", "Job Percentage", "Time Remaining", "Time Elapsed"}
	AllBinarySensors = []string{"Printing", "Printing Error"}
)

type Config struct {
	Server     ServerConfig       `mapstructure:"server"`
	Polling    PollingConfig      `mapstructure:"polling"`
	Misc       MiscConfig         `mapstructure:"misc"`
	OctoPrint  []OctoPrintConfig  `mapstructure:"octoprint" validate:"dive"`
	UnifiVideo []UnifiVideoConfig `mapstructure:"unifi_video" validate:"dive"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutDownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

// PollingConfig controls the refresh timeline shared by all devices.
type PollingConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	RefreshTimeout    time.Duration `mapstructure:"refresh_timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"`
}

type MiscConfig struct {
	LogLevel string `mapstructure:"log_level"`
	GinMode  string `mapstructure:"gin_mode" validate:"omitempty,oneof=debug release test"`
}

type OctoPrintConfig struct {
	Name               string   `mapstructure:"name" validate:"required"`
	Host               string   `mapstructure:"host" validate:"required"`
	Port               int      `mapstructure:"port" validate:"min=1,max=65535"`
	Path               string   `mapstructure:"path" validate:"startswith=/,endswith=/"`
	APIKey             string   `mapstructure:"api_key" validate:"required"`
	SSL                bool     `mapstructure:"ssl"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	NumberOfTools      int      `mapstructure:"number_of_tools" validate:"gte=0"`
	Bed                bool     `mapstructure:"bed"`
	Sensors            []string `mapstructure:"sensors" validate:"dive,oneof='Temperatures' 'Current State' 'Job Percentage' 'Time Remaining' 'Time Elapsed'"`
	BinarySensors      []string `mapstructure:"binary_sensors" validate:"dive,oneof='Printing' 'Printing Error'"`
}

// BaseURL returns the API root, e.g. http://octopi.local:80/api/.
func (o OctoPrintConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d%sapi/", scheme(o.SSL), o.Host, o.Port, o.Path)
}

type UnifiVideoConfig struct {
	Name               string `mapstructure:"name" validate:"required"`
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"min=1,max=65535"`
	APIKey             string `mapstructure:"api_key" validate:"required"`
	SSL                bool   `mapstructure:"ssl"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CameraPassword     string `mapstructure:"camera_password"`
	IDField            string `mapstructure:"id_field" validate:"oneof=id uuid"`
}

// BaseURL returns the NVR API root, e.g. http://nvr.local:7080/api/2.0/.
func (u UnifiVideoConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d%s", scheme(u.SSL), u.Host, u.Port, unifiVideoAPIPathVersion)
}

func scheme(ssl bool) string {
	if ssl {
		return "https"
	}
	return "http"
}

// LoadConfig reads .env, then config.yaml from DEVWATCH_CONFIG_PATH (default ./config),
// then DEVWATCH_* environment overrides. A missing config file is not an error.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Load(Path())
}

// Path returns the configuration directory: DEVWATCH_CONFIG_PATH or DefaultConfigPath.
func Path() string {
	return getEnvOrDefault(envPrefix+"_CONFIG_PATH", DefaultConfigPath)
}

// Load reads the configuration from the directory confPath.
func Load(confPath string) (*Config, error) {
	v := newViper(confPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		logger.WithComponent("config").Infof("No config file found in %s, using defaults and env vars", confPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	port, err := getEnvOrViperPort(v, "PORT", "server.port")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port = port

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(confPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType(ConfigType)
	v.AddConfigPath(confPath)

	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 12*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("polling.interval", 30*time.Second)
	v.SetDefault("polling.refresh_timeout", 10*time.Second)
	v.SetDefault("polling.cache_ttl", 30*time.Second)
	v.SetDefault("polling.request_timeout", 9*time.Second)
	v.SetDefault("polling.requests_per_minute", 0)

	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.gin_mode", "release")

	// DEVWATCH_POLLING_INTERVAL overrides polling.interval
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func (c *Config) applyDefaults() {
	for i := range c.OctoPrint {
		o := &c.OctoPrint[i]
		if o.Name == "" {
			o.Name = DefaultOctoPrintName
		}
		if o.Port == 0 {
			o.Port = DefaultOctoPrintPort
		}
		o.Path = NormalizePath(o.Path)
		if o.Sensors == nil {
			o.Sensors = append([]string(nil), AllSensors...)
		}
		if o.BinarySensors == nil {
			o.BinarySensors = append([]string(nil), AllBinarySensors...)
		}
	}
	for i := range c.UnifiVideo {
		u := &c.UnifiVideo[i]
		if u.Name == "" {
			u.Name = DefaultUnifiVideoName
		}
		if u.Port == 0 {
			u.Port = DefaultUnifiVideoPort
		}
		if u.CameraPassword == "" {
			u.CameraPassword = DefaultCameraPassword
		}
		if u.IDField == "" {
			u.IDField = DefaultCameraIDField
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server read/write/idle timeouts must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server request timeout must be positive")
	}

	if c.Polling.Interval <= 0 || c.Polling.RefreshTimeout <= 0 || c.Polling.CacheTTL <= 0 || c.Polling.RequestTimeout <= 0 {
		return errors.New("polling interval, refresh_timeout, cache_ttl and request_timeout must be positive")
	}
	if c.Polling.RefreshTimeout > c.Polling.Interval {
		return fmt.Errorf("polling refresh_timeout (%v) must not exceed interval (%v)", c.Polling.RefreshTimeout, c.Polling.Interval)
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := map[string]string{}
	for _, name := range c.DeviceNames() {
		slug := Slugify(name)
		if slug == "" {
			return fmt.Errorf("device name %q has no usable characters", name)
		}
		if prev, ok := seen[slug]; ok {
			return fmt.Errorf("device names %q and %q are not unique", prev, name)
		}
		seen[slug] = name
	}
	return nil
}

// DeviceNames returns the names of all configured devices, printers first.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.OctoPrint)+len(c.UnifiVideo))
	for _, o := range c.OctoPrint {
		names = append(names, o.Name)
	}
	for _, u := range c.UnifiVideo {
		names = append(names, u.Name)
	}
	return names
}

// NormalizePath makes p start and end with a slash.
func NormalizePath(p string) string {
	if p == "" {
		return defaultOctoPrintPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Slugify lowercases name and collapses every run of non-alphanumeric
// characters into a single underscore: "My Printer #2" becomes "my_printer_2".
func Slugify(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvOrViperPort(v *viper.Viper, envKey, viperKey string) (int, error) {
	if s := os.Getenv(envKey); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", envKey, s, err)
		}
		return port, nil
	}
	return v.GetInt(viperKey), nil
}
