package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // devices often ship without a zoneinfo database

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for jarrariumd.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	LogFormat  string         `mapstructure:"log_format"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Location   LocationConfig `mapstructure:"location"`
	Photos     PhotosConfig   `mapstructure:"photos"`
	Sensors    SensorsConfig  `mapstructure:"sensors"`
	Cameras    CamerasConfig  `mapstructure:"cameras"`
	Schedule   ScheduleConfig `mapstructure:"schedule"`
	Restart    RestartConfig  `mapstructure:"restart"`
}

// StorageConfig defines the database backend.
type StorageConfig struct {
	Driver         string         `mapstructure:"driver"` // "mysql", "postgres" or "sqlite"
	MySQL          MySQLConfig    `mapstructure:"mysql"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
	SQLite         SQLiteConfig   `mapstructure:"sqlite"`
	ConnectTimeout time.Duration  `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration  `mapstructure:"write_timeout"`
	MaxErrorBytes  int            `mapstructure:"max_error_bytes"`
	AutoMigrate    bool           `mapstructure:"auto_migrate"`
}

// MySQLConfig holds MySQL connection parameters.
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	Charset  string `mapstructure:"charset"`
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LocationConfig is where the tank is, for sunrise and sunset.
type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Timezone  string  `mapstructure:"timezone"`
}

// PhotosConfig configures the photo library uploads.
type PhotosConfig struct {
	AuthFile       string `mapstructure:"auth_file"`
	CollectionName string `mapstructure:"collection_name"`
	APIURL         string `mapstructure:"api_url"`
}

// ProbeConfig is one EZO circuit.
type ProbeConfig struct {
	Name    string `mapstructure:"name"`
	Address uint16 `mapstructure:"address"`
}

// SensorsConfig configures the I2C probes.
type SensorsConfig struct {
	Bus       string        `mapstructure:"bus"`
	ReadDelay time.Duration `mapstructure:"read_delay"`
	Probes    []ProbeConfig `mapstructure:"probes"`
}

// CamerasConfig configures both cameras.
type CamerasConfig struct {
	Ribbon RibbonCameraConfig `mapstructure:"ribbon"`
	USB    USBCameraConfig    `mapstructure:"usb"`
}

// RibbonCameraConfig configures the CSI camera.
type RibbonCameraConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Command string `mapstructure:"command"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
}

// USBCameraConfig configures the USB webcam.
type USBCameraConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	DeviceName string `mapstructure:"device_name"`
	Resolution string `mapstructure:"resolution"`
	SkipFrames int    `mapstructure:"skip_frames"`
}

// ScheduleConfig controls cycle timing.
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// RestartConfig controls the reboot on fatal failure.
type RestartConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Command []string `mapstructure:"command"`
}

var defaults = map[string]any{
	"listen_addr":             ":8080",
	"log_format":              "json",
	"storage.driver":          "mysql",
	"storage.mysql.host":      "localhost",
	"storage.mysql.port":      3306,
	"storage.mysql.user":      "",
	"storage.mysql.password":  "",
	"storage.mysql.db":        "",
	"storage.mysql.charset":   "utf8mb4",
	"storage.postgres.dsn":    "",
	"storage.sqlite.path":     "",
	"storage.connect_timeout": "60s",
	"storage.read_timeout":    "30s",
	"storage.write_timeout":   "30s",
	"storage.max_error_bytes": 16777214,
	"storage.auto_migrate":    true,
	"location.latitude":       0.0,
	"location.longitude":      0.0,
	"location.timezone":       "UTC",
	"photos.auth_file":        "token.json",
	"photos.collection_name":  "aquarium",
	"photos.api_url":          "https://photoslibrary.googleapis.com",
	"sensors.bus":             "",
	"sensors.read_delay":      "1.5s",
	"sensors.probes":          []map[string]any{{"name": "DO", "address": 97}, {"name": "pH", "address": 99}, {"name": "RTD", "address": 102}},
	"cameras.ribbon.enabled":  true,
	"cameras.ribbon.dir":      "./cam-photos/ribbon/",
	"cameras.ribbon.command":  "libcamera-still",
	"cameras.ribbon.width":    3280,
	"cameras.ribbon.height":   2464,
	"cameras.usb.enabled":     true,
	"cameras.usb.dir":         "./cam-photos/usb/",
	"cameras.usb.device_name": "HD Webcam C525",
	"cameras.usb.resolution":  "1920x1080",
	"cameras.usb.skip_frames": 20,
	"schedule.interval":       "5m",
	"restart.enabled":         true,
	"restart.command":         []string{"sudo", "reboot"},
}

// Load reads configuration from flag path, env vars, then default file paths.
// Precedence: flag → $JARRARIUM_CONFIG env → ~/.config/jarrarium/config.yaml → /etc/jarrarium/config.yaml
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// Env var support: storage.mysql.password -> JARRARIUM_STORAGE_MYSQL_PASSWORD.
	v.SetEnvPrefix("JARRARIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv("JARRARIUM_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "jarrarium"))
		}
		v.AddConfigPath("/etc/jarrarium")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		// The file holds database credentials.
		if cfgPath := v.ConfigFileUsed(); cfgPath != "" {
			if info, err := os.Stat(cfgPath); err == nil {
				perm := info.Mode().Perm()
				if perm&0004 != 0 {
					slog.Warn("config file is world-readable", "path", cfgPath, "permissions", fmt.Sprintf("%04o", perm))
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete and correct.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql":
		m := c.Storage.MySQL
		if m.Host == "" || m.User == "" || m.DB == "" {
			return fmt.Errorf("storage.mysql.host, user and db are required for mysql driver")
		}
		if m.Port <= 0 || m.Port > 65535 {
			return fmt.Errorf("storage.mysql.port %d is out of range", m.Port)
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite driver")
		}
		dir := filepath.Dir(c.Storage.SQLite.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("creating storage directory %q: %w", dir, err)
			}
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be 'mysql', 'postgres' or 'sqlite', got %q", c.Storage.Driver)
	}
	if c.Storage.MaxErrorBytes <= 0 {
		return fmt.Errorf("storage.max_error_bytes must be positive")
	}

	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude %v is outside [-90, 90]", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude %v is outside [-180, 180]", c.Location.Longitude)
	}
	if _, err := c.TimeZone(); err != nil {
		return err
	}

	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}

	seen := make(map[uint16]string, len(c.Sensors.Probes))
	for i, p := range c.Sensors.Probes {
		if p.Name == "" {
			return fmt.Errorf("sensors.probes[%d]: name is required", i)
		}
		if prev, ok := seen[p.Address]; ok {
			return fmt.Errorf("sensors.probes[%d]: address %d already used by %s", i, p.Address, prev)
		}
		seen[p.Address] = p.Name
	}

	if c.Restart.Enabled && len(c.Restart.Command) == 0 {
		return fmt.Errorf("restart.command is required when restart is enabled")
	}

	// An empty listen_addr disables the status endpoint.
	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("listen_addr %q is not a valid address: %w", c.ListenAddr, err)
		}
	}

	return nil
}

// TimeZone loads the configured location's time zone.
func (c *Config) TimeZone() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location.Timezone)
	if err != nil {
		return nil, fmt.Errorf("location.timezone %q: %w", c.Location.Timezone, err)
	}
	return loc, nil
}

// DriverName returns the database/sql driver for the configured backend.
func (c *Config) DriverName() string {
	switch c.Storage.Driver {
	case "postgres":
		return "pgx"
	default:
		return c.Storage.Driver
	}
}

// DSN returns the appropriate DSN for the configured storage driver.
func (c *Config) DSN() string {
	switch c.Storage.Driver {
	case "mysql":
		m := c.Storage.MySQL
		mc := mysql.NewConfig()
		mc.User = m.User
		mc.Passwd = m.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
		mc.DBName = m.DB
		mc.Timeout = c.Storage.ConnectTimeout
		mc.ReadTimeout = c.Storage.ReadTimeout
		mc.WriteTimeout = c.Storage.WriteTimeout
		mc.ParseTime = true
		if m.Charset != "" {
			mc.Params = map[string]string{"charset": m.Charset}
		}
		return mc.FormatDSN()
	case "sqlite":
		return c.Storage.SQLite.Path
	case "postgres":
		return c.Storage.Postgres.DSN
	default:
		return ""
	}
}
