// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fprint-service/internal/driver/bulkimg"
	"fprint-service/internal/driver/r30x"
	"fprint-service/internal/driver/virtual"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Drivers   DriversConfig   `mapstructure:"drivers"`
	Enroll    EnrollConfig    `mapstructure:"enroll"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// StorageConfig selects where enrolled prints are kept
type StorageConfig struct {
	Backend string            `mapstructure:"backend"`
	File    FileStorageConfig `mapstructure:"file"`
}

// FileStorageConfig configures the directory print store
type FileStorageConfig struct {
	Root string `mapstructure:"root"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DiscoveryConfig controls which scanners run
type DiscoveryConfig struct {
	Timeout time.Duration          `mapstructure:"timeout"`
	USB     USBDiscoveryConfig     `mapstructure:"usb"`
	Serial  SerialDiscoveryConfig  `mapstructure:"serial"`
	Virtual VirtualDiscoveryConfig `mapstructure:"virtual"`
}

// USBDiscoveryConfig represents USB scanning configuration
type USBDiscoveryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`

	// IOTimeout bounds each bulk transfer on devices the scan reports. Zero
	// leaves transfers bounded by the caller, as finger waits need.
	IOTimeout time.Duration `mapstructure:"io_timeout"`
}

// SerialDiscoveryConfig represents serial port scanning configuration
type SerialDiscoveryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Ports   []string `mapstructure:"ports"`

	// BaudRate overrides drivers.<name>.baud_rate when set
	BaudRate int           `mapstructure:"baud_rate"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Bridges lists USB-UART adapters, as "vvvv:pppp", whose ports are
	// checked without being listed in Ports
	Bridges []string `mapstructure:"bridges"`
}

// VirtualDiscoveryConfig lists frame directories served as virtual sensors
type VirtualDiscoveryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Dirs    []string `mapstructure:"dirs"`
}

// DriversConfig carries per-driver tuning
type DriversConfig struct {
	Virtual virtual.Config `mapstructure:"virtual"`
	R30x    r30x.Config    `mapstructure:"r30x"`
	BulkImg bulkimg.Config `mapstructure:"bulkimg"`
}

// EnrollConfig is the retry policy the HTTP service applies
type EnrollConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	Timeout       time.Duration `mapstructure:"timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load reads configuration from path, or from config.yaml in the usual
// locations when path is empty, and from FPRINT_* environment variables.
// A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fprint-service")
	}

	// Environment variable support
	v.SetEnvPrefix("FPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "fprint")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")

	// Storage defaults
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.file.root", "./data/prints")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Discovery defaults
	v.SetDefault("discovery.timeout", "10s")
	v.SetDefault("discovery.usb.enabled", true)
	v.SetDefault("discovery.usb.timeout", "5s")
	v.SetDefault("discovery.usb.workers", 4)
	v.SetDefault("discovery.usb.io_timeout", "0s")
	v.SetDefault("discovery.serial.enabled", true)
	v.SetDefault("discovery.serial.ports", []string{})
	v.SetDefault("discovery.serial.timeout", "2s")
	v.SetDefault("discovery.serial.bridges", []string{"10c4:ea60", "1a86:7523"})
	v.SetDefault("discovery.virtual.enabled", false)
	v.SetDefault("discovery.virtual.dirs", []string{})

	// Driver defaults; zero values left here are filled from the
	// drivers' own default tags
	v.SetDefault("drivers.virtual.stages", 3)
	v.SetDefault("drivers.r30x.baud_rate", 57600)
	v.SetDefault("drivers.bulkimg.stages", 5)

	// Enroll policy defaults
	v.SetDefault("enroll.max_retries", 5)
	v.SetDefault("enroll.timeout", "120s")
	v.SetDefault("enroll.verify_timeout", "30s")

	// App defaults
	v.SetDefault("app.name", "fprint-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validBackends := []string{"file", "postgres"}
	if !slices.Contains(validBackends, config.Storage.Backend) {
		return fmt.Errorf("storage.backend must be one of: %v", validBackends)
	}
	if config.Storage.Backend == "file" && config.Storage.File.Root == "" {
		return fmt.Errorf("storage.file.root is required for the file backend")
	}
	if config.Storage.Backend == "postgres" && config.Database.Host == "" {
		return fmt.Errorf("database.host is required for the postgres backend")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Enroll.MaxRetries < 0 {
		return fmt.Errorf("enroll.max_retries must not be negative")
	}
	if config.Discovery.USB.Workers < 1 {
		return fmt.Errorf("discovery.usb.workers must be at least 1")
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return c.Database.DSN()
}

// DSN is the lib/pq connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
