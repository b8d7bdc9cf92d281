package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server содержит настройки HTTP-сервера.
type Server struct {
	Address string `mapstructure:"address"`
	Debug   bool   `mapstructure:"debug"`
}

// DB содержит параметры подключения к БД.
type DB struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Storage описывает настройки хранилища файлов (логотипы и готовые отчеты).
type Storage struct {
	Type     string `mapstructure:"type"`
	BasePath string `mapstructure:"basepath"`
	S3       S3     `mapstructure:"s3"`
}

// S3 содержит настройки для S3-совместимого хранилища.
type S3 struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Logging содержит настройки логирования.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Grafana содержит параметры доступа к Grafana API.
type Grafana struct {
	URL             string        `mapstructure:"url"`
	APIKey          string        `mapstructure:"api_key"`
	DatasourceTypes []string      `mapstructure:"datasource_types"`
	RequestsPerSec  float64       `mapstructure:"requests_per_second"`
	Burst           int           `mapstructure:"burst"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Upload ограничивает загрузку логотипов на стороне сервера.
type Upload struct {
	MaxSize    int64    `mapstructure:"max_size"`
	Extensions []string `mapstructure:"extensions"`
}

// Report содержит настройки генерации отчетов.
type Report struct {
	DefaultTitle     string `mapstructure:"default_title"`
	FetchConcurrency int    `mapstructure:"fetch_concurrency"`
}

// Wizard содержит настройки клиента-визарда.
type Wizard struct {
	APIURL         string        `mapstructure:"api_url"`
	StatePath      string        `mapstructure:"state_path"`
	DownloadDir    string        `mapstructure:"download_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Config объединяет все разделы конфигурации.
type Config struct {
	Server  Server  `mapstructure:"server"`
	DB      DB      `mapstructure:"database"`
	Storage Storage `mapstructure:"storage"`
	Logging Logging `mapstructure:"logging"`
	Grafana Grafana `mapstructure:"grafana"`
	Upload  Upload  `mapstructure:"upload"`
	Report  Report  `mapstructure:"report"`
	Wizard  Wizard  `mapstructure:"wizard"`
}

// Load читает конфигурацию из файла и окружения с помощью viper.
func Load() (Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/report-wizard")

	// Настройка для environment variables
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()
	bindEnvironmentVariables()

	// Чтение файла конфигурации (опционально)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("server.debug", false)

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "report_wizard.db")

	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.basepath", "./data")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "report-wizard")
	viper.SetDefault("storage.s3.endpoint", "")
	viper.SetDefault("storage.s3.access_key", "")
	viper.SetDefault("storage.s3.secret_key", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("grafana.url", "http://localhost:3000")
	viper.SetDefault("grafana.api_key", "")
	viper.SetDefault("grafana.datasource_types", []string{"grafana-opensearch-datasource", "elasticsearch"})
	viper.SetDefault("grafana.requests_per_second", 10.0)
	viper.SetDefault("grafana.burst", 5)
	viper.SetDefault("grafana.timeout", 30*time.Second)

	viper.SetDefault("upload.max_size", 16*1024*1024)
	viper.SetDefault("upload.extensions", []string{"png", "jpg", "jpeg", "svg"})

	viper.SetDefault("report.default_title", "Security Report")
	viper.SetDefault("report.fetch_concurrency", 4)

	viper.SetDefault("wizard.api_url", "http://localhost:8000")
	viper.SetDefault("wizard.state_path", "report_wizard.bolt")
	viper.SetDefault("wizard.download_dir", ".")
	viper.SetDefault("wizard.request_timeout", 0)
}

// bindEnvironmentVariables привязывает переменные окружения к конфигурации
func bindEnvironmentVariables() {
	viper.BindEnv("server.address", "APP_SERVER_ADDRESS")
	viper.BindEnv("server.debug", "APP_SERVER_DEBUG")

	viper.BindEnv("database.driver", "APP_DATABASE_DRIVER")
	viper.BindEnv("database.dsn", "APP_DATABASE_DSN")

	viper.BindEnv("storage.type", "APP_STORAGE_TYPE")
	viper.BindEnv("storage.basepath", "APP_STORAGE_BASEPATH")
	viper.BindEnv("storage.s3.region", "APP_STORAGE_S3_REGION")
	viper.BindEnv("storage.s3.bucket", "APP_STORAGE_S3_BUCKET")
	viper.BindEnv("storage.s3.endpoint", "APP_STORAGE_S3_ENDPOINT")
	viper.BindEnv("storage.s3.access_key", "APP_STORAGE_S3_ACCESS_KEY")
	viper.BindEnv("storage.s3.secret_key", "APP_STORAGE_S3_SECRET_KEY")

	viper.BindEnv("logging.level", "APP_LOGGING_LEVEL")
	viper.BindEnv("logging.format", "APP_LOGGING_FORMAT")

	// Grafana: оставляем привычные имена из .env старого сервиса
	viper.BindEnv("grafana.url", "APP_GRAFANA_URL", "GRAFANA_URL")
	viper.BindEnv("grafana.api_key", "APP_GRAFANA_API_KEY", "GRAFANA_API_KEY")

	viper.BindEnv("wizard.api_url", "APP_WIZARD_API_URL")
	viper.BindEnv("wizard.state_path", "APP_WIZARD_STATE_PATH")
	viper.BindEnv("wizard.download_dir", "APP_WIZARD_DOWNLOAD_DIR")
}

// validateConfig проверяет корректность конфигурации
func validateConfig(cfg Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "sqlite" {
		return fmt.Errorf("database driver must be 'postgres' or 'sqlite', got: %s", cfg.DB.Driver)
	}

	if cfg.DB.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	if cfg.Storage.Type != "local" && cfg.Storage.Type != "s3" {
		return fmt.Errorf("storage type must be 'local' or 's3', got: %s", cfg.Storage.Type)
	}

	if cfg.Storage.Type == "local" && cfg.Storage.BasePath == "" {
		return fmt.Errorf("storage basepath cannot be empty for local storage")
	}

	if cfg.Storage.Type == "s3" {
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("S3 region cannot be empty")
		}
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
	}

	if cfg.Grafana.URL == "" {
		return fmt.Errorf("grafana url cannot be empty")
	}

	if cfg.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload max_size must be positive, got: %d", cfg.Upload.MaxSize)
	}

	if cfg.Report.FetchConcurrency <= 0 {
		return fmt.Errorf("report fetch_concurrency must be positive, got: %d", cfg.Report.FetchConcurrency)
	}

	if cfg.Wizard.APIURL == "" {
		return fmt.Errorf("wizard api_url cannot be empty")
	}

	// Проверка уровня логирования
	validLogLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	isValidLevel := false
	for _, level := range validLogLevels {
		if strings.ToLower(cfg.Logging.Level) == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid logging level: %s. Valid levels: %v", cfg.Logging.Level, validLogLevels)
	}

	return nil
}

// IsDevelopment возвращает true, если приложение запущено в режиме разработки
func (c Config) IsDevelopment() bool {
	return c.Server.Debug
}

// String возвращает строковое представление конфигурации (без чувствительных данных)
func (c Config) String() string {
	return fmt.Sprintf("Config{Server: %+v, DB: {Driver: %s, DSN: [HIDDEN]}, Storage: {Type: %s, BasePath: %s, Bucket: %s}, Grafana: {URL: %s, APIKey: [HIDDEN]}, Logging: %+v}",
		c.Server, c.DB.Driver, c.Storage.Type, c.Storage.BasePath, c.Storage.S3.Bucket, c.Grafana.URL, c.Logging)
}
