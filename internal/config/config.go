// Пакет config: загрузка и валидация конфигурации Vetting Module
// из переменных окружения (префикс VM_).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Vetting Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Максимальный размер multipart-загрузки в байтах
	MaxUploadSize int64

	// --- PostgreSQL (очередь на проверку) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула подключений
	DBMaxConns int
	DBMinConns int

	// --- Каталог (документное хранилище) ---

	// Базовый URL HTTP API хранилища (например, http://arangodb:8529)
	CatalogURL string
	// Имя базы данных в хранилище
	CatalogDatabase string
	// Коллекция канонических записей
	CatalogCollection string
	// Учётные данные (пустой логин: запросы без авторизации)
	CatalogUsername string
	CatalogPassword string
	// Таймаут HTTP-запросов к хранилищу
	CatalogTimeout time.Duration

	// --- Проверка и слияние ---

	// Радиус пространственного совпадения в угловых секундах
	MatchRadiusArcsec float64
	// Потолок длительности одного утверждения
	ApproveTimeout time.Duration
	// Количество параллельных обработчиков утверждений
	ApproveWorkers int
	// Время хранения статусов заданий утверждения
	JobTTL time.Duration
	// Суффиксы email, для которых пропускается синтаксическая проверка
	EmailBypassSuffixes []string
	// Путь к YAML-каталогу полей (опционально, иначе встроенный)
	FieldCatalogPath string

	// --- Кэш ---

	CacheMaxSize int
	CacheTTL     time.Duration

	// --- JWT (проверяющие) ---

	// URL JWKS endpoint
	JWTJWKSURL string
	// Scope, дающий право на проверку заявок
	JWTVetScope string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Путь к CA-сертификату (опционально)
	CACertPath string
	// Пропускать проверку TLS-сертификатов
	TLSSkipVerify bool

	// --- Redis (уведомления проверяющих) ---

	// Адрес Redis (пустая строка: уведомления отключены)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Имя stream для событий о новых заявках
	RedisStream string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- HTTP-сервер ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// VM_PORT: порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("VM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("VM_PORT: %w", err)
	}
	if cfg.Port < 8040 || cfg.Port > 8049 {
		return nil, fmt.Errorf("VM_PORT: значение %d вне допустимого диапазона 8040-8049", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("VM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("VM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("VM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("VM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	maxUpload, err := getEnvInt("VM_MAX_UPLOAD_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("VM_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload < 1024 {
		return nil, fmt.Errorf("VM_MAX_UPLOAD_SIZE: значение %d меньше минимума 1024", maxUpload)
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("VM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("VM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("VM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("VM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("VM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("VM_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("VM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("VM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("VM_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("VM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("VM_DB_MAX_CONNS: должно быть не меньше 1, получено %d", cfg.DBMaxConns)
	}
	cfg.DBMinConns, err = getEnvInt("VM_DB_MIN_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("VM_DB_MIN_CONNS: %w", err)
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("VM_DB_MIN_CONNS: должно быть в диапазоне 0..%d, получено %d", cfg.DBMaxConns, cfg.DBMinConns)
	}

	// --- Каталог ---

	if cfg.CatalogURL, err = getEnvRequired("VM_CATALOG_URL"); err != nil {
		return nil, err
	}
	cfg.CatalogURL = strings.TrimRight(cfg.CatalogURL, "/")
	if u, parseErr := url.Parse(cfg.CatalogURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("VM_CATALOG_URL: некорректный URL %q", cfg.CatalogURL)
	}

	cfg.CatalogDatabase = getEnvDefault("VM_CATALOG_DATABASE", "otter")
	cfg.CatalogCollection = getEnvDefault("VM_CATALOG_COLLECTION", "transients")
	cfg.CatalogUsername = getEnvDefault("VM_CATALOG_USERNAME", "")
	cfg.CatalogPassword = getEnvDefault("VM_CATALOG_PASSWORD", "")

	cfg.CatalogTimeout, err = getEnvDuration("VM_CATALOG_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_CATALOG_TIMEOUT: %w", err)
	}

	// --- Проверка и слияние ---

	// VM_MATCH_RADIUS_ARCSEC: радиус совпадения (по умолчанию 5″)
	cfg.MatchRadiusArcsec, err = getEnvFloat("VM_MATCH_RADIUS_ARCSEC", 5)
	if err != nil {
		return nil, fmt.Errorf("VM_MATCH_RADIUS_ARCSEC: %w", err)
	}
	if cfg.MatchRadiusArcsec <= 0 || cfg.MatchRadiusArcsec > 3600 {
		return nil, fmt.Errorf("VM_MATCH_RADIUS_ARCSEC: значение %g вне диапазона (0, 3600]", cfg.MatchRadiusArcsec)
	}

	cfg.ApproveTimeout, err = getEnvDuration("VM_APPROVE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VM_APPROVE_TIMEOUT: %w", err)
	}

	cfg.ApproveWorkers, err = getEnvInt("VM_APPROVE_WORKERS", 2)
	if err != nil {
		return nil, fmt.Errorf("VM_APPROVE_WORKERS: %w", err)
	}
	if cfg.ApproveWorkers < 1 || cfg.ApproveWorkers > 32 {
		return nil, fmt.Errorf("VM_APPROVE_WORKERS: значение %d вне диапазона 1-32", cfg.ApproveWorkers)
	}

	cfg.JobTTL, err = getEnvDuration("VM_JOB_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("VM_JOB_TTL: %w", err)
	}

	cfg.EmailBypassSuffixes = parseCSV(getEnvDefault("VM_EMAIL_BYPASS_SUFFIXES", ""))
	cfg.FieldCatalogPath = getEnvDefault("VM_FIELD_CATALOG_PATH", "")

	// --- Кэш ---

	cfg.CacheMaxSize, err = getEnvInt("VM_CACHE_MAX_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("VM_CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("VM_CACHE_MAX_SIZE: значение %d должно быть положительным", cfg.CacheMaxSize)
	}
	cfg.CacheTTL, err = getEnvDuration("VM_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VM_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	if cfg.JWTJWKSURL, err = getEnvRequired("VM_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	cfg.JWTVetScope = getEnvDefault("VM_JWT_VET_SCOPE", "otter:vet")

	cfg.JWTLeeway, err = getEnvDuration("VM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("VM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("VM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.CACertPath = getEnvDefault("VM_CA_CERT_PATH", "")
	cfg.TLSSkipVerify, err = getEnvBool("VM_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("VM_TLS_SKIP_VERIFY: %w", err)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("VM_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("VM_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("VM_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("VM_REDIS_DB: %w", err)
	}
	cfg.RedisStream = getEnvDefault("VM_REDIS_STREAM", "otter:submissions")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("VM_DEPHEALTH_GROUP", "otter")
	cfg.DephealthCheckInterval, err = getEnvDuration("VM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP-сервер ---

	cfg.HTTPReadTimeout, err = getEnvDuration("VM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("VM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("VM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("VM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// NotificationsEnabled сообщает, настроен ли Redis для уведомлений.
func (c *Config) NotificationsEnabled() bool {
	return c.RedisAddr != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
