package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config representa la configuración del servicio
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Logging    LoggingConfig
	SUNAT      SUNATConfig
	Compliance ComplianceConfig
	Webhook    WebhookConfig
	Email      EmailConfig
}

// ServerConfig representa la configuración del servidor HTTP
type ServerConfig struct {
	Port    string
	Host    string
	Env     string
	BaseURL string
}

// DatabaseConfig representa la configuración de la base de datos
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig representa la configuración de Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LoggingConfig representa la configuración de logging
type LoggingConfig struct {
	Level  string
	Format string
}

// SUNATConfig representa la configuración del servicio de SUNAT y de la
// política de reintentos del worker de envío
type SUNATConfig struct {
	APIURL         string
	AttemptTimeout time.Duration
	MaxAttempts    int
	Backoff        []time.Duration
	Workers        int
	QueueSize      int

	// Recuperación de envíos huérfanos: documentos QUEUED/SENT sin
	// actividad durante RecoverAfter se devuelven a la cola cada
	// RecoverInterval. RecoverAfter debe superar la duración máxima de un
	// ciclo de intentos completo.
	RecoverAfter    time.Duration
	RecoverInterval time.Duration
}

// ComplianceConfig representa los umbrales de bancarización por moneda y
// la tasa del ICBPER. Se inyectan para ser ajustables por región sin
// recompilar.
type ComplianceConfig struct {
	Thresholds map[string]decimal.Decimal
	ICBPERRate decimal.Decimal
}

// WebhookConfig representa los valores por defecto de las suscripciones
type WebhookConfig struct {
	DefaultTimeout    time.Duration
	DefaultMaxRetries int
	DefaultRetryDelay time.Duration
}

// EmailConfig representa la configuración de email
type EmailConfig struct {
	ResendAPIKey  string
	OperatorEmail string
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	// Cargar archivo .env si existe
	if err := godotenv.Load(); err != nil {
		// No es crítico si no existe el archivo .env
	}

	config := &Config{
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Env:     getEnv("SERVER_ENV", "development"),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PGHOST", "localhost"),
			Port:     getEnv("PGPORT", "5432"),
			User:     getEnv("PGUSER", "postgres"),
			Password: getEnv("PGPASSWORD", "postgres"),
			Name:     getEnv("PGDATABASE", "sunat_service"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		SUNAT: SUNATConfig{
			APIURL:          getEnv("SUNAT_API_URL", "https://e-factura.sunat.gob.pe"),
			AttemptTimeout:  getEnvAsDuration("SUNAT_ATTEMPT_TIMEOUT", 300*time.Second),
			MaxAttempts:     getEnvAsInt("SUNAT_MAX_ATTEMPTS", 3),
			Backoff:         getEnvAsDurations("SUNAT_BACKOFF", []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}),
			Workers:         getEnvAsInt("SUNAT_WORKERS", 4),
			QueueSize:       getEnvAsInt("SUNAT_QUEUE_SIZE", 256),
			RecoverAfter:    getEnvAsDuration("SUNAT_RECOVER_AFTER", 30*time.Minute),
			RecoverInterval: getEnvAsDuration("SUNAT_RECOVER_INTERVAL", 5*time.Minute),
		},
		Compliance: ComplianceConfig{
			Thresholds: getEnvAsDecimalMap("COMPLIANCE_THRESHOLDS", map[string]decimal.Decimal{
				"PEN": decimal.RequireFromString("2000.00"),
				"USD": decimal.RequireFromString("500.00"),
			}),
			ICBPERRate: getEnvAsDecimal("ICBPER_RATE", decimal.RequireFromString("0.50")),
		},
		Webhook: WebhookConfig{
			DefaultTimeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			DefaultMaxRetries: getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
			DefaultRetryDelay: getEnvAsDuration("WEBHOOK_RETRY_DELAY", 60*time.Second),
		},
		Email: EmailConfig{
			ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
			OperatorEmail: getEnv("OPERATOR_ALERT_EMAIL", ""),
		},
	}

	return config, nil
}

// getEnv obtiene una variable de entorno o retorna un valor por defecto
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt obtiene una variable de entorno como entero
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration obtiene una variable de entorno como duración
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsDurations parsea una lista de duraciones separadas por coma
// (ej. "30s,60s,120s")
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		duration, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, duration)
	}
	return out
}

// getEnvAsDecimal obtiene una variable de entorno como decimal
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsDecimalMap parsea pares MONEDA=MONTO separados por coma
// (ej. "PEN=2000.00,USD=500.00")
func getEnvAsDecimalMap(key string, defaultValue map[string]decimal.Decimal) map[string]decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(value, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return defaultValue
		}
		d, err := decimal.NewFromString(kv[1])
		if err != nil {
			return defaultValue
		}
		out[strings.ToUpper(kv[0])] = d
	}
	return out
}

// IsDevelopment retorna true si el entorno es de desarrollo
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction retorna true si el entorno es de producción
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetDSN retorna la cadena de conexión a la base de datos
func (c *Config) GetDSN() string {
	return "host=" + c.Database.Host +
		" port=" + c.Database.Port +
		" user=" + c.Database.User +
		" password=" + c.Database.Password +
		" dbname=" + c.Database.Name +
		" sslmode=" + c.Database.SSLMode
}

// GetRedisAddr retorna la dirección de Redis
func (c *Config) GetRedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}
