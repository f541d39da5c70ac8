package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string // base for emailed quiz links
	SiteID    string
	LogLevel  string

	DBDriver string
	DBDSN    string

	BlobBasePath        string
	DefaultCertTemplate string // blob key under templates/, "" uses the built-in text

	AuthHMACSecret     string
	AdminUser          string
	AdminPassHash      string // bcrypt
	InstructorUser     string
	InstructorPassHash string // bcrypt, optional

	CORSOrigins []string

	PassThreshold float64
	StrictQuota   bool

	SMTP SMTPConfig

	RabbitURL      string
	RabbitExchange string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound mail should go through SMTP.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// Load reads an optional .env file and then builds the config from the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:      mode,
		HTTPAddr:  envOr("HTTP_ADDR", ":8080"),
		PublicURL: strings.TrimSuffix(envOr("PUBLIC_URL", "http://localhost:8080"), "/"),
		SiteID:    envOr("SITE_ID", "local"),
		LogLevel:  envOr("LOG_LEVEL", "info"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		BlobBasePath:        envOr("BLOB_BASE_PATH", "./data"),
		DefaultCertTemplate: os.Getenv("DEFAULT_CERT_TEMPLATE"),

		AuthHMACSecret:     offlineOr(mode, "AUTH_HMAC_SECRET", devHMACSecret),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      offlineOr(mode, "ADMIN_PASS_HASH", devAdminPassHash),
		InstructorUser:     os.Getenv("INSTRUCTOR_USER"),
		InstructorPassHash: os.Getenv("INSTRUCTOR_PASS_HASH"),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000"),

		PassThreshold: envFloat("PASS_THRESHOLD", 0.80),
		StrictQuota:   envBool("STRICT_QUOTA", false),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envOr("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envOr("SMTP_FROM", "safety-test@localhost"),
		},

		RabbitURL:      os.Getenv("RABBITMQ_URI"),
		RabbitExchange: envOr("RABBITMQ_EXCHANGE", "safetytest.events"),
	}
}

// Development credentials, used only in offline mode.
const (
	devHMACSecret    = "supersecret-dev-key"
	devAdminPassHash = "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"
)

// offlineOr falls back to def only in offline mode; online an unset key stays empty.
func offlineOr(mode Mode, k, def string) string {
	if mode == ModeOffline {
		return envOr(k, def)
	}
	return os.Getenv(k)
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envFloat(k string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(k)), 64)
	if err != nil || v <= 0 || v > 1 {
		return def
	}
	return v
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
