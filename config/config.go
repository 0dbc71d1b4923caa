package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Mongo      MongoConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OTP        OTPConfig
	AWS        AWSConfig
	Email      EmailConfig
	SlipVerify SlipVerifyConfig
	PromptPay  PromptPayConfig
	Escrow     EscrowConfig
	Worker     WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	PublicBaseURL      string // used to build ticket QR links
}

// MongoConfig holds the document store connection.
type MongoConfig struct {
	URI      string
	Database string
}

// DatabaseConfig holds the PostgreSQL payout ledger connection. Empty URL disables the ledger.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// OTPConfig controls one-time login codes.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// AWSConfig holds AWS credentials and the image bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ImagesBucket         string
	PresignExpireMinutes int
}

// EmailConfig for SendGrid delivery. Empty APIKey logs emails instead of sending.
type EmailConfig struct {
	FromAddress string
	FromName    string
	APIKey      string
}

// SlipVerifyConfig points at the external bank-slip recognition API.
type SlipVerifyConfig struct {
	URL             string
	APIKey          string
	ReceiverAccount string // expected receiving account or PromptPay proxy, digits only compared
	ReceiverName    string
	TimeoutSeconds  int
}

// PromptPayConfig is the merchant identity encoded in payment QR codes.
type PromptPayConfig struct {
	ID string // phone number or 13-digit tax id
}

// EscrowConfig controls the payout hold.
type EscrowConfig struct {
	HoldDays     int
	ReleaseCron  string // robfig/cron spec with seconds field
	ReleaseBatch int
}

// WorkerConfig controls whether cmd/server runs the queue consumer and scheduler in-process.
type WorkerConfig struct {
	Embedded bool
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
			Database: getEnv("MONGODB_DB", "campverse"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24*7),
		},
		OTP: OTPConfig{
			TTL:         time.Duration(getEnvInt("OTP_TTL_MINUTES", 10)) * time.Minute,
			MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 5),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "ap-southeast-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ImagesBucket:         getEnv("AWS_S3_IMAGES_BUCKET", "campverse-images"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Campverse"),
			APIKey:      getEnv("SENDGRID_API_KEY", ""),
		},
		SlipVerify: SlipVerifyConfig{
			URL:             getEnv("SLIP_VERIFY_URL", ""),
			APIKey:          getEnv("SLIP_VERIFY_API_KEY", ""),
			ReceiverAccount: getEnv("SLIP_RECEIVER_ACCOUNT", ""),
			ReceiverName:    getEnv("SLIP_RECEIVER_NAME", ""),
			TimeoutSeconds:  getEnvInt("SLIP_VERIFY_TIMEOUT_SEC", 20),
		},
		PromptPay: PromptPayConfig{
			ID: getEnv("PROMPTPAY_ID", ""),
		},
		Escrow: EscrowConfig{
			HoldDays:     getEnvInt("ESCROW_HOLD_DAYS", 15),
			ReleaseCron:  getEnv("ESCROW_RELEASE_CRON", "0 */15 * * * *"),
			ReleaseBatch: getEnvInt("ESCROW_RELEASE_BATCH", 200),
		},
		Worker: WorkerConfig{
			Embedded: getEnvBool("WORKER_EMBEDDED", true),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
