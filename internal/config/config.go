package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config aggregates runtime configuration for the engine and supporting services.
type Config struct {
	StoreDriver string
	MySQLDSN    string

	ListenAddr        string
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	JWTTTL            time.Duration
	RateLimitPerMin   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	FeaturesPath         string
	PointsPerActivity    int64
	CodePrefix           string
	StreakMultiDayBridge bool
	Timezone             string

	TelegramBotToken string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UsePathStyle bool
	S3Prefix       string
	ArchiveEnabled bool
	ArchiveAt      string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		StoreDriver:          strings.ToLower(getEnv("STORE_DRIVER", StoreMySQL)),
		MySQLDSN:             os.Getenv("MYSQL_DSN"),
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:    os.Getenv("ADMIN_PASSWORD_HASH"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTTTL:               time.Hour * time.Duration(getInt("JWT_TTL_HOURS", 24*30)),
		RateLimitPerMin:      getInt("RATE_LIMIT_PER_MINUTE", 120),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		CacheTTL:             time.Second * time.Duration(getInt("CACHE_TTL_SECONDS", 60)),
		FeaturesPath:         getEnv("FEATURES_PATH", filepath.Join("configs", "features.yaml")),
		PointsPerActivity:    getInt64("POINTS_PER_ACTIVITY", 10),
		CodePrefix:           strings.ToUpper(getEnv("CODE_PREFIX", "FT")),
		StreakMultiDayBridge: getBool("STREAK_MULTI_DAY_BRIDGE", false),
		Timezone:             getEnv("TIMEZONE", "UTC"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "ledger"),
		ArchiveEnabled:       getBool("ARCHIVE_ENABLED", false),
		ArchiveAt:            getEnv("ARCHIVE_AT", "00:15"),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPath:              os.Getenv("LOG_PATH"),
		LogMaxSizeMB:         getInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:        getInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:        getInt("LOG_MAX_AGE_DAYS", 28),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	switch c.StoreDriver {
	case StoreMySQL:
		if c.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.AdminPasswordHash == "" {
		missing = append(missing, "ADMIN_PASSWORD_HASH")
	}
	if c.ArchiveEnabled {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if _, err := time.Parse("15:04", c.ArchiveAt); err != nil {
		return fmt.Errorf("invalid ARCHIVE_AT %q: %w", c.ArchiveAt, err)
	}
	return nil
}

// Location returns the timezone calendar days are computed in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first env file found. Running without one is fine;
// the process environment is used as is.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
