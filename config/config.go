package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/phillip/campus-events-go/lifecycle"
	"github.com/phillip/campus-events-go/notify"
	"github.com/phillip/campus-events-go/repository"
	"github.com/phillip/campus-events-go/utils"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type MailConfig struct {
	APIURL string
	APIKey string
	From   string
}

// Config holds the settings read from the environment plus the
// dependencies wired at startup that the handlers close over.
type Config struct {
	Port           string
	Store          string
	MongoURI       string
	DBName         string
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ResetTTL       time.Duration
	RequestTimeout time.Duration
	RedisURL       string
	LifecycleTopic string
	FrontendURL    string
	CORSOrigins    []string
	LogLevel       string
	Cloudinary     CloudinaryConfig
	Mail           MailConfig

	MongoClient   *mongo.Client
	Users         repository.UserRepository
	Events        repository.EventRepository
	Organizations repository.OrganizationRepository
	Lifecycle     *lifecycle.Service
	Uploader      utils.Uploader
	Mailer        notify.Mailer
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		Store:          strings.ToLower(getEnv("STORE", StoreMongo)),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:         getEnv("DB_NAME", "campus_events"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AccessTTL:      getEnvAsDuration("JWT_TTL", 2*time.Hour),
		RefreshTTL:     getEnvAsDuration("REFRESH_TTL", 7*24*time.Hour),
		ResetTTL:       getEnvAsDuration("RESET_TTL", time.Hour),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second),
		RedisURL:       os.Getenv("REDIS_URL"),
		LifecycleTopic: getEnv("LIFECYCLE_CHANNEL", "event_lifecycle"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:5173"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		},
		Mail: MailConfig{
			APIURL: os.Getenv("ZEPTO_API_URL"),
			APIKey: os.Getenv("ZEPTO_API_KEY"),
			From:   os.Getenv("EMAIL_FROM"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.Store != StoreMongo && c.Store != StoreMemory {
		return fmt.Errorf("unknown STORE %q (want %s or %s)", c.Store, StoreMongo, StoreMemory)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	// plain integers are seconds
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
