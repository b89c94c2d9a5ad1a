package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the relay service.
type Config struct {
	App       AppConfig
	Platform  PlatformConfig
	Routing   RoutingConfig
	Gateway   GatewayConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Lifecycle LifecycleConfig
	Broadcast BroadcastConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PlatformConfig holds chat-platform API access values.
type PlatformConfig struct {
	Token          string
	BaseURL        string
	BotUserID      int64
	TimeoutSeconds int
}

// RoutingConfig identifies where tickets are materialized. WorkspaceID and
// CategoryID are required; the service refuses to start without a defined
// routing target. StaffRoleID may be absent, which degrades ticket
// visibility to the bot identity only.
type RoutingConfig struct {
	WorkspaceID   string
	CategoryID    string
	StaffRoleID   string
	OwnerIDs      []int64
	CommandPrefix string
}

// GatewayConfig controls the inbound event gateway.
type GatewayConfig struct {
	JWTSecret       string
	DedupTTLMinutes int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// LifecycleConfig tunes close behavior. CancelCloseOnActivity controls
// whether a pending delayed close is cancelled when the user sends a new
// message during the delay window.
type LifecycleConfig struct {
	CancelCloseOnActivity bool
	MaxCloseDelaySeconds  int
}

// BroadcastConfig paces owner broadcast fan-out.
type BroadcastConfig struct {
	InterSendDelayMillis int
}

// Load reads configuration from environment variables, applying defaults
// where possible and failing fast when a required routing value is missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	botUserID, err := requireEnvAsInt64("BOT_USER_ID")
	if err != nil {
		return nil, err
	}
	workspaceID, err := requireEnv("STAFF_SERVER_ID")
	if err != nil {
		return nil, err
	}
	categoryID, err := requireEnv("MODMAIL_CATEGORY_ID")
	if err != nil {
		return nil, err
	}
	token, err := requireEnv("PLATFORM_TOKEN")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := requireEnv("GATEWAY_JWT_SECRET")
	if err != nil {
		return nil, err
	}

	ownerIDs, err := parseIDList(os.Getenv("OWNER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid OWNER_IDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "modmail-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Platform: PlatformConfig{
			Token:          token,
			BaseURL:        getEnv("PLATFORM_BASE_URL", ""),
			BotUserID:      botUserID,
			TimeoutSeconds: getEnvAsInt("PLATFORM_TIMEOUT_SECONDS", 15),
		},
		Routing: RoutingConfig{
			WorkspaceID:   workspaceID,
			CategoryID:    categoryID,
			StaffRoleID:   os.Getenv("STAFF_ROLE_ID"),
			OwnerIDs:      ownerIDs,
			CommandPrefix: getEnv("COMMAND_PREFIX", "!"),
		},
		Gateway: GatewayConfig{
			JWTSecret:       jwtSecret,
			DedupTTLMinutes: getEnvAsInt("GATEWAY_DEDUP_TTL_MINUTES", 1440),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Lifecycle: LifecycleConfig{
			CancelCloseOnActivity: getEnvAsBool("CLOSE_CANCEL_ON_ACTIVITY", true),
			MaxCloseDelaySeconds:  getEnvAsInt("CLOSE_MAX_DELAY_SECONDS", 86400),
		},
		Broadcast: BroadcastConfig{
			InterSendDelayMillis: getEnvAsInt("BROADCAST_INTER_SEND_DELAY_MS", 500),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the platform API call timeout.
func (p PlatformConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// IsOwner reports whether the given user id is an elevated identity.
func (r RoutingConfig) IsOwner(userID int64) bool {
	for _, id := range r.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DedupTTL returns how long delivery ids are remembered.
func (g GatewayConfig) DedupTTL() time.Duration {
	if g.DedupTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(g.DedupTTLMinutes) * time.Minute
}

// InterSendDelay returns the pause between broadcast sends.
func (b BroadcastConfig) InterSendDelay() time.Duration {
	if b.InterSendDelayMillis <= 0 {
		return 0
	}
	return time.Duration(b.InterSendDelayMillis) * time.Millisecond
}

func requireEnv(key string) (string, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return val, nil
}

func requireEnvAsInt64(key string) (int64, error) {
	val, err := requireEnv(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
