package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Facebook
	FacebookAppID       string
	FacebookAppSecret   string
	FacebookRedirectURL string
	GraphAPIVersion     string
	GraphTimeout        time.Duration

	// Session
	SessionSecret          string
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Insights panel
	DefaultDate       string
	AutoLogin         bool
	ControllerIdleTTL time.Duration

	// Rate Limit
	RateLimitGeneral  int
	RateLimitInsights int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、欠けているものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	required := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"FACEBOOK_APP_SECRET", &cfg.FacebookAppSecret},
		{"FACEBOOK_REDIRECT_URL", &cfg.FacebookRedirectURL},
		{"SESSION_SECRET", &cfg.SessionSecret},
		{"BASE_URL", &cfg.BaseURL},
	}
	var missing []string
	for _, r := range required {
		*r.dst = os.Getenv(r.key)
		if *r.dst == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}

	cfg.FacebookAppID = envOr("FACEBOOK_APP_ID", "857117662704495", identity)
	cfg.GraphAPIVersion = envOr("GRAPH_API_VERSION", "v19.0", identity)
	cfg.GraphTimeout = envOr("GRAPH_TIMEOUT", 10*time.Second, time.ParseDuration)
	cfg.SessionMaxAge = envOr("SESSION_MAX_AGE", 86400, strconv.Atoi)
	cfg.SessionCleanupInterval = envOr("SESSION_CLEANUP_INTERVAL", time.Hour, time.ParseDuration)
	cfg.DefaultDate = envOr("DEFAULT_DATE", "2024-08-08", identity)
	cfg.AutoLogin = envOr("AUTO_LOGIN", false, strconv.ParseBool)
	cfg.ControllerIdleTTL = envOr("CONTROLLER_IDLE_TTL", 30*time.Minute, time.ParseDuration)
	cfg.RateLimitGeneral = envOr("RATE_LIMIT_GENERAL", 120, strconv.Atoi)
	cfg.RateLimitInsights = envOr("RATE_LIMIT_INSIGHTS", 10, strconv.Atoi)
	cfg.ServerPort = envOr("SERVER_PORT", "8080", identity)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	cfg.CORSAllowedOrigin = envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000", identity)
	cfg.LogLevel = envOr("LOG_LEVEL", "info", identity)

	return cfg, nil
}

// envOr は環境変数をparseで変換して返す。未設定または変換できない値はdefaultValになる。
func envOr[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parsed, err := parse(v)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func identity(s string) (string, error) { return s, nil }
