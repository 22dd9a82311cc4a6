package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment     string
	Addr            string
	DatabaseURL     string
	MigrationsDir   string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MemberCap       int
	CodeAttempts    int
	SharedCacheTTL  time.Duration
	JoinRateLimit   int
	LookupRateLimit int
	RateLimitWindow time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("API_ADDR", ":4000"),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://valcomps:valcomps@db:5432/valcomps?sslmode=disable"),
		MigrationsDir:   GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:  time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		MemberCap:       GetInt("TEAM_MEMBER_CAP", 10),
		CodeAttempts:    GetInt("CODE_GEN_ATTEMPTS", 8),
		SharedCacheTTL:  time.Duration(GetInt("SHARED_CACHE_TTL_MIN", 60)) * time.Minute,
		JoinRateLimit:   GetInt("JOIN_RATE_LIMIT", 10),
		LookupRateLimit: GetInt("LOOKUP_RATE_LIMIT", 30),
		RateLimitWindow: time.Duration(GetInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RedisAddr:       GetString("REDIS_ADDR", ""),
		RedisPassword:   GetString("REDIS_PASSWORD", ""),
		RedisDB:         GetInt("REDIS_DB", 0),
	}
}
