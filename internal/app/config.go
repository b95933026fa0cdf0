package app

import (
	"time"

	"github.com/yungbote/academy-backend/internal/platform/envutil"
	"github.com/yungbote/academy-backend/internal/platform/logger"
)

type Config struct {
	ServiceName     string
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTokenTTL time.Duration
	PolicyPath      string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName:     envutil.String("SERVICE_NAME", "academy-backend"),
		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		AccessTokenTTL:  envutil.Duration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: envutil.Duration("REFRESH_TOKEN_TTL", 24*time.Hour),
		SessionTokenTTL: envutil.Duration("SESSION_TOKEN_TTL", 6*time.Hour),
		PolicyPath:      envutil.String("PROGRESS_POLICY_PATH", ""),
	}
	if cfg.JWTSecretKey == "defaultsecret" {
		log.Warn("JWT_SECRET_KEY not set, using insecure default")
	}
	return cfg
}
