// internal/app/auth.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

var ErrUnauthorized = errors.New("unauthorized")

// allCapabilities is what every caller gets when auth is disabled.
var allCapabilities = []string{
	models.CapGradeExport,
	models.CapProfilesView,
	models.CapViewHidden,
	models.CapViewSuspended,
	models.CapSiteManage,
	models.CapAccessAllGroups,
}

type Auth struct {
	enabled     bool
	redis       *redis.Client
	keyTemplate string
	tokenHeader string
}

func NewAuth(config *Config) (*Auth, error) {
	if !config.Server.EnableAuth {
		return &Auth{enabled: false, tokenHeader: config.Auth.TokenHeader}, nil
	}

	opt, err := redis.ParseURL(config.Auth.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisAuth(client, config.Auth.TokenKeyTemplate, config.Auth.TokenHeader), nil
}

func NewRedisAuth(client *redis.Client, keyTemplate, tokenHeader string) *Auth {
	return &Auth{
		enabled:     true,
		redis:       client,
		keyTemplate: keyTemplate,
		tokenHeader: tokenHeader,
	}
}

func (a *Auth) Enabled() bool {
	return a.enabled
}

func (a *Auth) Redis() *redis.Client {
	return a.redis
}

func (a *Auth) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func userKey(template string, userID int64) string {
	return strings.NewReplacer("{user}", strconv.FormatInt(userID, 10)).Replace(template)
}

// Identify checks the bearer token of userID and returns the capabilities
// stored next to it.
func (a *Auth) Identify(ctx context.Context, userID int64, token string) (*models.Identity, error) {
	if !a.enabled {
		return newIdentity(userID, allCapabilities), nil
	}

	key := userKey(a.keyTemplate, userID)

	fields, err := a.redis.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Debug.Printf("Redis error: %v", err)
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		logger.Debug.Printf("Token not found for key: %s", key)
		return nil, fmt.Errorf("%w: token not found", ErrUnauthorized)
	}

	if fields["token"] != token {
		logger.Debug.Printf("Token mismatch for user %d and what's found in %s", userID, key)
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	pipe := a.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "request_count", 1)
	pipe.HSet(ctx, key, "last_request_dttm_utc", nowUTC())
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error.Printf("Failed to update token stats for %s: %v", key, err)
	}

	return newIdentity(userID, splitCapabilities(fields["capabilities"])), nil
}

func newIdentity(userID int64, capabilities []string) *models.Identity {
	identity := &models.Identity{
		UserID:       userID,
		Capabilities: make(map[string]bool, len(capabilities)),
	}
	for _, c := range capabilities {
		identity.Capabilities[c] = true
	}
	return identity
}

func splitCapabilities(raw string) []string {
	var caps []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}
	return caps
}
