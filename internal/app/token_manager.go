package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

const (
	timeFormat  = "2006-01-02 15:04:05"
	tokenPrefix = "sk-xprof-"
)

type TokenManager struct {
	redis       *redis.Client
	keyTemplate string
}

func NewTokenManager(redis *redis.Client, keyTemplate string) *TokenManager {
	return &TokenManager{redis: redis, keyTemplate: keyTemplate}
}

func generateToken() (string, error) {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return tokenPrefix + hex.EncodeToString(randomBytes), nil
}

func nowUTC() string {
	return time.Now().UTC().Format(timeFormat)
}

// FetchOrCreateUserToken returns the user's token, creating one if needed.
// The stored capabilities are always replaced with capabilities.
func (tm *TokenManager) FetchOrCreateUserToken(ctx context.Context, userID int64, capabilities []string) (*models.TokenInfo, bool, error) {
	key := userKey(tm.keyTemplate, userID)

	token, err := tm.redis.HGet(ctx, key, "token").Result()
	if err != nil && err != redis.Nil {
		return nil, false, fmt.Errorf("failed to check token: %w", err)
	}

	now := nowUTC()
	caps := strings.Join(capabilities, ",")
	isNewToken := false

	pipe := tm.redis.Pipeline()
	if err == redis.Nil {
		token, err = generateToken()
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate token: %w", err)
		}

		pipe.HSet(ctx, key, map[string]interface{}{
			"token":                 token,
			"capabilities":          caps,
			"request_count":         0,
			"last_request_dttm_utc": now,
			"created_dttm_utc":      now,
		})
		isNewToken = true
	} else {
		pipe.HSet(ctx, key, "capabilities", caps)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to store token: %w", err)
	}

	info, err := tm.FetchUserToken(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return info, isNewToken, nil
}

func (tm *TokenManager) FetchUserToken(ctx context.Context, userID int64) (*models.TokenInfo, error) {
	key := userKey(tm.keyTemplate, userID)

	values, err := tm.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no token found for user %d", userID)
	}

	lastReqTime, _ := time.Parse(timeFormat, values["last_request_dttm_utc"])
	createdTime, _ := time.Parse(timeFormat, values["created_dttm_utc"])
	reqCount, _ := strconv.Atoi(values["request_count"])

	return &models.TokenInfo{
		Token:           values["token"],
		UserID:          userID,
		Capabilities:    splitCapabilities(values["capabilities"]),
		RequestCount:    reqCount,
		LastRequestTime: lastReqTime,
		CreatedTime:     createdTime,
	}, nil
}

func (tm *TokenManager) RevokeUserToken(ctx context.Context, userID int64) error {
	return tm.redis.Del(ctx, userKey(tm.keyTemplate, userID)).Err()
}

func (tm *TokenManager) Close() error {
	if tm.redis != nil {
		return tm.redis.Close()
	}
	return nil
}
