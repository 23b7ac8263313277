package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestIdentifyDisabledAuth(t *testing.T) {
	auth := &Auth{enabled: false}

	identity, err := auth.Identify(context.Background(), 42, "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.UserID)
	for _, c := range allCapabilities {
		assert.True(t, identity.Can(c), c)
	}
}

func TestIdentify(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	auth := NewRedisAuth(client, "auth:{user}", "Authorization")

	mr.HSet("auth:7", "token", "sk-xprof-abc", "capabilities", "grade:export, profiles:view")

	t.Run("valid token", func(t *testing.T) {
		identity, err := auth.Identify(ctx, 7, "sk-xprof-abc")
		require.NoError(t, err)
		assert.True(t, identity.Can(models.CapGradeExport))
		assert.True(t, identity.Can(models.CapProfilesView))
		assert.False(t, identity.Can(models.CapViewHidden))
		assert.Equal(t, "1", mr.HGet("auth:7", "request_count"))
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := auth.Identify(ctx, 7, "sk-xprof-nope")
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := auth.Identify(ctx, 8, "sk-xprof-abc")
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})
}

func TestTokenManager(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	tm := NewTokenManager(client, "auth:{user}")

	info, created, err := tm.FetchOrCreateUserToken(ctx, 7, []string{models.CapGradeExport})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, info.Token, tokenPrefix)
	assert.Equal(t, []string{models.CapGradeExport}, info.Capabilities)

	again, created, err := tm.FetchOrCreateUserToken(ctx, 7, []string{models.CapGradeExport, models.CapProfilesView})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, info.Token, again.Token)
	assert.Equal(t, []string{models.CapGradeExport, models.CapProfilesView}, again.Capabilities)

	auth := NewRedisAuth(client, "auth:{user}", "Authorization")
	identity, err := auth.Identify(ctx, 7, info.Token)
	require.NoError(t, err)
	assert.True(t, identity.Can(models.CapProfilesView))

	require.NoError(t, tm.RevokeUserToken(ctx, 7))
	_, err = auth.Identify(ctx, 7, info.Token)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestServiceIdentify(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	config, err := ParseConfig("test.toml", []byte(`
[server]
port = ":9999"
enable_auth = true
`))
	require.NoError(t, err)

	tm := NewTokenManager(client, config.Auth.TokenKeyTemplate)
	info, _, err := tm.FetchOrCreateUserToken(ctx, 5, []string{models.CapGradeExport})
	require.NoError(t, err)

	svc := &Service{Config: config, Auth: NewRedisAuth(client, config.Auth.TokenKeyTemplate, config.Auth.TokenHeader)}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-Id", "5")
	req.Header.Set("Authorization", "Bearer "+info.Token)
	identity, err := svc.Identify(req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), identity.UserID)

	req.Header.Set("Authorization", info.Token)
	_, err = svc.Identify(req)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	req.Header.Del("X-User-Id")
	_, err = svc.Identify(req)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
