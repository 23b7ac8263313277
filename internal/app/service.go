package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shrimpsizemoose/exportprofiles/internal/export"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/profiles"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
)

type Service struct {
	Config       *Config
	Store        store.Store
	Auth         *Auth
	Resolver     *profiles.Resolver
	Orchestrator *export.Orchestrator
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	auth, err := NewAuth(config)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	return NewServiceWith(config, store, auth), nil
}

// NewServiceWith wires a service around already opened dependencies.
func NewServiceWith(config *Config, s store.Store, auth *Auth) *Service {
	return &Service{
		Config:       config,
		Store:        s,
		Auth:         auth,
		Resolver:     profiles.NewResolver(s, config.ExportDefaults(), config.DisplayType()),
		Orchestrator: export.NewOrchestrator(s, export.NewRegistry(), config.DisplayType()),
	}
}

// Identify resolves the caller of r. The user id always comes from the
// configured header; with auth enabled it must be backed by a bearer token.
func (s *Service) Identify(r *http.Request) (*models.Identity, error) {
	raw := r.Header.Get(s.Config.API.UserIDHeader)
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: missing or invalid %s header", ErrUnauthorized, s.Config.API.UserIDHeader)
	}

	var token string
	if s.Auth.Enabled() {
		authHeader := r.Header.Get(s.Auth.tokenHeader)
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return nil, fmt.Errorf("%w: invalid authorization header format", ErrUnauthorized)
		}
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}

	return s.Auth.Identify(r.Context(), userID, token)
}

func (s *Service) ValidateHeaders(headers map[string][]string) bool {
	for _, required := range s.Config.API.RequiredHeaders {
		value := headers[http.CanonicalHeaderKey(required.Name)]
		if len(value) == 0 || !strings.EqualFold(value[0], required.Value) {
			return false
		}
	}
	return true
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Auth.Close(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
