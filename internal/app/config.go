package app

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/export"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

type HeaderConfig struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
	} `toml:"server"`

	Auth struct {
		RedisURL         string `toml:"redis_url"`
		TokenHeader      string `toml:"token_header"`
		TokenKeyTemplate string `toml:"token_key_template"`
	} `toml:"auth"`

	API struct {
		UserIDHeader    string         `toml:"user_id_header"`
		RequiredHeaders []HeaderConfig `toml:"required_headers"`
	} `toml:"api"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Export struct {
		DisplayType string `toml:"display_type"`
		Decimals    *int   `toml:"decimals"`
		Feedback    bool   `toml:"feedback"`
	} `toml:"export"`

	Schedule []export.ScheduledJob `toml:"schedule" validate:"dive"`
}

const (
	defaultTokenHeader  = "Authorization"
	defaultKeyTemplate  = "auth:{user}"
	defaultUserIDHeader = "X-User-Id"
	defaultDecimals     = 2
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(path, data)
}

func ParseConfig(path string, data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}

	if config.Auth.TokenHeader == "" {
		config.Auth.TokenHeader = defaultTokenHeader
	}
	if config.Auth.TokenKeyTemplate == "" {
		config.Auth.TokenKeyTemplate = defaultKeyTemplate
	}
	if config.API.UserIDHeader == "" {
		config.API.UserIDHeader = defaultUserIDHeader
	}

	switch models.DisplayType(config.Export.DisplayType) {
	case "":
		config.Export.DisplayType = string(models.DisplayReal)
	case models.DisplayReal, models.DisplayPercentage, models.DisplayLetter:
	default:
		return nil, fmt.Errorf("unknown export display type %q, use real, percentage or letter", config.Export.DisplayType)
	}

	if config.Export.Decimals == nil {
		d := defaultDecimals
		config.Export.Decimals = &d
	}
	if *config.Export.Decimals < 0 || *config.Export.Decimals > 5 {
		return nil, fmt.Errorf("export decimals must be between 0 and 5, got %d", *config.Export.Decimals)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid schedule config: %w", err)
	}
	seen := make(map[string]bool, len(config.Schedule))
	for _, job := range config.Schedule {
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate scheduled export name %q", job.Name)
		}
		seen[job.Name] = true
	}

	logger.Debug.Printf("Loaded export defaults: %+v", config.ExportDefaults())

	return &config, nil
}

func (c *Config) DisplayType() models.DisplayType {
	return models.DisplayType(c.Export.DisplayType)
}

// ExportDefaults is the option set used for anything a profile doesn't store.
func (c *Config) ExportDefaults() models.ExportOptions {
	decimals := defaultDecimals
	if c.Export.Decimals != nil {
		decimals = *c.Export.Decimals
	}
	return models.DefaultOptions(c.DisplayType(), decimals, c.Export.Feedback)
}
