package blobstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Type      string `yaml:"type"`
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
	Directory string `yaml:"directory"`
	// AllowedFetchHosts lists extra hosts remote image URLs may point at.
	AllowedFetchHosts []string `yaml:"allowedFetchHosts"`
	MaxFetchBytes     int64    `yaml:"maxFetchBytes"`
}

func NewStore(ctx context.Context, config Config) (store Store, err error) {
	switch config.Type {
	case "redis":
		store, err = NewRedisStore(ctx, &redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
		}, config.KeyPrefix)
	case "filesystem":
		store, err = NewFilesystemStore(config.Directory)
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("blob store initialized", "type", config.Type)
	return store, nil
}
