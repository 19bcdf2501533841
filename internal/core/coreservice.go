package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/goseam/internal/backend/blobstore"
	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/backend/outpainting"
	"github.com/jo-hoe/goseam/internal/continuity"
)

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	blobStore       blobstore.Store
	images          *blobstore.ImageStore
	model           outpainting.Model
	continuity      *continuity.Service
}

func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	service := &CoreService{config: config}

	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}
	service.databaseService = databaseService

	service.blobStore, err = blobstore.NewStore(ctx, config.BlobStore)
	if err != nil {
		_ = service.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	service.images = blobstore.NewImageStore(service.blobStore, config.PublicBaseURL,
		blobstore.WithAllowedHosts(config.BlobStore.AllowedFetchHosts...),
		blobstore.WithMaxFetchBytes(config.BlobStore.MaxFetchBytes),
	)

	service.model, err = outpainting.NewModel(ctx, config.Model)
	if err != nil {
		_ = service.Close()
		return nil, fmt.Errorf("failed to initialize generative model: %w", err)
	}

	var opts []continuity.Option
	if len(config.ImportCommands) > 0 {
		pipeline, err := imageprocessing.NewCommandInvokerFromConfig(imageprocessing.DefaultRegistry, toCommandConfigs(config.ImportCommands))
		if err != nil {
			_ = service.Close()
			return nil, fmt.Errorf("failed to build import pipeline: %w", err)
		}
		opts = append(opts, continuity.WithImportPipeline(pipeline))
		slog.Info("import pipeline configured", "commands", pipeline.Len())
	}

	service.continuity = continuity.NewService(
		service.databaseService,
		service.images,
		outpainting.NewClient(service.model),
		config.Editor,
		opts...,
	)
	return service, nil
}

func (service *CoreService) Continuity() *continuity.Service {
	return service.continuity
}

func (service *CoreService) Images() *blobstore.ImageStore {
	return service.images
}

func (service *CoreService) Database() database.DatabaseService {
	return service.databaseService
}

// Close releases every backing resource that was opened.
func (service *CoreService) Close() error {
	var errs []error
	if service.model != nil {
		errs = append(errs, service.model.Close())
	}
	if service.blobStore != nil {
		errs = append(errs, service.blobStore.Close())
	}
	if service.databaseService != nil {
		errs = append(errs, service.databaseService.Close())
	}
	return errors.Join(errs...)
}

func toCommandConfigs(commands []CommandConfig) []imageprocessing.CommandConfig {
	configs := make([]imageprocessing.CommandConfig, len(commands))
	for i, cmd := range commands {
		configs[i] = imageprocessing.CommandConfig{Name: cmd.Name, Params: cmd.Params}
	}
	return configs
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
