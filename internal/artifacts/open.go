package artifacts

import (
	"context"
	"errors"
	"fmt"

	"neurosphere-backend/internal/config"
	"neurosphere-backend/internal/supabase"
)

// supabaseStorage maps the bucket client's not-found error onto ErrNotFound.
type supabaseStorage struct {
	*supabase.StorageClient
}

func (s supabaseStorage) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.StorageClient.Get(ctx, path)
	if errors.Is(err, supabase.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// Open returns the artifact storage selected by ARTIFACT_DRIVER.
func Open(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.ArtifactDriver {
	case config.ArtifactDriverSupabase:
		client := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseStorageBucket)
		return supabaseStorage{client}, nil
	case config.ArtifactDriverMinIO:
		return NewMinIOStorage(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
	case config.ArtifactDriverS3:
		return NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Region)
	case config.ArtifactDriverMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown artifact driver %q", cfg.ArtifactDriver)
	}
}
