package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/artsync/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration; type local writes to a folder, anything
//     else is treated as S3-compatible.
//
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the storage cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocalStorage(nil, cfg.LocalPath)
	case string(StorageTypeS3), string(StorageTypeR2), string(StorageTypeS3Compatible):
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("storage type %s requires a bucket", cfg.Type)
		}
		return NewS3Storage(&S3Config{
			Type:      StorageType(strings.ToLower(cfg.Type)),
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			PublicURL: cfg.PublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
