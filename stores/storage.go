package stores

import (
	"polotno-studio/config"
	"polotno-studio/core"
	"polotno-studio/stores/aws"
	"polotno-studio/stores/filesystem"
	"polotno-studio/stores/memory"
	"polotno-studio/stores/redis"
	"polotno-studio/stores/sqlite"
	"polotno-studio/stores/supabase"

	"github.com/sirupsen/logrus"
)

// GetLocal builds the device-local store.
func GetLocal(cfg *config.Config) core.KeyValueStore {
	var store core.KeyValueStore

	storageField := logrus.Fields{
		"storageType": cfg.LocalStorageType,
	}

	switch cfg.LocalStorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store = filesystem.NewStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store = sqlite.NewStore(cfg.DataSourceName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use local storage")
	return store
}

// GetRemote builds the account store and the hosting registry that goes with it.
// Stores without a registry of their own fall back to an in-process one.
func GetRemote(cfg *config.Config) (core.KeyValueStore, core.Hosting) {
	var store core.KeyValueStore
	var hosting core.Hosting

	storageField := logrus.Fields{
		"storageType":   cfg.RemoteStorageType,
		"hostingDomain": cfg.HostingDomain,
	}

	switch cfg.RemoteStorageType {
	case "s3":
		storageField["bucketName"] = cfg.S3BucketName
		client := aws.NewClient()
		store = aws.NewStore(client, cfg.S3BucketName)
		hosting = aws.NewHosting(client, cfg.S3BucketName)
	case "supabase":
		storageField["bucketName"] = cfg.SupabaseBucket
		store = supabase.NewStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		hosting = memory.NewHosting()
	case "redis":
		storageField["addr"] = cfg.RedisAddr
		store = redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, "studio:")
		hosting = memory.NewHosting()
	default:
		store = memory.NewStore()
		hosting = memory.NewHosting()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use remote storage")
	return store, hosting
}
