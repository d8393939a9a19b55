// Package config resolves all dblite settings from the environment.
// Settings are read through viper with the DBLITE_ prefix; the legacy
// INDRA_DB_LITE_ names from earlier deployments are still honoured.
package config

import (
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/indralab/dblite/internal/errors"
)

// DefaultS3Key is the object key used when DBLITE_S3_KEY is not set.
const DefaultS3Key = "indra_lite.db.xz"

// StorageConfig holds object storage provider settings.
type StorageConfig struct {
	// Provider name: aliyun, tencent or qiniu
	Provider string `json:"provider"`
	// Region of the bucket, e.g. cn-hangzhou or ap-beijing
	Region string `json:"region"`
	// AccessKey for API authentication
	AccessKey string `json:"access_key"`
	// SecretKey for API authentication, never logged
	SecretKey string `json:"secret_key"`
	// Endpoint overrides the provider default service endpoint
	Endpoint string `json:"endpoint"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error, fatal, panic
	Level string `json:"level"`
	// Format: json or text
	Format string `json:"format"`
	// Output: console, file or both
	Output string `json:"output"`
	// FilePath of the log file when output includes file
	FilePath string `json:"file_path"`
}

// Config is the resolved application configuration.
type Config struct {
	// S3Bucket is the object storage bucket holding the compressed snapshot
	S3Bucket string `json:"s3_bucket"`
	// S3Key is the object key of the compressed snapshot
	S3Key string `json:"s3_key"`
	// Location is the local path where the decompressed snapshot lives
	Location string `json:"location"`
	// Storage holds provider credentials and selection
	Storage StorageConfig `json:"storage"`
	// Log holds logging settings
	Log LogConfig `json:"log"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DBLITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names take effect when the DBLITE_ names are unset.
	bindings := map[string][]string{
		"s3_bucket":          {"DBLITE_S3_BUCKET", "INDRA_DB_LITE_S3_BUCKET"},
		"s3_key":             {"DBLITE_S3_KEY", "INDRA_DB_LITE_S3_KEY"},
		"location":           {"DBLITE_LOCATION", "INDRA_DB_LITE_LOCATION"},
		"storage.provider":   {"DBLITE_PROVIDER"},
		"storage.region":     {"DBLITE_REGION"},
		"storage.access_key": {"DBLITE_ACCESS_KEY"},
		"storage.secret_key": {"DBLITE_SECRET_KEY"},
		"storage.endpoint":   {"DBLITE_ENDPOINT"},
		"log.level":          {"DBLITE_LOG_LEVEL"},
		"log.format":         {"DBLITE_LOG_FORMAT"},
		"log.output":         {"DBLITE_LOG_OUTPUT"},
		"log.file_path":      {"DBLITE_LOG_FILE"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to bind environment variable", err)
		}
	}

	v.SetDefault("storage.provider", "aliyun")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "logs/dblite.log")

	cfg := &Config{
		S3Bucket: v.GetString("s3_bucket"),
		S3Key:    v.GetString("s3_key"),
		Location: v.GetString("location"),
		Storage: StorageConfig{
			Provider:  v.GetString("storage.provider"),
			Region:    v.GetString("storage.region"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Endpoint:  v.GetString("storage.endpoint"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Format:   v.GetString("log.format"),
			Output:   v.GetString("log.output"),
			FilePath: v.GetString("log.file_path"),
		},
	}

	// The historical behaviour: the key only defaults when a bucket is set,
	// so that an entirely unconfigured environment stays visibly empty.
	if cfg.S3Key == "" && cfg.S3Bucket != "" {
		cfg.S3Key = DefaultS3Key
	}

	return cfg, nil
}

// ValidateLocal checks the settings needed by commands that only touch the
// local snapshot.
func (c *Config) ValidateLocal() error {
	if c.Location == "" {
		return apperrors.New(apperrors.ErrConfigMissing, "DBLITE_LOCATION is not set")
	}
	return nil
}

// ValidateRemote checks the settings needed before any object storage call
// is attempted.
func (c *Config) ValidateRemote() error {
	if err := c.ValidateLocal(); err != nil {
		return err
	}
	if c.S3Bucket == "" {
		return apperrors.New(apperrors.ErrConfigMissing, "DBLITE_S3_BUCKET is not set")
	}
	if c.S3Key == "" {
		return apperrors.New(apperrors.ErrConfigMissing, "DBLITE_S3_KEY is not set")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return apperrors.New(apperrors.ErrConfigMissing, "DBLITE_ACCESS_KEY and DBLITE_SECRET_KEY must both be set")
	}
	return nil
}
