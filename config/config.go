// Package config loads server settings from defaults, an optional YAML file and
// INGEST_ prefixed environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"media_ingest/constants"
	"media_ingest/milog"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Workers        int    `mapstructure:"workers"`
	QueueCapacity  int    `mapstructure:"queueCapacity"`
	Port           int    `mapstructure:"port"`
	Bind           string `mapstructure:"bind"`
	MaxConnections int    `mapstructure:"maxConnections"`
	MaxNameLength  int    `mapstructure:"maxNameLength"`
	MaxPayload     int64  `mapstructure:"maxPayload"`
	LogLevel       string `mapstructure:"logLevel"`

	Server    ServerConfig    `mapstructure:"server"`
	Handler   HandlerConfig   `mapstructure:"handler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Multipath bool `mapstructure:"multipath"`
}

type HandlerConfig struct {
	// ReadTimeout is the longest a sender may go without delivering a byte.
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	Dir     string      `mapstructure:"dir"`
	Minio   MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

type CatalogConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
	Watch   bool        `mapstructure:"watch"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

type TranscodeConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	FFmpegPath string        `mapstructure:"ffmpegPath"`
	Threshold  int64         `mapstructure:"threshold"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TempDir    string        `mapstructure:"tempDir"`
}

type WorkerConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

const (
	BackendLocal  = "local"
	BackendMinio  = "minio"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", constants.DEFAULT_NUM_WORKERS)
	v.SetDefault("queueCapacity", constants.DEFAULT_QUEUE_CAPACITY)
	v.SetDefault("port", constants.DEFAULT_PORT)
	v.SetDefault("bind", "")
	v.SetDefault("maxConnections", 0)
	v.SetDefault("maxNameLength", constants.DEFAULT_MAX_NAME_LENGTH)
	v.SetDefault("maxPayload", constants.DEFAULT_MAX_PAYLOAD)
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.multipath", false)
	v.SetDefault("handler.readTimeout", constants.HANDLER_IDLE_TIMEOUT)

	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.dir", constants.DEFAULT_STORAGE_DIR)
	v.SetDefault("storage.minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.minio.accessKey", "")
	v.SetDefault("storage.minio.secretKey", "")
	v.SetDefault("storage.minio.bucket", "uploaded-videos")
	v.SetDefault("storage.minio.useSSL", false)

	v.SetDefault("catalog.backend", BackendMemory)
	v.SetDefault("catalog.redis.addr", "127.0.0.1:6379")
	v.SetDefault("catalog.redis.password", "")
	v.SetDefault("catalog.redis.db", 0)
	v.SetDefault("catalog.redis.key", "media_ingest:uploads")
	v.SetDefault("catalog.redis.channel", "media_ingest:new")
	v.SetDefault("catalog.watch", false)

	v.SetDefault("transcode.enabled", true)
	v.SetDefault("transcode.ffmpegPath", "ffmpeg")
	v.SetDefault("transcode.threshold", constants.TRANSCODE_THRESHOLD)
	v.SetDefault("transcode.timeout", constants.TRANSCODE_TIMEOUT)
	v.SetDefault("transcode.tempDir", "")

	v.SetDefault("worker.delay", time.Duration(0))
}

// Loader owns one viper instance
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load reads path, or INGEST_CONFIG when path is empty, or searches for
// ingest.yaml in the working directory and /etc/media_ingest/. A missing
// searched file is not an error; a missing explicit file is.
func (l *Loader) Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("INGEST_CONFIG")
	}
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName("ingest")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("/etc/media_ingest/")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		milog.Infof("config file not found, using defaults and environment")
	} else {
		milog.Infof("loaded config from %s", l.v.ConfigFileUsed())
	}

	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// Watch reloads the file on change and applies the new log level. Other
// settings take effect on restart; onChange, if set, receives every valid reload.
func (l *Loader) Watch(onChange func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		milog.Infof("config file %s changed, reloading", e.Name)

		var c Config
		if err := l.v.Unmarshal(&c); err != nil {
			milog.Errorf("error reloading config: %v", err)
			return
		}
		if err := c.Validate(); err != nil {
			milog.Warnf("reloaded config rejected: %v", err)
			return
		}
		lvl, err := milog.ParseLevel(c.LogLevel)
		if err != nil {
			milog.Warnf("new log level is invalid: %v, keeping previous level", err)
		} else {
			milog.SetLevel(lvl)
			milog.Infof("log level reloaded to %s", c.LogLevel)
		}
		if onChange != nil {
			onChange(c)
		}
	})
	l.v.WatchConfig()
}

// Validate reports the first setting that would prevent the server from starting
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, c.Workers)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("%w: queueCapacity must be positive, got %d", ErrInvalid, c.QueueCapacity)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port must be within 1-65535, got %d", ErrInvalid, c.Port)
	case c.MaxConnections < 0:
		return fmt.Errorf("%w: maxConnections must not be negative", ErrInvalid)
	case c.MaxNameLength <= 0:
		return fmt.Errorf("%w: maxNameLength must be positive", ErrInvalid)
	case c.MaxPayload < 0:
		return fmt.Errorf("%w: maxPayload must not be negative", ErrInvalid)
	case c.Handler.ReadTimeout < 0:
		return fmt.Errorf("%w: handler.readTimeout must not be negative", ErrInvalid)
	}
	if _, err := milog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: storage.dir is required", ErrInvalid)
		}
	case BackendMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("%w: storage.minio.endpoint and bucket are required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}
	switch c.Catalog.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown catalog backend %q", ErrInvalid, c.Catalog.Backend)
	}
	if c.Catalog.Watch && c.Storage.Backend != BackendLocal {
		return fmt.Errorf("%w: catalog.watch needs the local storage backend", ErrInvalid)
	}
	if c.Transcode.Enabled && c.Transcode.Timeout <= 0 {
		return fmt.Errorf("%w: transcode.timeout must be positive", ErrInvalid)
	}
	return nil
}

// Addr is the listen address for the configured bind host and port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}
