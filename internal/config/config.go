package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"magnet-playlets/internal/domain"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr      string
		PublicURL string
	}
	Database struct {
		Driver string
		Path   string
	}
	Download struct {
		DataDir        string
		ListenPort     int
		Seed           bool
		StatusInterval int // seconds
	}
	Storage struct {
		Bucket   string
		Region   string
		Endpoint string
	}
	AWS struct {
		Profile string
	}
	Auth struct {
		PasswordHash    string
		JWTSecret       string
		TokenTTLMinutes int
	}
	Engine struct {
		MaxConcurrentTasks int
	}
	Defaults struct {
		CastDevice        string
		MediaPlayer       string
		MoveDestination   string
		SubtitleLanguages []string
	}
	Watch struct {
		Enabled bool
		Folders []string
	}
	Subtitles struct {
		Command string
	}
	Webhook struct {
		SigningSecret  string
		TimeoutSeconds int
	}
	Playlets struct {
		File string
	}
	Log struct {
		Level  string
		Format string
	}
	Metrics struct {
		Enabled bool
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("MAGNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.publicurl", "http://127.0.0.1:8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/playlets.db")
	v.SetDefault("download.datadir", "data/downloads")
	v.SetDefault("download.listenport", 42069)
	v.SetDefault("download.seed", true)
	v.SetDefault("download.statusinterval", 2)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("auth.passwordhash", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 1440)
	v.SetDefault("engine.maxconcurrenttasks", 2)
	v.SetDefault("defaults.castdevice", "")
	v.SetDefault("defaults.mediaplayer", "")
	v.SetDefault("defaults.movedestination", "")
	v.SetDefault("defaults.subtitlelanguages", []string{})
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.folders", []string{})
	v.SetDefault("subtitles.command", "")
	v.SetDefault("webhook.signingsecret", "")
	v.SetDefault("webhook.timeoutseconds", 30)
	v.SetDefault("playlets.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// list values from the environment arrive as one comma separated string
	cfg.Defaults.SubtitleLanguages = splitList(cfg.Defaults.SubtitleLanguages)
	cfg.Watch.Folders = splitList(cfg.Watch.Folders)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "bbolt":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Engine.MaxConcurrentTasks < 0 {
		return errors.New("engine.maxconcurrenttasks must not be negative")
	}
	if c.Watch.Enabled && len(c.Watch.Folders) == 0 {
		return errors.New("watch.folders is required when folder watching is enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Settings is the snapshot handed to the engine and executors.
func (c Config) Settings() domain.Settings {
	return domain.Settings{
		DefaultCastDevice:      c.Defaults.CastDevice,
		DefaultMediaPlayer:     c.Defaults.MediaPlayer,
		DefaultMoveDestination: c.Defaults.MoveDestination,
		SubtitleLanguages:      append([]string(nil), c.Defaults.SubtitleLanguages...),
		MaxConcurrentTasks:     c.Engine.MaxConcurrentTasks,
		MediaBaseURL:           strings.TrimRight(c.Server.PublicURL, "/"),
	}
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// loadDotEnv loads .env from the working directory without overriding
// variables that are already set.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load(".env")
}
