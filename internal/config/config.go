package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const DefaultPath = "config.yml"

type Config struct {
	ServerPort string `yaml:"server_port" env:"SERVER_PORT" env-default:"8080"`

	WorkerCount  int `yaml:"worker_count" env:"WORKER_COUNT" env-default:"5"`
	JobQueueSize int `yaml:"job_queue_size" env:"JOB_QUEUE_SIZE" env-default:"256"`

	DatabaseDriver string `yaml:"database_driver" env:"DATABASE_DRIVER" env-default:"sqlite"`
	DatabaseURL    string `yaml:"database_url" env:"DATABASE_URL" env-default:"./earnzy-push.db"`

	Push         PushConfig
	Channel      ChannelConfig
	Image        ImageConfig
	Tray         TrayConfig
	Registration RegistrationConfig
	RabbitMQ     RabbitMQConfig
	FCM          FCMConfig
	Log          LogConfig
}

type PushConfig struct {
	// Precedence is data_first or notification_first.
	Precedence string `yaml:"precedence" env:"PUSH_PRECEDENCE" env-default:"data_first"`
}

type ChannelConfig struct {
	ID          string `yaml:"id" env:"CHANNEL_ID" env-default:"earnzy_notifications_channel"`
	Name        string `yaml:"name" env:"CHANNEL_NAME" env-default:"General Notifications"`
	Description string `yaml:"description" env:"CHANNEL_DESCRIPTION" env-default:"Notifications from Earnzy"`
}

type ImageConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"IMAGE_FETCH_TIMEOUT" env-default:"5s"`
	MaxBytes     int64         `yaml:"max_bytes" env:"IMAGE_MAX_BYTES" env-default:"5242880"`
}

type TrayConfig struct {
	LandingScreen string        `yaml:"landing_screen" env:"LANDING_SCREEN" env-default:"home"`
	MaxActive     int           `yaml:"max_active" env:"TRAY_MAX_ACTIVE" env-default:"50"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"30s"`
}

type RegistrationConfig struct {
	URL                string        `yaml:"url" env:"REGISTRATION_URL"`
	InterServiceSecret string        `yaml:"inter_service_secret" env:"INTER_SERVICE_SECRET"`
	Timeout            time.Duration `yaml:"timeout" env:"REGISTRATION_TIMEOUT" env-default:"10s"`
}

type RabbitMQConfig struct {
	URI         string `yaml:"uri" env:"RABBITMQ_URI"`
	QueueName   string `yaml:"queue_name" env:"PUSH_QUEUE_NAME" env-default:"push_messages"`
	Concurrency int    `yaml:"concurrency" env:"RABBITMQ_CONCURRENCY" env-default:"4"`
}

type FCMConfig struct {
	CredentialsPath string `yaml:"credentials_path" env:"FCM_CREDENTIALS_PATH"`
	Topic           string `yaml:"topic" env:"FCM_TOPIC"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
}

// Load reads path when it exists and applies environment overrides on top.
// Without a file only the environment (and defaults) are used.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", path, err)
			}
			return &cfg, cfg.validate()
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error reading config from env: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.WorkerCount <= 0 {
		return errors.New("WORKER_COUNT must be positive")
	}
	if c.JobQueueSize <= 0 {
		return errors.New("JOB_QUEUE_SIZE must be positive")
	}
	if c.Channel.ID == "" {
		return errors.New("CHANNEL_ID is required")
	}
	if c.Image.FetchTimeout <= 0 {
		return errors.New("IMAGE_FETCH_TIMEOUT must be positive")
	}
	if c.Tray.MaxActive > 0 && c.Tray.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive when TRAY_MAX_ACTIVE is set")
	}
	if c.Registration.Timeout <= 0 {
		return errors.New("REGISTRATION_TIMEOUT must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.DatabaseDriver)
	}
	return nil
}
