package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Push     PushConfig     `yaml:"push"`
	Backup   BackupConfig   `yaml:"backup"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// PushConfig holds the VAPID key pair for web push. Leave empty to disable
// dose reminders.
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
}

// BackupConfig holds S3 settings for encrypted database backups.
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// Load reads configuration from a YAML file, then applies MEDTRACK_*
// environment overrides. A missing file is not an error; defaults plus
// environment are enough to run.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080, Host: ""},
		Database: DatabaseConfig{Path: "medtrack.db"},
		Log:      LogConfig{Level: "info"},
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEDTRACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MEDTRACK_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("MEDTRACK_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MEDTRACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MEDTRACK_VAPID_PUBLIC_KEY"); v != "" {
		c.Push.VAPIDPublicKey = v
	}
	if v := os.Getenv("MEDTRACK_VAPID_PRIVATE_KEY"); v != "" {
		c.Push.VAPIDPrivateKey = v
	}
	if v := os.Getenv("MEDTRACK_PUSH_SUBSCRIBER"); v != "" {
		c.Push.Subscriber = v
	}
	if v := os.Getenv("MEDTRACK_BACKUP_ENABLED"); v != "" {
		c.Backup.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MEDTRACK_BACKUP_REGION"); v != "" {
		c.Backup.Region = v
	}
	if v := os.Getenv("MEDTRACK_BACKUP_BUCKET"); v != "" {
		c.Backup.Bucket = v
	}
	if v := os.Getenv("MEDTRACK_BACKUP_ACCESS_KEY"); v != "" {
		c.Backup.AccessKey = v
	}
	if v := os.Getenv("MEDTRACK_BACKUP_SECRET_KEY"); v != "" {
		c.Backup.SecretKey = v
	}
	if v := os.Getenv("MEDTRACK_BACKUP_ENDPOINT"); v != "" {
		c.Backup.Endpoint = v
	}
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
