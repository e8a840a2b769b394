package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Audit    AuditConfig
	Invite   InviteConfig
	CORS     CORSConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuditConfig controls the audit trail maintenance job: rows older than
// ArchiveAfter are flagged archived, archived rows older than PurgeAfter are
// deleted for good.
type AuditConfig struct {
	ArchiveAfter time.Duration
	PurgeAfter   time.Duration
}

type InviteConfig struct {
	TTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables: %v", err)
	}

	viper.SetDefault("APP_NAME", "procurement-api")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_NAME", "procurement")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("JWT_SECRET", "change-this-secret-in-production")
	viper.SetDefault("JWT_ACCESS_TTL_HOURS", 24)
	viper.SetDefault("JWT_REFRESH_TTL_HOURS", 168)
	viper.SetDefault("AUDIT_ARCHIVE_AFTER_DAYS", 90)
	viper.SetDefault("AUDIT_PURGE_AFTER_DAYS", 365)
	viper.SetDefault("INVITE_TTL_HOURS", 72)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"})

	return &Config{
		App: AppConfig{
			Name: viper.GetString("APP_NAME"),
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetString("APP_PORT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("JWT_SECRET"),
			AccessTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TTL_HOURS")) * time.Hour,
			RefreshTTL: time.Duration(viper.GetInt("JWT_REFRESH_TTL_HOURS")) * time.Hour,
		},
		Audit: AuditConfig{
			ArchiveAfter: time.Duration(viper.GetInt("AUDIT_ARCHIVE_AFTER_DAYS")) * 24 * time.Hour,
			PurgeAfter:   time.Duration(viper.GetInt("AUDIT_PURGE_AFTER_DAYS")) * 24 * time.Hour,
		},
		Invite: InviteConfig{
			TTL: time.Duration(viper.GetInt("INVITE_TTL_HOURS")) * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
		},
	}
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port +
		"/" + c.Name + "?sslmode=" + c.SSLMode
}
