package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// RetentionPolicy controls what happens to the raw upload file after a
// dataset has been stored.
type RetentionPolicy string

const (
	// RetentionKeep leaves the raw file in the upload directory.
	RetentionKeep RetentionPolicy = "keep"
	// RetentionDelete removes the raw file after a successful ingest.
	RetentionDelete RetentionPolicy = "delete"
	// RetentionArchive copies the raw file to object storage, then
	// removes it from the upload directory.
	RetentionArchive RetentionPolicy = "archive"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	JWT        JWTConfig
	Upload     UploadConfig
	Archive    ArchiveConfig
	Events     EventsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// JWTConfig describes the signing key ring. Keys maps key ID to secret;
// ActiveKID names the key new tokens are signed with. A single-secret
// deployment sets JWT_KEYS="v1:<secret>".
type JWTConfig struct {
	Keys      map[string]string
	ActiveKID string
	TTLHours  int
}

type UploadConfig struct {
	Dir       string
	Retention RetentionPolicy
}

// ArchiveConfig selects the object-storage backend used by the archive
// retention policy. Backend is "none", "minio", or "gcs".
type ArchiveConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

// EventsConfig selects the broker dataset-ingested notifications are
// published to. Backend is "none", "rabbitmq", or "pubsub".
type EventsConfig struct {
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL          string
	QueueDurable bool
}

type PubSubConfig struct {
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	keys, err := parseKeyRing(getEnv("JWT_KEYS", ""))
	if err != nil {
		return Config{}, err
	}
	activeKID := getEnv("JWT_ACTIVE_KID", "")
	if activeKID == "" && len(keys) == 1 {
		for kid := range keys {
			activeKID = kid
		}
	}
	if _, ok := keys[activeKID]; !ok {
		return Config{}, fmt.Errorf("JWT_ACTIVE_KID %q is not present in JWT_KEYS", activeKID)
	}

	cfg := Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "sheetdrop"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "sheetdrop_db"),
			UseSSL:   getEnvBool("DB_SSL", false),
		},
		JWT: JWTConfig{
			Keys:      keys,
			ActiveKID: activeKID,
			TTLHours:  getEnvInt("JWT_TTL_HOURS", 24),
		},
		Upload: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "uploads"),
			Retention: RetentionPolicy(getEnv("UPLOAD_RETENTION", string(RetentionKeep))),
		},
		Archive: ArchiveConfig{
			Backend: getEnv("ARCHIVE_BACKEND", "none"),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "sheetdrop-uploads"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		Events: EventsConfig{
			Backend: getEnv("EVENTS_BACKEND", "none"),
			RabbitMQ: RabbitMQConfig{
				URL:          getEnv("RABBITMQ_URL", ""),
				QueueDurable: getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			},
			PubSub: PubSubConfig{
				ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile: getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			},
		},
	}

	switch cfg.Upload.Retention {
	case RetentionKeep, RetentionDelete, RetentionArchive:
	default:
		return Config{}, fmt.Errorf("unknown UPLOAD_RETENTION %q", cfg.Upload.Retention)
	}
	if cfg.Upload.Retention == RetentionArchive && cfg.Archive.Backend == "none" {
		return Config{}, errors.New("UPLOAD_RETENTION=archive requires ARCHIVE_BACKEND")
	}

	return cfg, nil
}

// parseKeyRing parses "kid:secret[,kid:secret...]".
func parseKeyRing(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("JWT_KEYS is required")
	}
	keys := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kid, secret, ok := strings.Cut(entry, ":")
		kid = strings.TrimSpace(kid)
		secret = strings.TrimSpace(secret)
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry %q", entry)
		}
		if _, dup := keys[kid]; dup {
			return nil, fmt.Errorf("duplicate JWT_KEYS key id %q", kid)
		}
		keys[kid] = secret
	}
	if len(keys) == 0 {
		return nil, errors.New("JWT_KEYS is required")
	}
	return keys, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(strings.TrimSpace(valueStr)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}
