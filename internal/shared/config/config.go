package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Env      string
	Port     string
	LogLevel string
	Stage    string
	TmpDir   string

	ObjectStoreType     string
	MinioEndpoint       string
	MinioAccessKey      string
	MinioSecretKey      string
	MinioSecure         bool
	Bucket              string
	MarkdownBucket      string
	AWSRegion           string
	S3Prefix            string
	LocalStoreDir       string
	DatabaseURL         string
	BusType             string
	RabbitURL           string
	QueueEnv            string
	SQSQueueURLPrefix   string
	BusBackoffSeconds   int
	LLMProvider         string
	OpenAIAPIKey        string
	LLMModel            string
	LLMEmbeddingModel   string
	OCRProvider         string
	OCRModel            string
	VertexProject       string
	VertexRegion        string
	LangfusePublicKey   string
	LangfuseSecretKey   string
	LangfuseBaseURL     string
	SMTPHost            string
	SMTPPort            int
	SMTPUser            string
	SMTPPassword        string
	SMTPFrom            string
	IMAPHost            string
	IMAPPort            int
	IMAPUser            string
	IMAPPassword        string
	IMAPMailbox         string
	IMAPFilter          string
	MailPollSeconds     int
	NotifyRecipients    []string
	FileStoreTokenURL   string
	FileStoreClientID   string
	FileStoreSecret     string
	FileStoreBaseURL    string
	ChecklistTemplate   string
	TechnicalTemplate   string
	WorkerConcurrency   int
	ShutdownTimeoutSecs int
	AgentAIName         string
	AgentAICode         string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				log.Printf("config: load %s: %v", path, err)
			}
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := databaseURL()
	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL or DB_HOST is required in production")
	}

	return Config{
		Env:                 env,
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Stage:               strings.ToLower(strings.TrimSpace(getEnv("HSMT_STAGE", ""))),
		TmpDir:              getEnv("TMP_DIR", os.TempDir()),
		ObjectStoreType:     normalizeStoreType(getEnv("OBJECT_STORE", "minio")),
		MinioEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
		MinioSecure:         getBool("MINIO_SECURE", false),
		Bucket:              getEnv("MINIO_BUCKET", "hsmt"),
		MarkdownBucket:      getEnv("MINIO_MARKDOWN_BUCKET", "markdown"),
		AWSRegion:           getEnv("AWS_REGION", ""),
		S3Prefix:            getEnv("S3_PREFIX", ""),
		LocalStoreDir:       getEnv("LOCAL_STORE_DIR", "./data"),
		DatabaseURL:         dbURL,
		BusType:             normalizeBusType(getEnv("BUS", "amqp")),
		RabbitURL:           rabbitURL(),
		QueueEnv:            getEnv("QUEUE_ENV", ""),
		SQSQueueURLPrefix:   getEnv("SQS_QUEUE_URL_PREFIX", ""),
		BusBackoffSeconds:   getInt("BUS_BACKOFF_SECONDS", 30),
		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMEmbeddingModel:   getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
		OCRProvider:         strings.ToLower(getEnv("OCR_PROVIDER", "openai")),
		OCRModel:            getEnv("OCR_MODEL", "gpt-4o"),
		VertexProject:       getEnv("VERTEX_PROJECT", ""),
		VertexRegion:        getEnv("VERTEX_REGION", "asia-southeast1"),
		LangfusePublicKey:   getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:   getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseBaseURL:     getEnv("LANGFUSE_BASE_URL", "https://cloud.langfuse.com"),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getInt("SMTP_PORT", 587),
		SMTPUser:            getEnv("SMTP_USER", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:            getEnv("SMTP_FROM", getEnv("SMTP_USER", "")),
		IMAPHost:            getEnv("IMAP_HOST", ""),
		IMAPPort:            getInt("IMAP_PORT", 993),
		IMAPUser:            getEnv("IMAP_USER", getEnv("SMTP_USER", "")),
		IMAPPassword:        getEnv("IMAP_PASSWORD", getEnv("SMTP_PASSWORD", "")),
		IMAPMailbox:         getEnv("IMAP_MAILBOX", "INBOX"),
		IMAPFilter:          getEnv("IMAP_FILTER", "unseen has:attachment"),
		MailPollSeconds:     getInt("MAIL_POLL_SECONDS", 60),
		NotifyRecipients:    splitAndTrim(getEnv("NOTIFY_RECIPIENTS", "")),
		FileStoreTokenURL:   getEnv("FILESTORE_TOKEN_URL", ""),
		FileStoreClientID:   getEnv("FILESTORE_CLIENT_ID", ""),
		FileStoreSecret:     getEnv("FILESTORE_CLIENT_SECRET", ""),
		FileStoreBaseURL:    getEnv("FILESTORE_BASE_URL", ""),
		ChecklistTemplate:   getEnv("CHECKLIST_TEMPLATE", "assets/templates/checklist_hsmt.xlsx"),
		TechnicalTemplate:   getEnv("TECHNICAL_TEMPLATE", "assets/templates/tbdu_kythuat.docx"),
		WorkerConcurrency:   getInt("WORKER_CONCURRENCY", 2),
		ShutdownTimeoutSecs: getInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
		AgentAIName:         getEnv("AGENTAI_NAME", ""),
		AgentAICode:         getEnv("AGENTAI_CODE", ""),
	}
}

// QueueName appends the environment tag to a base queue name.
func (c Config) QueueName(base string) string {
	if strings.TrimSpace(c.QueueEnv) == "" {
		return base
	}
	return base + "_" + strings.TrimSpace(c.QueueEnv)
}

// IsDevLike reports whether in-memory fallbacks are allowed.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func databaseURL() string {
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		return raw
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("DB_USER", "postgres"), os.Getenv("DB_PASSWORD")),
		Host:     fmt.Sprintf("%s:%s", host, getEnv("DB_PORT", "5432")),
		Path:     "/" + getEnv("DB_NAME", "postgres"),
		RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "disable"),
	}
	return u.String()
}

func rabbitURL() string {
	if raw := os.Getenv("RABBITMQ_URL"); raw != "" {
		return raw
	}
	host := os.Getenv("RABBITMQ_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(getEnv("RABBITMQ_USER", "guest"), getEnv("RABBITMQ_PASSWORD", "guest")),
		Host:   fmt.Sprintf("%s:%s", host, getEnv("RABBITMQ_PORT", "5672")),
		Path:   "/",
	}
	return u.String()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s invalid int %q", key, raw)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "minio"
	}
}

func normalizeBusType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "memory":
		return "memory"
	default:
		return "amqp"
	}
}
