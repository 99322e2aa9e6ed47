package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the client engine configuration.
type Config struct {
	Addr                  string
	MetricsAddr           string
	BackendURL            string
	LocalInterval         time.Duration
	AWSInterval           time.Duration
	AlertsInterval        time.Duration
	FetchTimeout          time.Duration
	LocalInputs           string
	DockerSocket          string
	BufferSize            int
	HistorySize           int
	InjectCooldown        time.Duration
	EnforceInjectCooldown bool
	EnvFile               string
	LogLevel              string
	LogFormat             string
	Credentials
}

// Credentials are the outbound notification settings that can change at runtime.
type Credentials struct {
	TelegramBotToken string
	TelegramChatID   string
	SlackWebhookURL  string
	Email            EmailCredentials
}

// EmailCredentials configure the SMTP alert channel. An empty host or zero
// port falls back to the notifier defaults.
type EmailCredentials struct {
	From     string
	Password string
	To       string
	SMTPHost string
	SMTPPort int
	SMTPTLS  bool
}

// BackendConfig configures the reference prediction service.
type BackendConfig struct {
	Addr          string
	DBPath        string
	AlertCooldown time.Duration
	RiskThreshold float64
	RetentionDays int
	EnvFile       string
	LogLevel      string
	LogFormat     string
	AWSRegion     string
	AWSInstanceID string
	Credentials
}

func Load() Config {
	return Config{
		Addr:                  getenv("APP_ADDR", ":8080"),
		MetricsAddr:           getenvAllowEmpty("APP_METRICS_ADDR", ":9091"),
		BackendURL:            getenv("APP_BACKEND_URL", "http://localhost:5001"),
		LocalInterval:         getenvDuration("APP_LOCAL_INTERVAL", 10*time.Second),
		AWSInterval:           getenvDuration("APP_AWS_INTERVAL", 10*time.Second),
		AlertsInterval:        getenvDuration("APP_ALERTS_INTERVAL", 10*time.Second),
		FetchTimeout:          getenvDuration("APP_FETCH_TIMEOUT", 5*time.Second),
		LocalInputs:           strings.ToLower(getenv("APP_LOCAL_INPUTS", "random")),
		DockerSocket:          getenv("DOCKER_SOCKET", "/var/run/docker.sock"),
		BufferSize:            getenvInt("APP_BUFFER_SIZE", 30),
		HistorySize:           getenvInt("APP_HISTORY_SIZE", 11),
		InjectCooldown:        getenvDuration("APP_INJECT_COOLDOWN", 5*time.Minute),
		EnforceInjectCooldown: getenvBool("APP_ENFORCE_INJECT_COOLDOWN", false),
		EnvFile:               getenv("APP_ENV_FILE", ".env"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		LogFormat:             getenv("LOG_FORMAT", "auto"),
		Credentials:           credentialsFromEnv(),
	}
}

func LoadBackend() BackendConfig {
	return BackendConfig{
		Addr:          getenv("BACKEND_ADDR", ":5001"),
		DBPath:        getenv("BACKEND_DB_PATH", "./data/infrasight.db"),
		AlertCooldown: getenvDuration("BACKEND_ALERT_COOLDOWN", 180*time.Second),
		RiskThreshold: getenvFloat("BACKEND_RISK_THRESHOLD", 85),
		RetentionDays: getenvInt("BACKEND_RETENTION_DAYS", 14),
		EnvFile:       getenv("APP_ENV_FILE", ".env"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "auto"),
		AWSRegion:     os.Getenv("MY_AWS_REGION"),
		AWSInstanceID: os.Getenv("MY_AWS_INSTANCE_ID"),
		Credentials:   credentialsFromEnv(),
	}
}

// LoadEnvFile exports the keys of a dotenv file that are not already set in
// the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ReadCredentials reads notification settings from a dotenv file, falling
// back to the process environment for keys the file does not set.
func ReadCredentials(path string) (Credentials, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, err
		}
		env = map[string]string{}
	}
	pick := func(k string) string {
		if v, ok := env[k]; ok {
			return strings.Trim(v, `'"`)
		}
		return os.Getenv(k)
	}
	return Credentials{
		TelegramBotToken: pick("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   pick("TELEGRAM_CHAT_ID"),
		SlackWebhookURL:  pick("SLACK_WEBHOOK_URL"),
		Email:            emailCredentials(pick),
	}, nil
}

func credentialsFromEnv() Credentials {
	return Credentials{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		SlackWebhookURL:  os.Getenv("SLACK_WEBHOOK_URL"),
		Email:            emailCredentials(os.Getenv),
	}
}

func emailCredentials(get func(string) string) EmailCredentials {
	port, _ := strconv.Atoi(strings.TrimSpace(get("SMTP_PORT")))
	tls, _ := strconv.ParseBool(strings.TrimSpace(get("SMTP_TLS")))
	return EmailCredentials{
		From:     get("ALERT_EMAIL"),
		Password: get("EMAIL_PASSWORD"),
		To:       get("TO_EMAIL"),
		SMTPHost: get("SMTP_HOST"),
		SMTPPort: port,
		SMTPTLS:  tls,
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// getenvAllowEmpty distinguishes an explicitly empty value from an unset one.
func getenvAllowEmpty(k, d string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
