package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	RateLimitRPS       int
	RateLimitBurst     int

	// Dialogue model
	GeminiAPIKey        string
	GeminiPrimaryModel  string
	GeminiFallbackModel string
	GeminiChatModel     string
	AssistantName       string
	HospitalName        string
	DefaultLanguage     string
	AllowRebooking      bool
	TurnTimeout         time.Duration
	PersistTimeout      time.Duration

	// Availability provider
	AvailabilitySource string
	AvailabilityURL    string
	AvailabilityFile   string

	// Appointment store
	AppointmentBackend string
	DatabaseURL        string
	AppointmentURL     string

	// Transcript store
	TranscriptBackend string
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
	MongoURI          string
	MongoDatabase     string
	TranscriptURL     string

	// Speech
	OpenAIAPIKey                string
	OpenAITTSModel              string
	OpenAISTTModel              string
	LocalTTSBinary              string
	GoogleSpeechCredentialsFile string

	// Archive
	ArchiveBucket string
	AWSRegion     string

	// SendGrid Email Configuration
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SendGridReplyTo    string
	BookingNotifyEmail string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvAsInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiPrimaryModel:  getEnv("GEMINI_PRIMARY_MODEL", "gemini-3-pro-preview"),
		GeminiFallbackModel: getEnv("GEMINI_FALLBACK_MODEL", "gemini-2.5-flash"),
		GeminiChatModel:     getEnv("GEMINI_CHAT_MODEL", "gemini-3-flash-preview"),
		AssistantName:       getEnv("ASSISTANT_NAME", "Puck"),
		HospitalName:        getEnv("HOSPITAL_NAME", "Rajagiri Hospital"),
		DefaultLanguage:     getEnv("DEFAULT_LANGUAGE", "en-US"),
		AllowRebooking:      getEnvAsBool("ALLOW_REBOOKING", false),
		TurnTimeout:         getEnvAsDuration("TURN_TIMEOUT", 45*time.Second),
		PersistTimeout:      getEnvAsDuration("PERSIST_TIMEOUT", 10*time.Second),

		AvailabilitySource: strings.ToLower(strings.TrimSpace(getEnv("AVAILABILITY_SOURCE", "static"))),
		AvailabilityURL:    getEnv("AVAILABILITY_URL", ""),
		AvailabilityFile:   getEnv("AVAILABILITY_FILE", ""),

		AppointmentBackend: strings.ToLower(strings.TrimSpace(getEnv("APPOINTMENT_BACKEND", "memory"))),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AppointmentURL:     getEnv("APPOINTMENT_URL", ""),

		TranscriptBackend: strings.ToLower(strings.TrimSpace(getEnv("TRANSCRIPT_BACKEND", "memory"))),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDatabase:     getEnv("MONGO_DATABASE", "booking"),
		TranscriptURL:     getEnv("TRANSCRIPT_URL", ""),

		OpenAIAPIKey:                getEnv("OPENAI_API_KEY", ""),
		OpenAITTSModel:              getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAISTTModel:              getEnv("OPENAI_STT_MODEL", "whisper-1"),
		LocalTTSBinary:              getEnv("LOCAL_TTS_BINARY", "espeak-ng"),
		GoogleSpeechCredentialsFile: getEnv("GOOGLE_SPEECH_CREDENTIALS_FILE", ""),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Booking Desk"),
		SendGridReplyTo:    getEnv("SENDGRID_REPLY_TO", ""),
		BookingNotifyEmail: getEnv("BOOKING_NOTIFY_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
