package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppPort         string
	AppBaseURL      string
	FrontendBaseURL string
	AllowOrigins    string
	LogLevel        string
	CookieSecure    bool

	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RememberTTL     time.Duration

	AdminEmail    string
	AdminPassword string

	GoogleClientID string
	GoogleSecret   string
	GoogleRedirect string

	BrevoAPIKey      string
	BrevoSenderEmail string
	BrevoSenderName  string

	SMSUsername string
	SMSAPIKey   string
	SMSSenderID string

	MpesaBaseURL      string
	MpesaAPIKey       string
	MpesaCountryCode  string
	PaymentTimeout    time.Duration
	PaymentAttemptTTL time.Duration
	CompanyFeePercent int64

	StorageEndpoint  string
	StorageRegion    string
	StorageBucket    string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	StoragePublicURL string
	UploadMaxBytes   int64

	QuoteRejectPolicy string
	NotifyWorkers     int
	NotifyMaxAttempts int
	ResetTokenTTL     time.Duration
	AuthRatePerMinute int
}

func Load() Config {
	return Config{
		AppPort:         get("APP_PORT", "8080"),
		AppBaseURL:      get("APP_BASE_URL", "http://localhost:8080"),
		FrontendBaseURL: get("FRONTEND_BASE_URL", "http://localhost:3000"),
		AllowOrigins:    get("CORS_ALLOW_ORIGINS", "http://127.0.0.1:3000, http://localhost:3000"),
		LogLevel:        get("LOG_LEVEL", "info"),
		CookieSecure:    getBool("COOKIE_SECURE", false),

		DBDSN:         must("DB_DSN"),
		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		JWTSecret:       must("JWT_SECRET"),
		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 24*time.Hour),
		RememberTTL:     getDuration("REMEMBER_TOKEN_TTL", 30*24*time.Hour),

		AdminEmail:    get("ADMIN_EMAIL", "admin@kaakazini.local"),
		AdminPassword: get("ADMIN_PASSWORD", ""),

		GoogleClientID: get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:   get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect: get("GOOGLE_REDIRECT_URL", ""),

		BrevoAPIKey:      get("BREVO_API_KEY", ""),
		BrevoSenderEmail: get("BREVO_SENDER_EMAIL", "no-reply@kaakazini.com"),
		BrevoSenderName:  get("BREVO_SENDER_NAME", "Kaakazini"),

		SMSUsername: get("AT_USERNAME", "sandbox"),
		SMSAPIKey:   get("AT_API_KEY", ""),
		SMSSenderID: get("AT_SENDER_ID", ""),

		MpesaBaseURL:      get("INTASEND_BASE_URL", "https://api.intasend.com/v1/mpesa/stkpush"),
		MpesaAPIKey:       get("INTASEND_API_KEY", ""),
		MpesaCountryCode:  get("MPESA_COUNTRY_CODE", "254"),
		PaymentTimeout:    getDuration("PAYMENT_TIMEOUT", 10*time.Second),
		PaymentAttemptTTL: getDuration("PAYMENT_ATTEMPT_TTL", 5*time.Minute),
		CompanyFeePercent: int64(getInt("COMPANY_FEE_PERCENT", 10)),

		StorageEndpoint:  get("STORAGE_ENDPOINT", "fra1.digitaloceanspaces.com"),
		StorageRegion:    get("STORAGE_REGION", "fra1"),
		StorageBucket:    get("STORAGE_BUCKET", "kaakazini"),
		StorageAccessKey: get("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: get("STORAGE_SECRET_KEY", ""),
		StorageUseSSL:    getBool("STORAGE_USE_SSL", true),
		StoragePublicURL: get("STORAGE_PUBLIC_URL", ""),
		UploadMaxBytes:   int64(getInt("UPLOAD_MAX_BYTES", 25*1024*1024)),

		QuoteRejectPolicy: strings.ToLower(get("QUOTE_REJECT_POLICY", "release")),
		NotifyWorkers:     getInt("NOTIFY_WORKERS", 2),
		NotifyMaxAttempts: getInt("NOTIFY_MAX_ATTEMPTS", 3),
		ResetTokenTTL:     getDuration("RESET_TOKEN_TTL", time.Hour),
		AuthRatePerMinute: getInt("AUTH_RATE_PER_MINUTE", 20),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func getInt(k string, def int) int {
	n, err := strconv.Atoi(get(k, ""))
	if err != nil {
		return def
	}
	return n
}

func getBool(k string, def bool) bool {
	b, err := strconv.ParseBool(get(k, ""))
	if err != nil {
		return def
	}
	return b
}

func getDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(get(k, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
