package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env file loaded before Load in local/dev).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	Routing RoutingConfig
	Notify  NotifyConfig
}

type AppConfig struct {
	Env  string
	Port int

	// LogFile enables a rotating file sink next to stdout when set.
	LogFile string

	// PublicBaseURL is the externally visible scheme+host the provider calls us on.
	// Signature checks and every callback URL in TwiML are built from it, never from the local socket.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Pool sizing. Every instance holds up to MaxOpenConns, so size it against
	// the server's max_connections divided by the replica count.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host string
	Port int
}

// AuthConfig verifies operator bearer tokens minted by the external auth system.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type TwilioConfig struct {
	AccountSID string
	// AuthToken doubles as the webhook signing secret.
	AuthToken string

	// API key + TwiML app are only needed for softphone access tokens.
	APIKeySID    string
	APIKeySecret string
	TwiMLAppSID  string
}

type RoutingConfig struct {
	DeskSIPURI        string
	SoftphoneIdentity string
	FallbackNumber    string

	DialTimeout   time.Duration
	ScreenTimeout time.Duration
	OfferTimeout  time.Duration
	MaxRecording  time.Duration
}

type NotifyConfig struct {
	SMSTo     string
	SMSFrom   string
	EmailTo   []string
	EmailFrom string

	SendGridAPIKey string
	Timezone       string

	Workers     int
	QueueSize   int
	MaxAttempts int
	SendTimeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns = optionalInt("DB_MAX_OPEN_CONNS", &parseErrs)
	c.DB.MaxIdleConns = optionalInt("DB_MAX_IDLE_CONNS", &parseErrs)
	c.DB.ConnMaxLifetime = mustDuration("DB_CONN_MAX_LIFETIME")
	c.DB.ConnMaxIdleTime = mustDuration("DB_CONN_MAX_IDLE_TIME")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.APIKeySID = strings.TrimSpace(os.Getenv("TWILIO_API_KEY_SID"))
	c.Twilio.APIKeySecret = os.Getenv("TWILIO_API_KEY_SECRET")
	c.Twilio.TwiMLAppSID = strings.TrimSpace(os.Getenv("TWILIO_TWIML_APP_SID"))

	c.Routing.DeskSIPURI = strings.TrimSpace(os.Getenv("ROUTING_DESK_SIP_URI"))
	c.Routing.SoftphoneIdentity = strings.TrimSpace(os.Getenv("ROUTING_SOFTPHONE_IDENTITY"))
	c.Routing.FallbackNumber = strings.TrimSpace(os.Getenv("ROUTING_FALLBACK_NUMBER"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Routing.DialTimeout = mustDuration("ROUTING_DIAL_TIMEOUT")
	c.Routing.ScreenTimeout = mustDuration("ROUTING_SCREEN_TIMEOUT")
	c.Routing.OfferTimeout = mustDuration("ROUTING_OFFER_TIMEOUT")
	c.Routing.MaxRecording = mustDuration("ROUTING_MAX_RECORDING")

	c.Notify.SMSTo = strings.TrimSpace(os.Getenv("NOTIFY_SMS_TO"))
	c.Notify.SMSFrom = strings.TrimSpace(os.Getenv("NOTIFY_SMS_FROM"))
	c.Notify.EmailTo = splitList(os.Getenv("NOTIFY_EMAIL_TO"))
	c.Notify.EmailFrom = strings.TrimSpace(os.Getenv("NOTIFY_EMAIL_FROM"))
	c.Notify.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	c.Notify.Timezone = strings.TrimSpace(os.Getenv("BUSINESS_TIMEZONE"))
	c.Notify.Workers = optionalInt("NOTIFY_WORKERS", &parseErrs)
	c.Notify.QueueSize = optionalInt("NOTIFY_QUEUE_SIZE", &parseErrs)
	c.Notify.MaxAttempts = optionalInt("NOTIFY_MAX_ATTEMPTS", &parseErrs)
	c.Notify.SendTimeout = mustDuration("NOTIFY_SEND_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills in defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL != "" {
		u, err := url.Parse(c.App.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.App.PublicBaseURL))
		}
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 20
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = c.DB.MaxOpenConns / 2
	}
	if c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) must not exceed DB_MAX_OPEN_CONNS (%d)", c.DB.MaxIdleConns, c.DB.MaxOpenConns))
	}
	if c.DB.ConnMaxLifetime <= 0 {
		c.DB.ConnMaxLifetime = 30 * time.Minute
	}
	if c.DB.ConnMaxIdleTime <= 0 {
		c.DB.ConnMaxIdleTime = 5 * time.Minute
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	// Without a signing secret webhooks are accepted unverified. That is a
	// development escape hatch only; production refuses to start.
	if c.IsProduction() {
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
		if c.App.PublicBaseURL == "" {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		}
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
	}
	if c.Twilio.AuthToken != "" && c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required when TWILIO_AUTH_TOKEN is set"))
	}

	if c.Routing.DeskSIPURI == "" && c.Routing.SoftphoneIdentity == "" && c.Routing.FallbackNumber == "" {
		errs = append(errs, errors.New("at least one of ROUTING_DESK_SIP_URI, ROUTING_SOFTPHONE_IDENTITY, ROUTING_FALLBACK_NUMBER is required"))
	}
	if c.Routing.DeskSIPURI != "" && !strings.HasPrefix(strings.ToLower(c.Routing.DeskSIPURI), "sip:") {
		errs = append(errs, fmt.Errorf("ROUTING_DESK_SIP_URI must start with sip:, got %q", c.Routing.DeskSIPURI))
	}
	if c.Routing.DialTimeout <= 0 {
		c.Routing.DialTimeout = 20 * time.Second
	}
	if c.Routing.ScreenTimeout <= 0 {
		c.Routing.ScreenTimeout = 5 * time.Second
	}
	if c.Routing.OfferTimeout <= 0 {
		c.Routing.OfferTimeout = 5 * time.Second
	}
	if c.Routing.MaxRecording <= 0 {
		c.Routing.MaxRecording = 120 * time.Second
	}

	if c.Notify.Timezone == "" {
		c.Notify.Timezone = "America/Los_Angeles"
	}
	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("BUSINESS_TIMEZONE must be an IANA zone, got %q", c.Notify.Timezone))
	}
	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 4
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 256
	}
	if c.Notify.MaxAttempts <= 0 {
		c.Notify.MaxAttempts = 3
	}
	if c.Notify.SendTimeout <= 0 {
		c.Notify.SendTimeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsLocal reports whether a developer .env file may be loaded.
func IsLocal(env string) bool {
	return env == "local" || env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Location returns the business timezone. Validate guarantees it parses.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Notify.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
