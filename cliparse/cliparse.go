package cliparse

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string

	SessionSecret string
	SessionTTL    time.Duration

	MediaDir     string
	MaxImageSize int64
	MaxVideoSize int64
	ChunkSize    int64
	UploadExpiry time.Duration

	// Estimated cost in paise above which the CEO must sign off.
	CEOApprovalThreshold int64

	PublicBaseURL string
	LogLevel      string
	LogFormat     string

	// Login attempts allowed per minute per client IP.
	LoginRate int

	// Peers whose X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies []*net.IPNet
}

// NewViper returns a viper instance reading PORTAL_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v
}

// BindFlags registers every option on fs and binds it to v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.IntP("port", "p", 3318, "Server port")
	fs.StringP("database-url", "d", "", "Database URL")
	fs.StringP("database-type", "t", DatabaseSQLite, "Database type (sqlite or postgres)")
	fs.String("session-secret", "", "Secret for session tokens and file signatures (prefer env)")
	fs.Duration("session-ttl", 12*time.Hour, "Session lifetime")
	fs.String("media-dir", "./media", "Directory for uploaded media")
	fs.String("max-image-size", "10MB", "Largest accepted image")
	fs.String("max-video-size", "500MB", "Largest accepted video")
	fs.String("chunk-size", "5MB", "Largest accepted upload chunk")
	fs.Duration("upload-expiry", 24*time.Hour, "Age after which unfinished uploads are discarded")
	fs.Int64("ceo-approval-threshold", 10_000_000, "Estimated cost (paise) above which CEO approval is required")
	fs.String("public-base-url", "http://localhost:3318", "Public URL of the portal")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "console", "Log format (console or json)")
	fs.Int("login-rate", 10, "Login attempts per minute per client IP")
	fs.String("trusted-proxies", "", "Comma-separated IPs or CIDRs of reverse proxies allowed to set X-Forwarded-For")

	return v.BindPFlags(fs)
}

// LoadDotEnv loads environment variables from path when the file exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:                 v.GetInt("port"),
		DatabaseURL:          v.GetString("database-url"),
		DatabaseType:         strings.ToLower(v.GetString("database-type")),
		SessionSecret:        v.GetString("session-secret"),
		SessionTTL:           v.GetDuration("session-ttl"),
		MediaDir:             v.GetString("media-dir"),
		UploadExpiry:         v.GetDuration("upload-expiry"),
		CEOApprovalThreshold: v.GetInt64("ceo-approval-threshold"),
		PublicBaseURL:        strings.TrimRight(v.GetString("public-base-url"), "/"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
		LoginRate:            v.GetInt("login-rate"),
	}

	var err error
	if cfg.MaxImageSize, err = parseSize(v, "max-image-size"); err != nil {
		return Config{}, err
	}
	if cfg.MaxVideoSize, err = parseSize(v, "max-video-size"); err != nil {
		return Config{}, err
	}
	if cfg.ChunkSize, err = parseSize(v, "chunk-size"); err != nil {
		return Config{}, err
	}
	if cfg.TrustedProxies, err = ParseProxies(v.GetString("trusted-proxies")); err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or PORTAL_DATABASE_URL env)")
	}
	if cfg.DatabaseType != DatabasePostgres && cfg.DatabaseType != DatabaseSQLite {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	// Secrets - MUST be provided
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("PORTAL_SESSION_SECRET required")
	}
	if len(cfg.SessionSecret) < 16 {
		return Config{}, errors.New("session secret must be at least 16 characters")
	}

	if cfg.SessionTTL <= 0 {
		return Config{}, errors.New("session-ttl must be positive")
	}
	if cfg.CEOApprovalThreshold < 0 {
		return Config{}, errors.New("ceo-approval-threshold must not be negative")
	}
	if cfg.LoginRate <= 0 {
		return Config{}, errors.New("login-rate must be positive")
	}

	return cfg, nil
}

// ParseFlags parses args on a fresh flag set and loads the configuration.
func ParseFlags(args []string) (Config, error) {
	fs := pflag.NewFlagSet("portal", pflag.ContinueOnError)
	v := NewViper()
	if err := BindFlags(fs, v); err != nil {
		return Config{}, err
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return Load(v)
}

func parseSize(v *viper.Viper, key string) (int64, error) {
	n, err := humanize.ParseBytes(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return int64(n), nil
}

// ParseProxies parses a comma or space separated list of IPs and CIDRs.
// A bare IP is a single-address network.
func ParseProxies(list string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, item := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ' ' }) {
		if !strings.Contains(item, "/") {
			ip := net.ParseIP(item)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", item)
			}
			bits := 128
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(item)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", item, err)
		}
		out = append(out, n)
	}
	return out, nil
}
