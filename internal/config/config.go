package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
)

const (
	DefaultConfigPath           = "config.toml"
	DefaultDotenvPath           = ".env"
	DefaultServiceName          = "LINE Bot OneDrive AI"
	DefaultPort                 = 8000
	DefaultMaxFileSize    int64 = 10 * 1024 * 1024
	DefaultRootFolder           = "LineBot_Uploads"
	DefaultOpenAIModel          = "gpt-4o"
	DefaultHTTPTimeout          = 30 * time.Second
	DefaultEventTimeout         = 60 * time.Second
	DefaultGraphBaseURL         = "https://graph.microsoft.com/v1.0"
	DefaultGraphAuthority       = "https://login.microsoftonline.com"
	DefaultGraphScope           = "https://graph.microsoft.com/.default"
	DefaultJWTExpiresIn         = "24h"
)

// DefaultAllowedExtensions lists the upload extensions accepted when none are configured.
var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png", "pdf", "txt", "docx", "xlsx"}

// ErrConfiguration is wrapped by every error describing missing or invalid settings.
var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Line     LineConfig     `toml:"line"`
	Graph    GraphConfig    `toml:"microsoft_graph"`
	OneDrive OneDriveConfig `toml:"onedrive"`
	OpenAI   OpenAIConfig   `toml:"openai"`
	Upload   UploadConfig   `toml:"upload"`
	HTTP     HTTPConfig     `toml:"http"`
}

type ServiceConfig struct {
	Name  string `toml:"name" envconfig:"SERVICE_NAME"`
	Debug bool   `toml:"debug" envconfig:"DEBUG"`
}

type LogConfig struct {
	Level  string `toml:"level" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Format string `toml:"format" envconfig:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
	File   string `toml:"file" envconfig:"LOG_FILE"`
}

type ServerConfig struct {
	Addr string `toml:"addr" envconfig:"SERVER_ADDR"`
	Port int    `toml:"port" envconfig:"PORT" validate:"gte=0,lte=65535"`
}

// ListenAddr returns Addr when set, otherwise ":<Port>".
func (c ServerConfig) ListenAddr() string {
	if addr := strings.TrimSpace(c.Addr); addr != "" {
		return addr
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return ":" + strconv.Itoa(port)
}

type AuthConfig struct {
	SecretKey    string `toml:"secret_key" envconfig:"SECRET_KEY" validate:"required"`
	JWTExpiresIn string `toml:"jwt_expires_in" envconfig:"JWT_EXPIRES_IN"`
}

// TokenTTL parses JWTExpiresIn, falling back to the default on bad input.
func (c AuthConfig) TokenTTL() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.JWTExpiresIn))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultJWTExpiresIn)
	}
	return d
}

type LineConfig struct {
	ChannelAccessToken string `toml:"channel_access_token" envconfig:"LINE_CHANNEL_ACCESS_TOKEN" validate:"required"`
	ChannelSecret      string `toml:"channel_secret" envconfig:"LINE_CHANNEL_SECRET" validate:"required"`
	APIEndpoint        string `toml:"api_endpoint" envconfig:"LINE_API_ENDPOINT" validate:"omitempty,url"`
	DataEndpoint       string `toml:"data_endpoint" envconfig:"LINE_DATA_ENDPOINT" validate:"omitempty,url"`
}

type GraphConfig struct {
	ClientID     string `toml:"client_id" envconfig:"MICROSOFT_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" envconfig:"MICROSOFT_CLIENT_SECRET"`
	TenantID     string `toml:"tenant_id" envconfig:"MICROSOFT_TENANT_ID"`
	BaseURL      string `toml:"base_url" envconfig:"MICROSOFT_GRAPH_BASE_URL" validate:"omitempty,url"`
	Authority    string `toml:"authority" envconfig:"MICROSOFT_AUTHORITY" validate:"omitempty,url"`
}

// Configured reports whether all client-credential settings are present.
func (c GraphConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.TenantID) != ""
}

// TokenURL is the tenant-scoped OAuth2 token endpoint.
func (c GraphConfig) TokenURL() string {
	authority := strings.TrimRight(strings.TrimSpace(c.Authority), "/")
	if authority == "" {
		authority = DefaultGraphAuthority
	}
	return authority + "/" + strings.TrimSpace(c.TenantID) + "/oauth2/v2.0/token"
}

type OneDriveConfig struct {
	RootFolder string `toml:"root_folder" envconfig:"ONEDRIVE_ROOT_FOLDER"`
	// UserID selects /users/{id}/drive. Application tokens cannot use /me,
	// so it is required in practice; /me/drive is used when it is empty.
	UserID string `toml:"user_id" envconfig:"ONEDRIVE_USER_ID"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key" envconfig:"OPENAI_API_KEY"`
	Model   string `toml:"model" envconfig:"OPENAI_MODEL"`
	BaseURL string `toml:"base_url" envconfig:"OPENAI_BASE_URL" validate:"omitempty,url"`
}

// Configured reports whether an API key is present.
func (c OpenAIConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type UploadConfig struct {
	MaxFileSize       int64    `toml:"max_file_size" envconfig:"MAX_FILE_SIZE" validate:"gt=0"`
	AllowedExtensions []string `toml:"allowed_extensions" envconfig:"ALLOWED_EXTENSIONS"`
}

type HTTPConfig struct {
	// Timeout bounds each outbound call.
	Timeout time.Duration `toml:"timeout" envconfig:"HTTP_TIMEOUT"`
	// EventTimeout bounds the whole handling of one webhook event.
	EventTimeout time.Duration `toml:"event_timeout" envconfig:"EVENT_TIMEOUT"`
}

// Defaults returns a Config populated with every default value.
func Defaults() Config {
	return Config{
		Service: ServiceConfig{Name: DefaultServiceName},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{Port: DefaultPort},
		Auth:   AuthConfig{JWTExpiresIn: DefaultJWTExpiresIn},
		Graph: GraphConfig{
			BaseURL:   DefaultGraphBaseURL,
			Authority: DefaultGraphAuthority,
		},
		OneDrive: OneDriveConfig{RootFolder: DefaultRootFolder},
		OpenAI:   OpenAIConfig{Model: DefaultOpenAIModel},
		Upload: UploadConfig{
			MaxFileSize:       DefaultMaxFileSize,
			AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
		},
		HTTP: HTTPConfig{
			Timeout:      DefaultHTTPTimeout,
			EventTimeout: DefaultEventTimeout,
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at path,
// the optional .env file and finally the process environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := loadDotenv(DefaultDotenvPath); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotenv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Upload.AllowedExtensions = NormalizeExtensions(c.Upload.AllowedExtensions)
	if strings.TrimSpace(c.Service.Name) == "" {
		c.Service.Name = DefaultServiceName
	}
	if strings.TrimSpace(c.OneDrive.RootFolder) == "" {
		c.OneDrive.RootFolder = DefaultRootFolder
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.EventTimeout <= 0 {
		c.HTTP.EventTimeout = DefaultEventTimeout
	}
}

// NormalizeExtensions lowercases, trims leading dots and drops empty or duplicate entries.
func NormalizeExtensions(exts []string) []string {
	cleaned := lo.FilterMap(exts, func(ext string, _ int) (string, bool) {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		return ext, ext != ""
	})
	return lo.Uniq(cleaned)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report failures by environment variable name so operators know what to set.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("envconfig"); name != "" {
			return name
		}
		return field.Name
	})
	return v
}

// Validate checks required secrets and value ranges.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	missing := make([]string, 0, len(verrs))
	invalid := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(invalid, ", "))
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(parts, "; "))
}
