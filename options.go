package ironlicensing

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// DefaultAPIBaseURL is the production licensing service endpoint.
const DefaultAPIBaseURL = "https://api.ironlicensing.com"

// Options configures a Client.
//
// PublicKey and ProductSlug are the two mandatory credentials; they
// authenticate the product, not the end user. Everything else has a
// working default.
type Options struct {
	// PublicKey is the product's public API key (pk_live_... / pk_test_...).
	PublicKey string `yaml:"public_key" envconfig:"PUBLIC_KEY" validate:"required"`
	// ProductSlug identifies the product on the licensing service.
	ProductSlug string `yaml:"product_slug" envconfig:"PRODUCT_SLUG" validate:"required"`
	// APIBaseURL overrides the licensing service endpoint.
	APIBaseURL string `yaml:"api_base_url" envconfig:"API_BASE_URL" validate:"required,url"`
	// Debug raises per-call log verbosity.
	Debug bool `yaml:"debug" envconfig:"DEBUG"`
	// EnableOfflineCache turns on reuse of the last successful validation
	// when the service is unreachable. Disabled by default.
	EnableOfflineCache bool `yaml:"enable_offline_cache" envconfig:"ENABLE_OFFLINE_CACHE"`
	// CacheValidationInterval is how long a successful validation stays
	// fresh before Validate goes back to the network (offline cache only).
	CacheValidationInterval time.Duration `yaml:"cache_validation_interval" envconfig:"CACHE_VALIDATION_INTERVAL" validate:"min=0"`
	// OfflineGraceDays bounds how old a cached result may be when it is
	// served as a network-failure fallback (offline cache only).
	OfflineGraceDays int `yaml:"offline_grace_days" envconfig:"OFFLINE_GRACE_DAYS" validate:"min=0"`
	// HTTPTimeout applies to every request to the licensing service.
	HTTPTimeout time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT" validate:"min=0"`
	// MachineIDPath overrides the machine identity file location.
	// Defaults to ~/.ironlicensing/machine_id.
	MachineIDPath string `yaml:"machine_id_path" envconfig:"MACHINE_ID_PATH"`

	// Logger receives structured SDK logs. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-" ignored:"true" validate:"-"`
	// HTTPClient overrides the transport's HTTP client. Mainly for tests;
	// when set, HTTPTimeout is left to the provided client.
	HTTPClient *http.Client `yaml:"-" ignored:"true" validate:"-"`
}

// NewOptions returns Options with the given credentials and all defaults set.
func NewOptions(publicKey, productSlug string) Options {
	opts := defaultOptions()
	opts.PublicKey = publicKey
	opts.ProductSlug = productSlug
	return opts
}

func defaultOptions() Options {
	return Options{
		APIBaseURL:              DefaultAPIBaseURL,
		CacheValidationInterval: 60 * time.Minute,
		OfflineGraceDays:        7,
		HTTPTimeout:             30 * time.Second,
	}
}

// OptionsFromEnv loads Options from IRONLICENSING_* environment variables
// on top of the defaults.
func OptionsFromEnv() (Options, error) {
	opts := defaultOptions()
	if err := envconfig.Process("IRONLICENSING", &opts); err != nil {
		return Options{}, fmt.Errorf("load options from env: %w", err)
	}
	return opts, nil
}

// LoadOptionsFile loads Options from a YAML file on top of the defaults.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options file: %w", err)
	}
	opts := defaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options file %s: %w", path, err)
	}
	return opts, nil
}

var optionsValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the options. The two credential checks surface as the
// dedicated configuration errors so embedders can branch on them.
func (o *Options) Validate() error {
	if o.PublicKey == "" {
		return ErrPublicKeyRequired
	}
	if o.ProductSlug == "" {
		return ErrProductSlugRequired
	}
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// logger returns the configured logger scoped to the SDK component.
func (o *Options) logger() *slog.Logger {
	base := o.Logger
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("component", "ironlicensing"))
}
