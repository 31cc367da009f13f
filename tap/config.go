package tap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/biter777/countries"
	"go.uber.org/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	SandboxBaseURL      = "https://sandbox.dev.clover.com"
	USBaseURL           = "https://api.clover.com"
	EuropeBaseURL       = "https://api.eu.clover.com"
	LatinAmericaBaseURL = "https://api.la.clover.com"

	// DefaultTokenURL is the Clover endpoint that exchanges a refresh token for a new token pair.
	DefaultTokenURL = "https://api.clover.com/oauth/v2/refresh"
)

const (
	RegionUS           = "us"
	RegionCanada       = "canada"
	RegionEurope       = "europe"
	RegionLatinAmerica = "latin_america"

	DefaultRegion = RegionUS
)

// Config is the tap configuration, read from a JSON (or YAML) file.
type Config struct {
	MerchantID   string `yaml:"merchant_id"`
	IsSandbox    *bool  `yaml:"is_sandbox"`
	Region       string `yaml:"region"`
	APIToken     string `yaml:"api_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	AccessToken  string `yaml:"access_token"`
	// ExpiresIn is the expiry of AccessToken in epoch seconds.
	ExpiresIn int64  `yaml:"expires_in"`
	UserAgent string `yaml:"user_agent"`
	StartDate string `yaml:"start_date"`
	TokenURL  string `yaml:"token_url"`
	// APIURL replaces the regional host, e.g. for a proxy.
	APIURL string `yaml:"api_url"`

	// FieldTransforms maps stream -> derived field -> gjson path (modifiers allowed).
	FieldTransforms map[string]map[string]string `yaml:"field_transforms"`
}

// Sandbox reports whether the sandbox environment and API key authentication are used.
func (c Config) Sandbox() bool {
	return c.IsSandbox != nil && *c.IsSandbox
}

// Validate checks the required keys for the configured authentication mode.
func (c Config) Validate() error {
	var errs []error
	missing := func(key string) {
		errs = append(errs, fmt.Errorf("%w: %s is required", ErrInvalidConfig, key))
	}
	if strings.TrimSpace(c.MerchantID) == "" {
		missing("merchant_id")
	}
	if c.IsSandbox == nil {
		missing("is_sandbox")
	} else if *c.IsSandbox {
		if c.APIToken == "" {
			missing("api_token")
		}
	} else {
		if c.ClientID == "" {
			missing("client_id")
		}
		if c.RefreshToken == "" && c.AccessToken == "" {
			missing("refresh_token")
		}
	}
	if c.StartDate != "" {
		if _, err := NormalizeTimestamp(c.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("%w: start_date %w", ErrInvalidConfig, err))
		}
	}
	return errors.Join(errs...)
}

// NormalizeRegion maps a configured region onto one of the Clover regions.
// Country names and ISO codes are accepted too, e.g. "GB" or "Mexico".
// An unrecognised value is returned lower cased.
func NormalizeRegion(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	switch r {
	case "":
		return DefaultRegion
	case RegionUS, RegionCanada, RegionEurope, RegionLatinAmerica:
		return r
	}
	c := countries.ByName(region)
	switch {
	case c == countries.Unknown:
		return r
	case c == countries.US:
		return RegionUS
	case c == countries.CA:
		return RegionCanada
	case c.Region() == countries.RegionEU:
		return RegionEurope
	case c.Region() == countries.RegionSA, c.Region() == countries.RegionNA:
		return RegionLatinAmerica
	}
	return r
}

// BaseURL returns the API host for the configured environment and region.
func (c Config) BaseURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	if c.Sandbox() {
		return SandboxBaseURL
	}
	switch region := NormalizeRegion(c.Region); region {
	case RegionUS, RegionCanada:
		return USBaseURL
	case RegionEurope:
		return EuropeBaseURL
	case RegionLatinAmerica:
		return LatinAmericaBaseURL
	default:
		Logger().Warn("unknown region, using the default host",
			zap.String("region", c.Region),
			zap.String("host", USBaseURL))
		return USBaseURL
	}
}

// RefreshURL returns the token endpoint, honouring token_url.
func (c Config) RefreshURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return DefaultTokenURL
}

// Credential returns the OAuth credential held in the config.
func (c Config) Credential() Credential {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
	}
	if c.ExpiresIn > 0 {
		token.Expiry = time.Unix(c.ExpiresIn, 0)
	}
	return Credential{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Token:        token,
	}
}

type ConfigUnmarshaler interface {
	Unmarshal(compev CompositeEnvVar, sources ...ConfigFile) (Config, error)
}

type YAMLConfigUnmarshaler struct{}

// Unmarshal layers the sources over the built-in defaults, later sources winning.
// ${VAR} references are resolved through compev.
func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...ConfigFile) (Config, error) {
	var result Config
	options := []config.YAMLOption{
		config.Static(map[string]any{"region": DefaultRegion}),
	}
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	if err = yaml.Get(config.Root).Populate(&result); err != nil {
		return result, fmt.Errorf("failed to populate config %w", err)
	}
	return result, nil
}

// LoadConfig reads and validates the config file at path.
func LoadConfig(path string, compev CompositeEnvVar) (Config, error) {
	file, err := ReadConfigFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %w", err)
	}
	result, err := YAMLConfigUnmarshaler{}.Unmarshal(compev, file)
	if err != nil {
		return result, fmt.Errorf("failed to load config %w", err)
	}
	if err = result.Validate(); err != nil {
		return result, err
	}
	return result, nil
}
