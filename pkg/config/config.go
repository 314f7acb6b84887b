package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// CARGO_LICENSES_REGISTRY_TIMEOUT=30s.
const EnvPrefix = "CARGO_LICENSES"

// ProjectFileName is the project configuration file looked up in the
// working directory.
const ProjectFileName = ".cargo-licenses"

// Config holds all configuration for cargo-licenses
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Report   ReportConfig   `mapstructure:"report"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Cooling  CoolingConfig  `mapstructure:"cooling"`
	Log      LogConfig      `mapstructure:"log"`
}

// RegistryConfig controls crates.io lookups
type RegistryConfig struct {
	URL           string        `mapstructure:"url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"` // per dependency
	MaxRetries    int           `mapstructure:"max_retries"`
	Concurrency   int           `mapstructure:"concurrency"`
	IncludeYanked bool          `mapstructure:"include_yanked"`
}

// ManifestConfig selects the manifest and its sections
type ManifestConfig struct {
	Path         string `mapstructure:"path"`
	Dev          bool   `mapstructure:"dev"`
	Build        bool   `mapstructure:"build"`
	SkipOptional bool   `mapstructure:"skip_optional"`
}

// ReportConfig holds report defaults
type ReportConfig struct {
	Format string `mapstructure:"format"` // md, json, xml
	Output string `mapstructure:"output"`
}

// PolicyConfig holds the license policy
type PolicyConfig struct {
	File            string   `mapstructure:"file"`
	Allow           []string `mapstructure:"allow"`
	Deny            []string `mapstructure:"deny"`
	DenyStrategy    string   `mapstructure:"deny_strategy"` // choice, any
	CaseInsensitive bool     `mapstructure:"case_insensitive"`
	Ignore          []string `mapstructure:"ignore"`
	Rego            string   `mapstructure:"rego"`
}

// CoolingConfig rejects releases younger than MinAgeDays. Zero disables it.
type CoolingConfig struct {
	MinAgeDays int                `mapstructure:"min_age_days"`
	Exceptions []CoolingException `mapstructure:"exceptions"`
}

// CoolingException exempts crates matching Pattern, optionally until a date
// (YYYY-MM-DD).
type CoolingException struct {
	Pattern string `mapstructure:"pattern"`
	Until   string `mapstructure:"until"`
}

// LogConfig holds logging defaults
type LogConfig struct {
	Level   string `mapstructure:"level"`
	JSON    bool   `mapstructure:"json"`
	NoColor bool   `mapstructure:"no_color"`
}

var defaultConfig = Config{
	Registry: RegistryConfig{
		URL:         "https://crates.io",
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		Concurrency: 8,
	},
	Manifest: ManifestConfig{
		Path: "Cargo.toml",
	},
	Report: ReportConfig{
		Format: "md",
	},
	Policy: PolicyConfig{
		Allow:        []string{},
		Deny:         []string{},
		DenyStrategy: "choice",
		Ignore:       []string{},
	},
	Log: LogConfig{
		Level: "info",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Policy.Allow = []string{}
	c.Policy.Deny = []string{}
	c.Policy.Ignore = []string{}
	return &c
}

// Load reads configuration. An explicit file must exist; otherwise the
// project file in the working directory and then the user config
// directory are tried, and their absence is not an error. Environment
// variables override files.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ProjectFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if configDir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(configDir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var config Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, hooks); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Policy.Allow = trimAll(config.Policy.Allow)
	config.Policy.Deny = trimAll(config.Policy.Deny)
	config.Policy.Ignore = trimAll(config.Policy.Ignore)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry.url", defaultConfig.Registry.URL)
	v.SetDefault("registry.user_agent", defaultConfig.Registry.UserAgent)
	v.SetDefault("registry.timeout", defaultConfig.Registry.Timeout)
	v.SetDefault("registry.max_retries", defaultConfig.Registry.MaxRetries)
	v.SetDefault("registry.concurrency", defaultConfig.Registry.Concurrency)
	v.SetDefault("registry.include_yanked", defaultConfig.Registry.IncludeYanked)

	v.SetDefault("manifest.path", defaultConfig.Manifest.Path)
	v.SetDefault("manifest.dev", defaultConfig.Manifest.Dev)
	v.SetDefault("manifest.build", defaultConfig.Manifest.Build)
	v.SetDefault("manifest.skip_optional", defaultConfig.Manifest.SkipOptional)

	v.SetDefault("report.format", defaultConfig.Report.Format)
	v.SetDefault("report.output", defaultConfig.Report.Output)

	v.SetDefault("policy.file", defaultConfig.Policy.File)
	v.SetDefault("policy.allow", []string{})
	v.SetDefault("policy.deny", []string{})
	v.SetDefault("policy.deny_strategy", defaultConfig.Policy.DenyStrategy)
	v.SetDefault("policy.case_insensitive", defaultConfig.Policy.CaseInsensitive)
	v.SetDefault("policy.ignore", []string{})
	v.SetDefault("policy.rego", defaultConfig.Policy.Rego)

	v.SetDefault("cooling.min_age_days", defaultConfig.Cooling.MinAgeDays)

	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.json", defaultConfig.Log.JSON)
	v.SetDefault("log.no_color", defaultConfig.Log.NoColor)
}

// Validate rejects values no command can work with.
func (c *Config) Validate() error {
	var problems []string
	if c.Registry.Concurrency < 1 {
		problems = append(problems, fmt.Sprintf("registry.concurrency must be at least 1 (got %d)", c.Registry.Concurrency))
	}
	if c.Registry.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("registry.timeout must be positive (got %s)", c.Registry.Timeout))
	}
	if c.Registry.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("registry.max_retries must not be negative (got %d)", c.Registry.MaxRetries))
	}
	switch c.Report.Format {
	case "md", "json", "xml":
	default:
		problems = append(problems, fmt.Sprintf("report.format must be md, json or xml (got %q)", c.Report.Format))
	}
	switch strings.ToLower(c.Policy.DenyStrategy) {
	case "", "choice", "any":
	default:
		problems = append(problems, fmt.Sprintf("policy.deny_strategy must be choice or any (got %q)", c.Policy.DenyStrategy))
	}
	if c.Cooling.MinAgeDays < 0 {
		problems = append(problems, fmt.Sprintf("cooling.min_age_days must not be negative (got %d)", c.Cooling.MinAgeDays))
	}
	for _, exc := range c.Cooling.Exceptions {
		if exc.Pattern == "" {
			problems = append(problems, "cooling.exceptions entries need a pattern")
		}
		if exc.Until != "" {
			if _, err := time.Parse("2006-01-02", exc.Until); err != nil {
				problems = append(problems, fmt.Sprintf("cooling.exceptions until must be YYYY-MM-DD (got %q)", exc.Until))
			}
		}
	}
	if len(c.Policy.Allow) > 0 && len(c.Policy.Deny) > 0 {
		problems = append(problems, "policy.allow and policy.deny are mutually exclusive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// GetConfigDir returns the per-user configuration directory.
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cargo-licenses"), nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
