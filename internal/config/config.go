package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the canvas agent configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Followup   FollowupConfig   `yaml:"followup"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderConfig holds streaming provider configuration
type ProviderConfig struct {
	Name      string `yaml:"name"` // anthropic, openai
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	MaxTokens int    `yaml:"max_tokens"`
}

// PipelineConfig holds dispatch and session loop tunables. All the timing
// constants here are environment-tunable deliberately; the defaults carry the
// documented values. LowActionThreshold and TraceSampleRate are pointers so an
// explicit zero disables the heuristic instead of reverting to the default.
type PipelineConfig struct {
	AckTimeout         time.Duration `yaml:"ack_timeout"`
	AckRetryTimeout    time.Duration `yaml:"ack_retry_timeout"`
	MaxFollowupDepth   int           `yaml:"max_followup_depth"`
	LowActionThreshold *int          `yaml:"low_action_threshold"`
	FollowupDelayBase  time.Duration `yaml:"followup_delay_base"`
	FollowupDelayMax   time.Duration `yaml:"followup_delay_max"`
	ProviderMaxRetries int           `yaml:"provider_max_retries"`
	ProviderBackoff    time.Duration `yaml:"provider_backoff"`
	PromptCharBudget   int           `yaml:"prompt_char_budget"`
	TraceBudget        int           `yaml:"trace_budget"`
	TraceSampleRate    *float64      `yaml:"trace_sample_rate"`
}

// ScreenshotConfig holds screenshot orchestration tunables
type ScreenshotConfig struct {
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	Retries         int           `yaml:"retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	DownscaleLadder []int         `yaml:"downscale_ladder"`
}

// FollowupConfig holds durable follow-up queue configuration. An empty
// StorePath keeps scheduling in memory.
type FollowupConfig struct {
	StorePath string `yaml:"store_path,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Resolve API key from environment variable
	if config.Provider.APIKeyEnv != "" {
		config.Provider.APIKey = os.Getenv(config.Provider.APIKeyEnv)
	}

	config.SetDefaults()

	return &config, nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8085
	}

	if c.Provider.Name == "" {
		c.Provider.Name = "anthropic"
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = 4096
	}

	if c.Pipeline.AckTimeout == 0 {
		c.Pipeline.AckTimeout = 1200 * time.Millisecond
	}
	if c.Pipeline.AckRetryTimeout == 0 {
		c.Pipeline.AckRetryTimeout = 800 * time.Millisecond
	}
	if c.Pipeline.MaxFollowupDepth == 0 {
		c.Pipeline.MaxFollowupDepth = 3
	}
	if c.Pipeline.LowActionThreshold == nil {
		threshold := 2
		c.Pipeline.LowActionThreshold = &threshold
	}
	if c.Pipeline.FollowupDelayBase == 0 {
		c.Pipeline.FollowupDelayBase = 500 * time.Millisecond
	}
	if c.Pipeline.FollowupDelayMax == 0 {
		c.Pipeline.FollowupDelayMax = 8 * time.Second
	}
	if c.Pipeline.ProviderMaxRetries == 0 {
		c.Pipeline.ProviderMaxRetries = 4
	}
	if c.Pipeline.ProviderBackoff == 0 {
		c.Pipeline.ProviderBackoff = time.Second
	}
	if c.Pipeline.PromptCharBudget == 0 {
		c.Pipeline.PromptCharBudget = 28000
	}
	if c.Pipeline.TraceBudget == 0 {
		c.Pipeline.TraceBudget = 64
	}
	if c.Pipeline.TraceSampleRate == nil {
		rate := 0.25
		c.Pipeline.TraceSampleRate = &rate
	}

	if c.Screenshot.WaitTimeout == 0 {
		c.Screenshot.WaitTimeout = 5 * time.Second
	}
	if c.Screenshot.Retries == 0 {
		c.Screenshot.Retries = 2
	}
	if c.Screenshot.RetryDelay == 0 {
		c.Screenshot.RetryDelay = 750 * time.Millisecond
	}
	if len(c.Screenshot.DownscaleLadder) == 0 {
		c.Screenshot.DownscaleLadder = []int{1600, 1024, 640}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai", "ndjson":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Provider.Name != "ndjson" && c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Pipeline.MaxFollowupDepth < 0 {
		return fmt.Errorf("pipeline.max_followup_depth must not be negative")
	}
	if r := c.Pipeline.TraceSampleRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("pipeline.trace_sample_rate must be in [0,1]")
	}
	if t := c.Pipeline.LowActionThreshold; t != nil && *t < 0 {
		return fmt.Errorf("pipeline.low_action_threshold must not be negative")
	}
	for _, edge := range c.Screenshot.DownscaleLadder {
		if edge <= 0 {
			return fmt.Errorf("screenshot.downscale_ladder entries must be positive")
		}
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{
		Provider: ProviderConfig{
			Name:      "anthropic",
			Model:     "claude-3-5-sonnet-20241022",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
	}
	config.SetDefaults()
	return config
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
