package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/criteria-splitter/eligibility"
	"github.com/theimaginaryfoundation/criteria-splitter/eligibility/provider"
)

type Config struct {
	InPath     string `yaml:"in"`
	OutPath    string `yaml:"out"`
	ReportPath string `yaml:"report"`
	Overwrite  bool   `yaml:"overwrite"`
	Pretty     bool   `yaml:"pretty"`

	Column          string `yaml:"column"`
	OutputColumn    string `yaml:"output_column"`
	InputDelimiter  string `yaml:"input_delimiter"`
	OutputDelimiter string `yaml:"output_delimiter"`
	ChunkSize       int    `yaml:"chunk_size"`
	Concurrency     int    `yaml:"concurrency"`
	MaxRows         int    `yaml:"max_rows"`

	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	AzureEndpoint   string  `yaml:"azure_endpoint"`
	AzureAPIVersion string  `yaml:"azure_api_version"`
	CachePath       string  `yaml:"cache"`

	MaxDrift float64 `yaml:"max_drift"`
}

func defaultConfig() Config {
	return Config{
		Column:          "Inclusion Criteria",
		OutputColumn:    "Round 1",
		InputDelimiter:  ";",
		OutputDelimiter: ",",
		ChunkSize:       5,
		Concurrency:     1,
		Model:           "gpt-4o-mini",
		Temperature:     -1,
		MaxOutputTokens: 4000,
		MaxDrift:        0.1,
	}
}

// Validate checks the settings shared by every subcommand that reads a table.
func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing --in")
	}
	if c.Column == "" {
		return errors.New("missing --column")
	}
	if _, err := delimiter(c.InputDelimiter); err != nil {
		return fmt.Errorf("--input-delimiter: %w", err)
	}
	if _, err := delimiter(c.OutputDelimiter); err != nil {
		return fmt.Errorf("--output-delimiter: %w", err)
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk-size must be > 0")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.MaxRows < 0 {
		return errors.New("max-rows must be >= 0")
	}
	if c.MaxDrift < 0 {
		return errors.New("max-drift must be >= 0")
	}
	return nil
}

// ValidateWrite adds the checks for subcommands that produce an output table.
func (c Config) ValidateWrite() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OutPath == "" {
		return errors.New("missing --out")
	}
	if c.OutputColumn == "" {
		return errors.New("missing --output-column")
	}
	if filepath.Clean(c.InPath) == filepath.Clean(c.OutPath) {
		return errors.New("--in and --out must differ")
	}
	return nil
}

// ValidateStructure adds the model settings needed by the structure subcommand.
func (c Config) ValidateStructure() error {
	if err := c.ValidateWrite(); err != nil {
		return err
	}
	if c.Model == "" {
		return errors.New("missing --model")
	}
	if c.Temperature > 2 {
		return errors.New("temperature must be <= 2")
	}
	if c.MaxOutputTokens <= 0 {
		return errors.New("max-output-tokens must be > 0")
	}
	return c.ClientConfig().Validate()
}

func (c Config) ClientConfig() provider.ClientConfig {
	return provider.ClientConfig{
		APIKey:          c.APIKey,
		BaseURL:         c.BaseURL,
		AzureEndpoint:   c.AzureEndpoint,
		AzureAPIVersion: c.AzureAPIVersion,
	}
}

func (c Config) TableOptions() eligibility.TableOptions {
	in, _ := delimiter(c.InputDelimiter)
	out, _ := delimiter(c.OutputDelimiter)
	return eligibility.TableOptions{
		Column:       c.Column,
		OutputColumn: c.OutputColumn,
		ChunkSize:    c.ChunkSize,
		Concurrency:  c.Concurrency,
		InputComma:   in,
		OutputComma:  out,
		MaxRows:      c.MaxRows,
	}
}

func delimiter(s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

func bindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Input table (delimited text with a header row)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output table (input columns plus the output column)")
	fs.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "Optional path for a JSON run report")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite an existing output table")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print the JSON run report")

	fs.StringVar(&cfg.Column, "column", cfg.Column, "Column holding raw eligibility criteria")
	fs.StringVar(&cfg.OutputColumn, "output-column", cfg.OutputColumn, "Name of the appended result column")
	fs.StringVar(&cfg.InputDelimiter, "input-delimiter", cfg.InputDelimiter, `Input field delimiter (single character or \t)`)
	fs.StringVar(&cfg.OutputDelimiter, "output-delimiter", cfg.OutputDelimiter, `Output field delimiter (single character or \t)`)
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Rows read, processed and appended per chunk")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Rows processed concurrently within a chunk")
	fs.IntVar(&cfg.MaxRows, "max-rows", cfg.MaxRows, "Process only the first N rows (0 = all)")
	fs.Float64Var(&cfg.MaxDrift, "max-drift", cfg.MaxDrift, "validate: max relative text length drift between segment and output (0 disables)")
}

func bindModelFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model (or Azure deployment) used for structuring")
	fs.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature (negative = model default)")
	fs.IntVar(&cfg.MaxOutputTokens, "max-output-tokens", cfg.MaxOutputTokens, "Max output tokens per row")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY)")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "OpenAI-compatible gateway base URL")
	fs.StringVar(&cfg.AzureEndpoint, "azure-endpoint", cfg.AzureEndpoint, "Azure OpenAI endpoint (enables Azure mode)")
	fs.StringVar(&cfg.AzureAPIVersion, "azure-api-version", cfg.AzureAPIVersion, "Azure OpenAI API version")
	fs.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "Optional SQLite file caching structured segments across runs")
}

// loadConfigFile reads a YAML config and copies each key present in the file whose flag was not set on the
// command line. Explicit zero values (temperature: 0, max_drift: 0, overwrite: false) are applied too.
func loadConfigFile(path string, cfg *Config, fs *pflag.FlagSet) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	var keys map[string]any
	if err := yaml.Unmarshal(b, &keys); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	applyFileConfig(cfg, file, keys, fs)
	return nil
}

func applyFileConfig(cfg *Config, file Config, keys map[string]any, fs *pflag.FlagSet) {
	set := func(key, flagName string) bool {
		if _, ok := keys[key]; !ok {
			return false
		}
		f := fs.Lookup(flagName)
		return f == nil || !f.Changed
	}
	str := func(key, flagName string, dst *string, v string) {
		if set(key, flagName) {
			*dst = v
		}
	}
	num := func(key, flagName string, dst *int, v int) {
		if set(key, flagName) {
			*dst = v
		}
	}
	flt := func(key, flagName string, dst *float64, v float64) {
		if set(key, flagName) {
			*dst = v
		}
	}
	flag := func(key, flagName string, dst *bool, v bool) {
		if set(key, flagName) {
			*dst = v
		}
	}

	str("in", "in", &cfg.InPath, file.InPath)
	str("out", "out", &cfg.OutPath, file.OutPath)
	str("report", "report", &cfg.ReportPath, file.ReportPath)
	flag("overwrite", "overwrite", &cfg.Overwrite, file.Overwrite)
	flag("pretty", "pretty", &cfg.Pretty, file.Pretty)
	str("column", "column", &cfg.Column, file.Column)
	str("output_column", "output-column", &cfg.OutputColumn, file.OutputColumn)
	str("input_delimiter", "input-delimiter", &cfg.InputDelimiter, file.InputDelimiter)
	str("output_delimiter", "output-delimiter", &cfg.OutputDelimiter, file.OutputDelimiter)
	num("chunk_size", "chunk-size", &cfg.ChunkSize, file.ChunkSize)
	num("concurrency", "concurrency", &cfg.Concurrency, file.Concurrency)
	num("max_rows", "max-rows", &cfg.MaxRows, file.MaxRows)
	flt("max_drift", "max-drift", &cfg.MaxDrift, file.MaxDrift)
	str("model", "model", &cfg.Model, file.Model)
	flt("temperature", "temperature", &cfg.Temperature, file.Temperature)
	num("max_output_tokens", "max-output-tokens", &cfg.MaxOutputTokens, file.MaxOutputTokens)
	str("api_key", "api-key", &cfg.APIKey, file.APIKey)
	str("base_url", "base-url", &cfg.BaseURL, file.BaseURL)
	str("azure_endpoint", "azure-endpoint", &cfg.AzureEndpoint, file.AzureEndpoint)
	str("azure_api_version", "azure-api-version", &cfg.AzureAPIVersion, file.AzureAPIVersion)
	str("cache", "cache", &cfg.CachePath, file.CachePath)
}

// applyEnv loads .env (if present) and fills connection settings that are still empty.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	if cfg.AzureEndpoint == "" {
		cfg.AzureEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if cfg.AzureAPIVersion == "" {
		cfg.AzureAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" {
		if cfg.AzureEndpoint != "" {
			cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}
