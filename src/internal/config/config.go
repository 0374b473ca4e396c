package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/viper"
)

const (
	appDirName  = ".ait"
	configName  = "config"
	envStorage  = "AIT_STORAGE_DIR"
	defaultAddr = "127.0.0.1:8080"
)

type Config struct {
	Models     ModelsConfig     `mapstructure:"models" json:"models" yaml:"models"`
	Agent      AgentConfig      `mapstructure:"agent" json:"agent" yaml:"agent"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" json:"embeddings" yaml:"embeddings"`
	History    HistoryConfig    `mapstructure:"history" json:"history" yaml:"history"`
	Server     ServerConfig     `mapstructure:"server" json:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" json:"log" yaml:"log"`
	StorageDir string           `mapstructure:"storage_dir" json:"storage_dir" yaml:"storage_dir"`
}

type ModelsConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers" json:"providers" yaml:"providers"`
}

type ProviderConfig struct {
	BaseURL string        `mapstructure:"baseUrl" json:"baseUrl" yaml:"baseUrl"`
	APIKey  string        `mapstructure:"apiKey" json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	API     string        `mapstructure:"api" json:"api" yaml:"api"`
	Models  []ModelConfig `mapstructure:"models" json:"models" yaml:"models"`
}

type ModelConfig struct {
	ID            string `mapstructure:"id" json:"id" yaml:"id"`
	Name          string `mapstructure:"name" json:"name" yaml:"name"`
	ContextWindow int    `mapstructure:"contextWindow" json:"contextWindow" yaml:"contextWindow"`
	MaxTokens     int    `mapstructure:"maxTokens" json:"maxTokens" yaml:"maxTokens"`
}

// AgentConfig drives the ask loop. Model is written as "provider/model".
type AgentConfig struct {
	Model        string  `mapstructure:"model" json:"model" yaml:"model"`
	SystemPrompt string  `mapstructure:"system_prompt" json:"system_prompt" yaml:"system_prompt"`
	ContextSize  int     `mapstructure:"context_size" json:"context_size" yaml:"context_size"`
	Temperature  float32 `mapstructure:"temperature" json:"temperature" yaml:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
}

type EmbeddingsConfig struct {
	Type       string `mapstructure:"type" json:"type" yaml:"type"`
	Model      string `mapstructure:"model" json:"model" yaml:"model"`
	URL        string `mapstructure:"url" json:"url" yaml:"url"`
	APIKey     string `mapstructure:"api_key" json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Dims       int    `mapstructure:"dims" json:"dims" yaml:"dims"`
	StaticPath string `mapstructure:"static_path" json:"static_path" yaml:"static_path"`
}

type HistoryConfig struct {
	Key            string `mapstructure:"key" json:"key" yaml:"key"`
	Backend        string `mapstructure:"backend" json:"backend" yaml:"backend"`
	BackupSchedule string `mapstructure:"backup_schedule" json:"backup_schedule" yaml:"backup_schedule"`
	BackupKey      string `mapstructure:"backup_key" json:"backup_key" yaml:"backup_key"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr" json:"addr" yaml:"addr"`
	Key           string `mapstructure:"key" json:"key" yaml:"key"`
	EffectiveHost string `mapstructure:"-" json:"effectiveHost" yaml:"-"`
	Port          int    `mapstructure:"-" json:"port" yaml:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.model", "openai/gpt-4o-mini")
	v.SetDefault("agent.context_size", 3)
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.max_tokens", 1024)

	v.SetDefault("embeddings.type", "openai")
	v.SetDefault("embeddings.model", "text-embedding-ada-002")
	v.SetDefault("embeddings.dims", 1536)

	v.SetDefault("history.key", "ait_history")
	v.SetDefault("history.backend", "file")
	v.SetDefault("history.backup_key", "ait_history_backup")

	v.SetDefault("server.addr", defaultAddr)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads ~/.ait/config.yaml, or the file named by override.
func Load(override string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, goerr.Wrap(err, "resolve home dir")
	}

	appDir := filepath.Join(home, appDirName)
	if envDir := os.Getenv(envStorage); envDir != "" {
		appDir = envDir
	}
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return nil, goerr.Wrap(err, "create storage dir", goerr.V("dir", appDir))
	}

	v := viper.New()
	setDefaults(v)

	if override != "" {
		v.SetConfigFile(override)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(appDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if override != "" || !errors.As(err, &notFound) {
			return nil, goerr.Wrap(err, "read config", goerr.V("file", override))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, goerr.Wrap(err, "decode config")
	}

	if err := cfg.resolveServer(); err != nil {
		return nil, err
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = appDir
	}
	if strings.HasPrefix(cfg.StorageDir, "~/") {
		cfg.StorageDir = filepath.Join(home, cfg.StorageDir[2:])
	}

	// API keys come inline, from a $VAR placeholder or from <PROVIDER>_API_KEY
	for p, prov := range cfg.Models.Providers {
		prov.APIKey = resolveKey(prov.APIKey, p)
		cfg.Models.Providers[p] = prov
	}
	cfg.Embeddings.APIKey = resolveKey(cfg.Embeddings.APIKey, cfg.Embeddings.Type)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) resolveServer() error {
	host, portStr, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return goerr.Wrap(err, "invalid server.addr", goerr.V("addr", cfg.Server.Addr))
	}
	cfg.Server.EffectiveHost = host
	if cfg.Server.EffectiveHost == "" {
		cfg.Server.EffectiveHost = "0.0.0.0"
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return goerr.Wrap(err, "invalid port in server.addr", goerr.V("addr", cfg.Server.Addr))
	}
	cfg.Server.Port = p
	return nil
}

func resolveKey(raw, provider string) string {
	if strings.HasPrefix(raw, "$") {
		return os.Getenv(strings.TrimPrefix(raw, "$"))
	}
	if raw == "" && provider != "" {
		name := strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
		return os.Getenv(name)
	}
	return raw
}

// Validate rejects settings no component could run with.
func (cfg *Config) Validate() error {
	switch {
	case cfg.Agent.ContextSize < 0:
		return goerr.New("agent.context_size must not be negative", goerr.V("context_size", cfg.Agent.ContextSize))
	case cfg.Embeddings.Dims < 0:
		return goerr.New("embeddings.dims must not be negative", goerr.V("dims", cfg.Embeddings.Dims))
	case cfg.History.Key == "":
		return goerr.New("history.key is empty")
	}
	switch cfg.History.Backend {
	case "file", "sqlite":
	default:
		return goerr.New("unknown history.backend", goerr.V("backend", cfg.History.Backend))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "console", "json":
	default:
		return goerr.New("unknown log.format", goerr.V("format", cfg.Log.Format))
	}
	return nil
}

// Path is where Save writes the configuration.
func (cfg *Config) Path() string {
	return filepath.Join(cfg.StorageDir, configName+".yaml")
}

func Save(cfg *Config) error {
	if _, err := os.Stat(cfg.StorageDir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
			return goerr.Wrap(err, "create storage dir", goerr.V("dir", cfg.StorageDir))
		}
	}

	v := viper.New()
	for p, prov := range cfg.Models.Providers {
		v.Set("models.providers."+p+".baseUrl", prov.BaseURL)
		v.Set("models.providers."+p+".apiKey", prov.APIKey)
		v.Set("models.providers."+p+".api", prov.API)
		models := make([]map[string]any, len(prov.Models))
		for i, m := range prov.Models {
			models[i] = map[string]any{
				"id":            m.ID,
				"name":          m.Name,
				"contextWindow": m.ContextWindow,
				"maxTokens":     m.MaxTokens,
			}
		}
		v.Set("models.providers."+p+".models", models)
	}
	v.Set("agent.model", cfg.Agent.Model)
	v.Set("agent.system_prompt", cfg.Agent.SystemPrompt)
	v.Set("agent.context_size", cfg.Agent.ContextSize)
	v.Set("agent.temperature", cfg.Agent.Temperature)
	v.Set("agent.max_tokens", cfg.Agent.MaxTokens)
	v.Set("embeddings.type", cfg.Embeddings.Type)
	v.Set("embeddings.model", cfg.Embeddings.Model)
	v.Set("embeddings.url", cfg.Embeddings.URL)
	v.Set("embeddings.api_key", cfg.Embeddings.APIKey)
	v.Set("embeddings.dims", cfg.Embeddings.Dims)
	v.Set("embeddings.static_path", cfg.Embeddings.StaticPath)
	v.Set("history.key", cfg.History.Key)
	v.Set("history.backend", cfg.History.Backend)
	v.Set("history.backup_schedule", cfg.History.BackupSchedule)
	v.Set("history.backup_key", cfg.History.BackupKey)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.key", cfg.Server.Key)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("storage_dir", cfg.StorageDir)

	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(cfg.Path()); err != nil {
		return goerr.Wrap(err, "write config", goerr.V("path", cfg.Path()))
	}
	return nil
}
