package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/pipeline"
	"github.com/intakeflow/server/internal/core"
	"github.com/intakeflow/server/internal/memory"
	"github.com/intakeflow/server/internal/memory/embed"
	logx "github.com/intakeflow/server/pkg/logger"
	pkgredis "github.com/intakeflow/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the pipeline,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	LLM    model.LLMConfig
	Models model.AgentModels

	// Pipeline
	Conversation model.ConversationConfig
	Pipeline     model.PipelineConfig
	Memory       memory.Config
	Embedding    embed.Config
}

func (c AppConfig) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		LLM:          c.LLM,
		Models:       c.Models,
		Conversation: c.Conversation,
		Pipeline:     c.Pipeline,
		Memory:       c.Memory,
		Embedding:    c.Embedding,
		Redis:        c.Redis,
	}
}

func (c AppConfig) memoryConfig() pipeline.MemoryConfig {
	return pipeline.MemoryConfig{Memory: c.Memory, Embedding: c.Embedding, LLM: c.LLM, Redis: c.Redis}
}

// loadConfig reads envFile when it exists, then binds the environment.
func loadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg AppConfig, level string) {
	if level == "" {
		level = cfg.LogLevel
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: level})
}
