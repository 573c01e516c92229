package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Endpoints []Endpoint      `yaml:"endpoints"`
	Swarms    SwarmsConfig    `yaml:"swarms"`
	Solver    SolverConfig    `yaml:"solver"`
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type PipelineConfig struct {
	AgentTimeout time.Duration  `yaml:"agent_timeout"`
	StageTimeout time.Duration  `yaml:"stage_timeout"`
	Quorum       map[string]int `yaml:"quorum"` // stage name -> min ok outcomes
}

// Endpoint maps a logical region to one inference endpoint. APIKey supports
// secret:NAME references resolved through the vault at startup.
type Endpoint struct {
	Region string `yaml:"region"`
	URL    string `yaml:"url"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// AgentDef is one roster entry: a stateless worker bound to a specialization
// and a region.
type AgentDef struct {
	ID             string `yaml:"id"`
	Specialization string `yaml:"specialization"`
	Role           string `yaml:"role"`
	Region         string `yaml:"region"`
}

// SwarmsConfig holds the fixed per-stage agent rosters.
type SwarmsConfig struct {
	Intent []AgentDef `yaml:"intent"`
	Data   []AgentDef `yaml:"data"`
	Model  []AgentDef `yaml:"model"`
	Solver []AgentDef `yaml:"solver"`
}

type SolverConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

func defaults() Config {
	return Config{
		Pipeline: PipelineConfig{
			AgentTimeout: 30 * time.Second,
			StageTimeout: 75 * time.Second,
			Quorum: map[string]int{
				"intent": 3,
				"data":   2,
				"model":  2,
				"solver": 3,
			},
		},
		Swarms: SwarmsConfig{
			Intent: []AgentDef{
				{ID: "intent-01", Specialization: "intent_taxonomy", Role: "intent-classifier", Region: "us-east"},
				{ID: "intent-02", Specialization: "operations_context", Role: "intent-classifier", Region: "eu-west"},
				{ID: "intent-03", Specialization: "constraint_spotting", Role: "intent-classifier", Region: "us-west"},
				{ID: "intent-04", Specialization: "business_outcomes", Role: "intent-classifier", Region: "ap-south"},
				{ID: "intent-05", Specialization: "ambiguity_review", Role: "intent-classifier", Region: "us-east"},
			},
			Data: []AgentDef{
				{ID: "data-01", Specialization: "data_profiling", Role: "data-analyst", Region: "us-east"},
				{ID: "data-02", Specialization: "parameter_extraction", Role: "data-analyst", Region: "eu-west"},
				{ID: "data-03", Specialization: "gap_detection", Role: "data-analyst", Region: "us-west"},
			},
			Model: []AgentDef{
				{ID: "model-01", Specialization: "mathematical_formulation", Role: "model-builder", Region: "us-east"},
				{ID: "model-02", Specialization: "constraint_modeling", Role: "model-builder", Region: "eu-west"},
				{ID: "model-03", Specialization: "objective_design", Role: "model-builder", Region: "us-west"},
				{ID: "model-04", Specialization: "model_validation", Role: "model-builder", Region: "ap-south"},
			},
			Solver: []AgentDef{
				{ID: "solver-01", Specialization: "exact_methods", Role: "solution-solver", Region: "us-east"},
				{ID: "solver-02", Specialization: "heuristics", Role: "solution-solver", Region: "eu-west"},
				{ID: "solver-03", Specialization: "relaxation_analysis", Role: "solution-solver", Region: "us-west"},
				{ID: "solver-04", Specialization: "sensitivity_analysis", Role: "solution-solver", Region: "ap-south"},
				{ID: "solver-05", Specialization: "feasibility_repair", Role: "solution-solver", Region: "us-east"},
				{ID: "solver-06", Specialization: "solution_verification", Role: "solution-solver", Region: "eu-west"},
			},
		},
		Solver: SolverConfig{
			Timeout: 60 * time.Second,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/swarmopt.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("SWARMOPT_CONFIG")
	if path == "" {
		path = "config/swarmopt.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWARMOPT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SWARMOPT_WEB_AUTH"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("SWARMOPT_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SWARMOPT_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("SWARMOPT_SOLVER_URL"); v != "" {
		cfg.Solver.URL = v
	}
	if v := os.Getenv("SWARMOPT_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.AgentTimeout = d
		}
	}
	if v := os.Getenv("SWARMOPT_STAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.StageTimeout = d
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Pipeline.AgentTimeout <= 0 {
		return fmt.Errorf("pipeline.agent_timeout must be positive")
	}
	if cfg.Pipeline.StageTimeout < cfg.Pipeline.AgentTimeout {
		return fmt.Errorf("pipeline.stage_timeout must be at least agent_timeout")
	}
	for stage, roster := range map[string][]AgentDef{
		"intent": cfg.Swarms.Intent,
		"data":   cfg.Swarms.Data,
		"model":  cfg.Swarms.Model,
		"solver": cfg.Swarms.Solver,
	} {
		if len(roster) == 0 {
			return fmt.Errorf("swarms.%s roster is empty", stage)
		}
		if q := cfg.Pipeline.Quorum[stage]; q > len(roster) {
			return fmt.Errorf("pipeline.quorum.%s (%d) exceeds roster size %d", stage, q, len(roster))
		}
	}
	return nil
}
