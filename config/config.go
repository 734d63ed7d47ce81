// Package config loads the agent loop's ExecutionConfig from a YAML file,
// overlays environment variables, and validates the result against a JSON
// Schema before handing it to callers. Grounded on the scenario-file loading
// idiom in integration_tests/framework/runner.go (gopkg.in/yaml.v3 into a
// tagged struct) and the schema-validation idiom in registry/service.go
// (github.com/santhosh-tekuri/jsonschema/v6, compiled once per call against
// an in-memory resource rather than a filesystem path).
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/bagofwords/agentcore/llmclient"
)

//go:embed schema.json
var schemaJSON []byte

// ModelRouting maps model classes to concrete provider/model identifiers
// (SPEC_FULL.md §4.12).
type ModelRouting struct {
	Provider string
	Default  string
	High     string
	Small    string
}

// FeatureFlags gates optional loop behavior.
type FeatureFlags struct {
	InstructionSuggestion bool
	BackgroundScoring     bool
}

// ExecutionConfig is the agent loop's tunable configuration, loaded once per
// process and passed into looprunner.Config and the provider adapters.
type ExecutionConfig struct {
	StepLimit            int
	MaxInvalidRetries    int
	MaxToolFailures      int
	MaxRepeatedSuccesses int

	StartTimeout time.Duration
	IdleTimeout  time.Duration
	HardTimeout  time.Duration
	PlannerTimeout time.Duration

	Models   ModelRouting
	Features FeatureFlags
}

// ModelClassID returns the routed model identifier for class, falling back
// to Models.Default when the class has no specific entry.
func (c *ExecutionConfig) ModelClassID(class llmclient.ModelClass) string {
	switch class {
	case llmclient.ModelClassHighReasoning:
		if c.Models.High != "" {
			return c.Models.High
		}
	case llmclient.ModelClassSmall:
		if c.Models.Small != "" {
			return c.Models.Small
		}
	}
	return c.Models.Default
}

// Default returns the configuration's zero-input baseline (spec.md §4.9's
// circuit-breaker defaults): step_limit 10, max_invalid_retries 2,
// max_tool_failures 3, max_repeated_successes 2.
func Default() *ExecutionConfig {
	return &ExecutionConfig{
		StepLimit:            10,
		MaxInvalidRetries:    2,
		MaxToolFailures:      3,
		MaxRepeatedSuccesses: 2,
		StartTimeout:         10 * time.Second,
		IdleTimeout:          30 * time.Second,
		HardTimeout:          120 * time.Second,
		PlannerTimeout:       60 * time.Second,
	}
}

// rawConfig mirrors schema.json's field names so yaml.Unmarshal and the
// JSON Schema validator see the same shape.
type rawConfig struct {
	StepLimit            *int `yaml:"step_limit" json:"step_limit,omitempty"`
	MaxInvalidRetries    *int `yaml:"max_invalid_retries" json:"max_invalid_retries,omitempty"`
	MaxToolFailures      *int `yaml:"max_tool_failures" json:"max_tool_failures,omitempty"`
	MaxRepeatedSuccesses *int `yaml:"max_repeated_successes" json:"max_repeated_successes,omitempty"`

	StartTimeoutMS   *int `yaml:"start_timeout_ms" json:"start_timeout_ms,omitempty"`
	IdleTimeoutMS    *int `yaml:"idle_timeout_ms" json:"idle_timeout_ms,omitempty"`
	HardTimeoutMS    *int `yaml:"hard_timeout_ms" json:"hard_timeout_ms,omitempty"`
	PlannerTimeoutMS *int `yaml:"planner_timeout_ms" json:"planner_timeout_ms,omitempty"`

	Models *struct {
		Provider string `yaml:"provider" json:"provider"`
		Default  string `yaml:"default" json:"default"`
		High     string `yaml:"high" json:"high,omitempty"`
		Small    string `yaml:"small" json:"small,omitempty"`
	} `yaml:"models" json:"models,omitempty"`

	Features *struct {
		InstructionSuggestion *bool `yaml:"instruction_suggestion" json:"instruction_suggestion,omitempty"`
		BackgroundScoring     *bool `yaml:"background_scoring" json:"background_scoring,omitempty"`
	} `yaml:"features" json:"features,omitempty"`
}

// Load reads path as YAML, overlays environment variables named
// AGENTCORE_*, validates the merged document against schema.json, and
// returns the resulting ExecutionConfig with Default()'s zero-value fallbacks
// applied.
func Load(path string) (*ExecutionConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config file, not user input
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := overlayEnv(&raw); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}

	cfg := Default()
	if raw.StepLimit != nil {
		cfg.StepLimit = *raw.StepLimit
	}
	if raw.MaxInvalidRetries != nil {
		cfg.MaxInvalidRetries = *raw.MaxInvalidRetries
	}
	if raw.MaxToolFailures != nil {
		cfg.MaxToolFailures = *raw.MaxToolFailures
	}
	if raw.MaxRepeatedSuccesses != nil {
		cfg.MaxRepeatedSuccesses = *raw.MaxRepeatedSuccesses
	}
	if raw.StartTimeoutMS != nil {
		cfg.StartTimeout = time.Duration(*raw.StartTimeoutMS) * time.Millisecond
	}
	if raw.IdleTimeoutMS != nil {
		cfg.IdleTimeout = time.Duration(*raw.IdleTimeoutMS) * time.Millisecond
	}
	if raw.HardTimeoutMS != nil {
		cfg.HardTimeout = time.Duration(*raw.HardTimeoutMS) * time.Millisecond
	}
	if raw.PlannerTimeoutMS != nil {
		cfg.PlannerTimeout = time.Duration(*raw.PlannerTimeoutMS) * time.Millisecond
	}
	if raw.Models != nil {
		cfg.Models = ModelRouting{
			Provider: raw.Models.Provider,
			Default:  raw.Models.Default,
			High:     raw.Models.High,
			Small:    raw.Models.Small,
		}
	}
	if raw.Features != nil {
		if raw.Features.InstructionSuggestion != nil {
			cfg.Features.InstructionSuggestion = *raw.Features.InstructionSuggestion
		}
		if raw.Features.BackgroundScoring != nil {
			cfg.Features.BackgroundScoring = *raw.Features.BackgroundScoring
		}
	}
	return cfg, nil
}

// envOverlay names the environment variables Load consults, taking
// precedence over the YAML file's values.
var envOverlay = []struct {
	name   string
	assign func(*rawConfig, string) error
}{
	{"AGENTCORE_STEP_LIMIT", intOverlay(func(r *rawConfig, v int) { r.StepLimit = &v })},
	{"AGENTCORE_MAX_INVALID_RETRIES", intOverlay(func(r *rawConfig, v int) { r.MaxInvalidRetries = &v })},
	{"AGENTCORE_MAX_TOOL_FAILURES", intOverlay(func(r *rawConfig, v int) { r.MaxToolFailures = &v })},
	{"AGENTCORE_MAX_REPEATED_SUCCESSES", intOverlay(func(r *rawConfig, v int) { r.MaxRepeatedSuccesses = &v })},
	{"AGENTCORE_MODEL_PROVIDER", func(r *rawConfig, v string) error { ensureModels(r).Provider = v; return nil }},
	{"AGENTCORE_MODEL_DEFAULT", func(r *rawConfig, v string) error { ensureModels(r).Default = v; return nil }},
	{"AGENTCORE_MODEL_HIGH", func(r *rawConfig, v string) error { ensureModels(r).High = v; return nil }},
	{"AGENTCORE_MODEL_SMALL", func(r *rawConfig, v string) error { ensureModels(r).Small = v; return nil }},
}

func intOverlay(assign func(*rawConfig, int)) func(*rawConfig, string) error {
	return func(r *rawConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		assign(r, n)
		return nil
	}
}

func ensureModels(r *rawConfig) *struct {
	Provider string `yaml:"provider" json:"provider"`
	Default  string `yaml:"default" json:"default"`
	High     string `yaml:"high" json:"high,omitempty"`
	Small    string `yaml:"small" json:"small,omitempty"`
} {
	if r.Models == nil {
		r.Models = &struct {
			Provider string `yaml:"provider" json:"provider"`
			Default  string `yaml:"default" json:"default"`
			High     string `yaml:"high" json:"high,omitempty"`
			Small    string `yaml:"small" json:"small,omitempty"`
		}{}
	}
	return r.Models
}

func overlayEnv(raw *rawConfig) error {
	for _, e := range envOverlay {
		if v, ok := os.LookupEnv(e.name); ok && v != "" {
			if err := e.assign(raw, v); err != nil {
				return fmt.Errorf("env %s: %w", e.name, err)
			}
		}
	}
	return nil
}

func validate(raw rawConfig) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal for validation: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal embedded schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("execution_config.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("execution_config.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return schema.Validate(doc)
}
