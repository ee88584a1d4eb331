package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/Brownie44l1/imgclassify/internal/envvar"
)

//go:embed schema.json
var schemaSource string

const schemaURL = "imgclassify.schema.json"

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults unchanged. The file is validated against the
// embedded schema before it is decoded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML in %s: %w", path, err)
	}
	if raw == nil {
		return cfg, nil
	}

	schema, err := jsonschema.CompileString(schemaURL, schemaSource)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: failed to unmarshal %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(envvar.Assets); v != "" {
		slog.Debug("Assets root overridden from environment", "var", envvar.Assets, "value", v)
		c.Assets.Root = v
	}
	if v := os.Getenv(envvar.Model); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(envvar.LogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks the invariants the schema cannot express and the ones that
// matter when the Config was built in code rather than loaded.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Assets.TrainTags == "" {
		add("assets.train_tags is required")
	}
	if c.Assets.TestTags == "" {
		add("assets.test_tags is required")
	}
	if c.Model.Path == "" {
		add("model.path is required")
	}
	switch c.Model.Format {
	case "", FormatONNX, FormatTensorFlow:
	default:
		add("model.format %q is not one of onnx, tensorflow", c.Model.Format)
	}
	if c.Model.Input == "" {
		add("model.input is required")
	}
	if len(c.Model.Outputs) == 0 {
		add("model.outputs needs at least one tensor name")
	}
	for i, name := range c.Model.Outputs {
		if name == "" {
			add("model.outputs[%d] is empty", i)
		}
	}
	if c.Model.CacheSize < 0 {
		add("model.cache_size must not be negative")
	}

	p := c.Preprocess
	if p.Width <= 0 || p.Height <= 0 {
		add("preprocess size %dx%d must be positive", p.Width, p.Height)
	}
	if p.Scale == 0 {
		add("preprocess.scale must not be zero")
	}
	switch p.Order {
	case "rgb", "bgr":
	default:
		add("preprocess.order %q is not one of rgb, bgr", p.Order)
	}
	switch p.Resizing {
	case ResizeIsoCrop, ResizeFill, ResizeIsoPad:
	default:
		add("preprocess.resizing %q is not one of iso_crop, fill, iso_pad", p.Resizing)
	}
	switch p.Interpolation {
	case "nearest", "bilinear", "bicubic", "mitchell", "lanczos2", "lanczos3":
	default:
		add("preprocess.interpolation %q is not supported", p.Interpolation)
	}

	t := c.Trainer
	if t.L2 < 0 {
		add("trainer.l2 must not be negative")
	}
	if t.Tolerance <= 0 {
		add("trainer.tolerance must be positive")
	}
	if t.History <= 0 {
		add("trainer.history must be positive")
	}
	if t.MaxIterations < 0 {
		add("trainer.max_iterations must not be negative")
	}
	switch t.LabelOrdering {
	case OrderByOccurrence, OrderByValue:
	default:
		add("trainer.label_ordering %q is not one of occurrence, value", t.LabelOrdering)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		add("log.level %q is not a valid level", c.Log.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
