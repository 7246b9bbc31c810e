package run

import (
	"fmt"

	"github.com/relex/xevent-aggregator/batcher"
	"github.com/relex/xevent-aggregator/format"
	"github.com/relex/xevent-aggregator/input/admission"
	"github.com/relex/xevent-aggregator/input/tcplistener"
	"github.com/relex/xevent-aggregator/output/s3output"
	"github.com/relex/xevent-aggregator/util"
	"gopkg.in/yaml.v3"
)

// Config defines the root of xevent-aggregator config file
type Config struct {
	Anchors   AnchorsConfig            `yaml:"anchors"`
	Input     tcplistener.Config       `yaml:"input"`
	RateLimit admission.RateGateConfig `yaml:"rateLimit"`
	Rotation  batcher.RotatorConfig    `yaml:"rotation"`
	Format    FormatConfig             `yaml:"format"`
	Storage   s3output.Config          `yaml:"storage"`
}

// AnchorsConfig defines the anchors section in config file
// The section is meant to provide anchors for other sections and doesn't need to be unmarshalled itself
type AnchorsConfig struct {
}

// FormatConfig defines the format section in config file
type FormatConfig struct {
	Output string `yaml:"output"` // batch output format: "xml" (default, raw) or "json"
}

// LoadConfigFile loads config from the path and verifies all sections
func LoadConfigFile(filepath string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlFile(filepath, cref); err != nil {
		return nil, err
	}
	if err := cref.Input.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if err := cref.RateLimit.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("rateLimit: %w", err)
	}
	if err := cref.Rotation.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("rotation: %w", err)
	}
	if _, err := format.NewFormatter(cref.Format.Output); err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	if err := cref.Storage.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return cref, nil
}

// MarshalYAML provides custom marshalling to export readable document. The result is not reversible.
func (holder AnchorsConfig) MarshalYAML() (interface{}, error) {
	return []string(nil), nil
}

// UnmarshalYAML provides custom unmarshalling for the implementations of Config
func (holder *AnchorsConfig) UnmarshalYAML(value *yaml.Node) error {
	return nil
}
