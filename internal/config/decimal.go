package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"exbitrage/internal/numeric"
)

// Decimal is a YAML scalar read as an exact decimal. Quoted and bare forms are
// both accepted so `min_spread: 0.1` never passes through a float.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("decimal must be a scalar, got %s at line %d", nodeKind(value.Kind), value.Line)
	}
	if value.Value == "" || value.Tag == "!!null" {
		d.Decimal = decimal.Zero
		return nil
	}
	dec, err := numeric.Parse(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Decimal = dec
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return numeric.Format(d.Decimal), nil
}

func nodeKind(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "node"
	}
}
