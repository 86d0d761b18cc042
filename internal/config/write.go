package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// WriteTOML encodes the effective configuration, defaults included.
func (cfg *Config) WriteTOML(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.Indent = "  "
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
