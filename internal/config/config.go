package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by ParseEnvConfig.
const EnvPrefix = "ATOP_LIFETIMES_"

// CustomAttribute is a user-defined column: a name and the expression
// computing it for every lifetime.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the run configuration. Environment variables provide the
// defaults; command-line flags override them.
type Config struct {
	// AtopFile is a raw atop log, decoded by running AtopBin.
	AtopFile string `env:"ATOP_FILE"`
	// ParsedFile holds parseable output already produced by `atop -P`.
	ParsedFile string `env:"PARSED_FILE"`
	AtopBin    string `env:"ATOP_BIN" envDefault:"atop"`

	SQLitePath string `env:"SQLITE"`
	CSVDir     string `env:"CSV_DIR"`
	Detail     bool   `env:"DETAIL"`
	OTEL       bool   `env:"OTEL"`
	// TraceID and ParentID are expressions over the run (host, source,
	// first, last, lifetimes) placing the exported spans in a trace.
	TraceID  string `env:"TRACE_ID"`
	ParentID string `env:"PARENT_ID"`

	// System also reads the system-wide series of AtopFile with AtopsarBin.
	System     bool   `env:"SYSTEM"`
	AtopsarBin string `env:"ATOPSAR_BIN" envDefault:"atopsar"`
	// SystemImport is a CSV directory written by an earlier run, read
	// instead of running atopsar.
	SystemImport string `env:"SYSTEM_IMPORT"`

	Parallel bool   `env:"PARALLEL"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Attributes is the raw "name=expr;name=expr" list from the environment.
	Attributes string `env:"ATTRIBUTES"`
	// AttributeFlags are "name=expr" strings from the command line. They
	// come after the environment ones.
	AttributeFlags []string
	Filter         string `env:"FILTER"`
}

// ParseEnvConfig reads the configuration from ATOP_LIFETIMES_* variables.
func ParseEnvConfig() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// CustomAttributes returns the environment attributes followed by the
// command-line ones.
func (c *Config) CustomAttributes() ([]CustomAttribute, error) {
	attrs, err := ParseAttributeString(c.Attributes)
	if err != nil {
		return nil, fmt.Errorf("invalid %sATTRIBUTES: %w", EnvPrefix, err)
	}
	for _, arg := range c.AttributeFlags {
		attr, err := ParseAttribute(arg)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// Validate checks that exactly one input is configured and that every
// custom attribute is well formed.
func (c *Config) Validate() error {
	if _, err := c.CustomAttributes(); err != nil {
		return err
	}
	switch {
	case c.AtopFile == "" && c.ParsedFile == "":
		return errors.New("one of --atop-file or --parsed-file is required")
	case c.AtopFile != "" && c.ParsedFile != "":
		return errors.New("--atop-file and --parsed-file are mutually exclusive")
	}
	if c.AtopFile != "" && c.AtopBin == "" {
		return errors.New("--atop-bin cannot be empty with --atop-file")
	}
	switch {
	case c.System && c.SystemImport != "":
		return errors.New("--system and --system-import are mutually exclusive")
	case c.System && c.AtopFile == "":
		return errors.New("--system requires --atop-file")
	case c.System && c.AtopsarBin == "":
		return errors.New("--atopsar-bin cannot be empty with --system")
	}
	if c.ParentID != "" && c.TraceID == "" {
		return errors.New("--parent-id requires --trace-id")
	}
	return nil
}

// ParseAttribute parses one "name=expression" string. Only the first '='
// separates, so expressions may contain '=='.
func ParseAttribute(arg string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(arg, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q, expected name=expression", arg)
	}
	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", arg)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", arg)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}

// ParseAttributeString parses a semicolon separated list of attributes.
// Empty sections are ignored.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, section := range strings.Split(s, ";") {
		if strings.TrimSpace(section) == "" {
			continue
		}
		attr, err := ParseAttribute(section)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}
