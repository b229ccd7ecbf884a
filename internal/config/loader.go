package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PathServiceName is the AppContext service key holding the path of the
// loaded configuration file.
const PathServiceName = "config.path"

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads path, substitutes environment references and decodes the
// result. Keys the schema does not know are an error.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded, err := expandEnv(raw, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}
	cfg, err := Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML that has already been through variable expansion. An
// empty document yields a zero Config.
func Parse(data []byte) (*Config, error) {
	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// expandEnv substitutes every env reference in raw. A reference with no
// value and no fallback is reported with its line number; all of them are
// collected before returning.
func expandEnv(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var (
		out  bytes.Buffer
		errs []error
		last int
	)
	for _, m := range envRef.FindAllSubmatchIndex(raw, -1) {
		out.Write(raw[last:m[0]])
		last = m[1]

		name := string(raw[m[2]:m[3]])
		if v, ok := lookup(name); ok {
			out.WriteString(v)
			continue
		}
		if m[4] >= 0 {
			out.Write(raw[m[4]:m[5]])
			continue
		}
		line := bytes.Count(raw[:m[0]], []byte("\n")) + 1
		errs = append(errs, fmt.Errorf("line %d: unresolved variable: %s", line, name))
		out.Write(raw[m[0]:m[1]])
	}
	out.Write(raw[last:])
	return out.Bytes(), errors.Join(errs...)
}
