// Package config loads build configurations: the base flags and values, the
// shaders to precompile and the permutations to build them in. A
// configuration can be written in YAML, TOML or Starlark; all three decode
// into the same document shape.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/neurodesk/shaderprep/pkg/precompiler"
	v "github.com/neurodesk/shaderprep/pkg/validator"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v4"
)

const (
	CompilerNone = "none"
	CompilerNaga = "naga"
)

// DefaultPermutation names the single permutation built when a configuration
// declares none.
const DefaultPermutation = "default"

type Config struct {
	Flags        precompiler.Flags
	Values       precompiler.Values
	Shaders      []ShaderEntry
	Permutations []Permutation
	OutputDir    string
	// Compiler selects the downstream compiler; empty means none.
	Compiler string
	Jobs     int
	// CacheDir, when set, keeps compiled programs between builds.
	CacheDir string

	// Root is the directory relative shader and output paths are resolved
	// against: the directory of the configuration file.
	Root string
}

// ShaderEntry is a logical shader path (without .vert/.frag).
type ShaderEntry struct {
	Name string
	Path string
	// Permutations restricts the entry to the named permutations; empty
	// means all of them.
	Permutations []string
}

type Permutation struct {
	Name   string
	Flags  precompiler.Flags
	Values precompiler.Values
}

func (s ShaderEntry) Validate() error {
	return v.All(
		v.NotEmpty(s.Path, "shader path"),
		v.NotEmpty(s.Name, "shader name"),
		v.NoDuplicates(s.Permutations, "shader permutations"),
	)
}

func (p Permutation) Validate() error {
	return v.All(
		v.NotEmpty(p.Name, "permutation name"),
		v.Keys(p.Flags, v.FlagName, "flag"),
		v.Keys(p.Values, v.Identifier, "value"),
	)
}

// Merge overlays the permutation on the base flags and values. The inputs
// are not modified.
func (p Permutation) Merge(flags precompiler.Flags, values precompiler.Values) (precompiler.Flags, precompiler.Values) {
	f := make(precompiler.Flags, len(flags)+len(p.Flags))
	for k, b := range flags {
		f[k] = b
	}
	for k, b := range p.Flags {
		f[k] = b
	}
	vals := make(precompiler.Values, len(values)+len(p.Values))
	for k, s := range values {
		vals[k] = s
	}
	for k, s := range p.Values {
		vals[k] = s
	}
	return f, vals
}

func (c *Config) Validate() error {
	if err := v.All(
		v.Keys(c.Flags, v.FlagName, "flag"),
		v.Keys(c.Values, v.Identifier, "value"),
		v.Each(c.Shaders, "shaders"),
		v.Each(c.Permutations, "permutations"),
		v.NotNegative(c.Jobs, "jobs"),
		v.MatchesAllowed(c.Compiler, []string{"", CompilerNone, CompilerNaga}, "compiler"),
	); err != nil {
		return err
	}

	names := make([]string, 0, len(c.Shaders))
	for _, s := range c.Shaders {
		names = append(names, s.Name)
	}
	if err := v.NoDuplicates(names, "shader names"); err != nil {
		return err
	}

	perms := make([]string, 0, len(c.Permutations))
	for _, p := range c.Permutations {
		perms = append(perms, p.Name)
	}
	if err := v.NoDuplicates(perms, "permutation names"); err != nil {
		return err
	}
	for _, s := range c.Shaders {
		for _, name := range s.Permutations {
			if _, ok := c.Permutation(name); !ok {
				return fmt.Errorf("shader %q uses unknown permutation %q", s.Name, name)
			}
		}
	}
	return nil
}

// Permutation looks up a permutation by name. The implicit default
// permutation exists only when none are declared.
func (c *Config) Permutation(name string) (Permutation, bool) {
	for _, p := range c.AllPermutations() {
		if p.Name == name {
			return p, true
		}
	}
	return Permutation{}, false
}

// AllPermutations returns the declared permutations, or the single empty
// default permutation when there are none.
func (c *Config) AllPermutations() []Permutation {
	if len(c.Permutations) == 0 {
		return []Permutation{{Name: DefaultPermutation}}
	}
	return c.Permutations
}

// PermutationsFor returns the permutations a shader is built in, in
// declaration order.
func (c *Config) PermutationsFor(s ShaderEntry) []Permutation {
	all := c.AllPermutations()
	if len(s.Permutations) == 0 {
		return all
	}
	var out []Permutation
	for _, p := range all {
		for _, name := range s.Permutations {
			if p.Name == name {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Resolve makes path absolute against Root unless it already is.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Root == "" {
		return path
	}
	return filepath.Join(c.Root, path)
}

// Load reads a configuration file, choosing the decoder by extension: .yaml
// and .yml, .toml, or .star for Starlark scripts.
func Load(path string, logger *slog.Logger) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		doc map[string]any
		err error
	)
	switch ext {
	case ".yaml", ".yml":
		doc, err = decodeYAML(path)
	case ".toml":
		doc, err = decodeTOML(path)
	case ".star":
		doc, err = execStarlark(path, logger)
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .yaml, .yml, .toml or .star)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg, err := FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Root = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	if logger != nil {
		logger.Debug("loaded config", "path", path, "shaders", len(cfg.Shaders), "permutations", len(cfg.Permutations))
	}
	return cfg, nil
}

func decodeYAML(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := map[string]any{}
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	return doc, nil
}

func decodeTOML(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := map[string]any{}
	if err := toml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding toml: %w", err)
	}
	return doc, nil
}

// FromDocument builds a Config from a decoded document. Unknown keys are
// rejected so that typos do not silently drop settings.
func FromDocument(doc map[string]any) (*Config, error) {
	c := &Config{Flags: precompiler.Flags{}, Values: precompiler.Values{}}
	for _, key := range sortedKeys(doc) {
		val := doc[key]
		var err error
		switch key {
		case "flags":
			c.Flags, err = toFlags(val, key)
		case "values":
			c.Values, err = toValues(val, key)
		case "shaders":
			c.Shaders, err = toShaders(val)
		case "permutations":
			c.Permutations, err = toPermutations(val)
		case "output_dir":
			c.OutputDir, err = toString(val, key)
		case "compiler":
			c.Compiler, err = toString(val, key)
		case "jobs":
			c.Jobs, err = toInt(val, key)
		case "cache_dir":
			c.CacheDir, err = toString(val, key)
		default:
			err = fmt.Errorf("unknown key %q", key)
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func toShaders(val any) ([]ShaderEntry, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("shaders: expected a list, got %T", val)
	}
	out := make([]ShaderEntry, 0, len(list))
	for i, item := range list {
		where := fmt.Sprintf("shaders[%d]", i)
		var s ShaderEntry
		switch t := item.(type) {
		case string:
			s.Path = t
		case map[string]any:
			for _, key := range sortedKeys(t) {
				var err error
				switch key {
				case "name":
					s.Name, err = toString(t[key], where+".name")
				case "path":
					s.Path, err = toString(t[key], where+".path")
				case "permutations":
					s.Permutations, err = toStrings(t[key], where+".permutations")
				default:
					err = fmt.Errorf("%s: unknown key %q", where, key)
				}
				if err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("%s: expected a path or a table, got %T", where, item)
		}
		if s.Name == "" {
			s.Name = filepath.Base(s.Path)
		}
		out = append(out, s)
	}
	return out, nil
}

func toPermutations(val any) ([]Permutation, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("permutations: expected a list, got %T", val)
	}
	out := make([]Permutation, 0, len(list))
	for i, item := range list {
		where := fmt.Sprintf("permutations[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected a table, got %T", where, item)
		}
		var p Permutation
		for _, key := range sortedKeys(m) {
			var err error
			switch key {
			case "name":
				p.Name, err = toString(m[key], where+".name")
			case "flags":
				p.Flags, err = toFlags(m[key], where+".flags")
			case "values":
				p.Values, err = toValues(m[key], where+".values")
			default:
				err = fmt.Errorf("%s: unknown key %q", where, key)
			}
			if err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func toFlags(val any, where string) (precompiler.Flags, error) {
	m, err := toMap(val, where)
	if err != nil {
		return nil, err
	}
	flags := make(precompiler.Flags, len(m))
	for k, item := range m {
		b, ok := item.(bool)
		if !ok {
			return nil, fmt.Errorf("%s.%s: expected a boolean, got %T", where, k, item)
		}
		flags[k] = b
	}
	return flags, nil
}

func toValues(val any, where string) (precompiler.Values, error) {
	m, err := toMap(val, where)
	if err != nil {
		return nil, err
	}
	values := make(precompiler.Values, len(m))
	for k, item := range m {
		s, err := FormatValue(item)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", where, k, err)
		}
		values[k] = s
	}
	return values, nil
}

// FormatValue renders a scalar as substitution text. Floats always keep a
// decimal point so that 1.0 stays a float literal in shader code.
func FormatValue(val any) (string, error) {
	switch t := val.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s, nil
	}
	return "", fmt.Errorf("expected a scalar, got %T", val)
}

func toMap(val any, where string) (map[string]any, error) {
	if val == nil {
		return map[string]any{}, nil
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a table, got %T", where, val)
	}
	return m, nil
}

func toString(val any, where string) (string, error) {
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %T", where, val)
	}
	return s, nil
}

func toStrings(val any, where string) ([]string, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list, got %T", where, val)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, err := toString(item, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func toInt(val any, where string) (int, error) {
	switch t := val.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	}
	return 0, fmt.Errorf("%s: expected an integer, got %T", where, val)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
