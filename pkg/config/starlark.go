package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// documentKeys are the globals a Starlark configuration exports. Any other
// global is a helper and is ignored.
var documentKeys = map[string]bool{
	"flags":        true,
	"values":       true,
	"shaders":      true,
	"permutations": true,
	"output_dir":   true,
	"compiler":     true,
	"jobs":         true,
	"cache_dir":    true,
}

// Evaluator runs Starlark configuration scripts.
type Evaluator struct {
	thread   *starlark.Thread
	builtins starlark.StringDict
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	thread := &starlark.Thread{
		Name: "shaderprep",
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info(msg, "source", "starlark")
		},
	}
	return &Evaluator{thread: thread, builtins: builtins()}
}

// ExecFile executes a script and returns the configuration document it
// defines. src may be nil, in which case filename is read.
func (e *Evaluator) ExecFile(filename string, src any) (map[string]any, error) {
	globals, err := starlark.ExecFile(e.thread, filename, src, e.builtins)
	if err != nil {
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}

	doc := map[string]any{}
	for name, val := range globals {
		if !documentKeys[name] {
			continue
		}
		goVal, err := FromStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		doc[name] = goVal
	}
	return doc, nil
}

func execStarlark(path string, logger *slog.Logger) (map[string]any, error) {
	return NewEvaluator(logger).ExecFile(path, nil)
}

// FromStarlark converts a Starlark value to the plain Go shape the YAML and
// TOML decoders produce.
func FromStarlark(val starlark.Value) (any, error) {
	switch t := val.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(t), nil
	case starlark.Bool:
		return bool(t), nil
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer %s out of range", t.String())
	case starlark.Float:
		return float64(t), nil
	case *starlark.List:
		return fromIterable(t, t.Len())
	case starlark.Tuple:
		return fromIterable(t, t.Len())
	case *starlark.Dict:
		out := make(map[string]any, t.Len())
		for _, item := range t.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0].String())
			}
			v, err := FromStarlark(item[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", string(key), err)
			}
			out[string(key)] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", val.Type())
}

func fromIterable(it starlark.Iterable, n int) ([]any, error) {
	out := make([]any, 0, n)
	iter := it.Iterate()
	defer iter.Done()
	var item starlark.Value
	for i := 0; iter.Next(&item); i++ {
		v, err := FromStarlark(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func builtins() starlark.StringDict {
	return starlark.StringDict{
		"combinations": starlark.NewBuiltin("combinations", combinationsBuiltin),
		"env":          starlark.NewBuiltin("env", envBuiltin),
	}
}

// combinations(flags, values={}) returns one permutation per combination of
// the given flags, ready to assign to the permutations global. A permutation is named after the flags it enables, or
// "none" when it enables none of them.
func combinationsBuiltin(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		flags  *starlark.List
		values *starlark.Dict
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "flags", &flags, "values?", &values); err != nil {
		return nil, err
	}

	names := make([]string, 0, flags.Len())
	for i := 0; i < flags.Len(); i++ {
		s, ok := flags.Index(i).(starlark.String)
		if !ok {
			return nil, fmt.Errorf("%s: flags[%d] is not a string", fn.Name(), i)
		}
		names = append(names, string(s))
	}
	if len(names) > 16 {
		return nil, fmt.Errorf("%s: %d flags would produce too many permutations", fn.Name(), len(names))
	}

	var out []starlark.Value
	for _, combo := range Combinations(names) {
		flagDict := starlark.NewDict(len(names))
		var on []string
		for _, name := range names {
			if combo[name] {
				on = append(on, name)
			}
			if err := flagDict.SetKey(starlark.String(name), starlark.Bool(combo[name])); err != nil {
				return nil, err
			}
		}
		perm := starlark.NewDict(3)
		if err := perm.SetKey(starlark.String("name"), starlark.String(PermutationName(on))); err != nil {
			return nil, err
		}
		if err := perm.SetKey(starlark.String("flags"), flagDict); err != nil {
			return nil, err
		}
		if values != nil {
			if err := perm.SetKey(starlark.String("values"), values); err != nil {
				return nil, err
			}
		}
		out = append(out, perm)
	}
	return starlark.NewList(out), nil
}

// Combinations enumerates every assignment of the named flags, starting with
// all of them off.
func Combinations(names []string) []map[string]bool {
	out := make([]map[string]bool, 0, 1<<len(names))
	for mask := 0; mask < 1<<len(names); mask++ {
		combo := make(map[string]bool, len(names))
		for i, name := range names {
			combo[name] = mask&(1<<i) != 0
		}
		out = append(out, combo)
	}
	return out
}

// PermutationName names a permutation after its enabled flags.
func PermutationName(enabled []string) string {
	if len(enabled) == 0 {
		return "none"
	}
	sorted := append([]string(nil), enabled...)
	sort.Strings(sorted)
	return strings.ToLower(strings.Join(sorted, "_"))
}

// env(name, default="") reads an environment variable.
func envBuiltin(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, def string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(name); ok {
		return starlark.String(v), nil
	}
	return starlark.String(def), nil
}
