package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/neurodesk/shaderprep/pkg/precompiler"
	v "github.com/neurodesk/shaderprep/pkg/validator"
)

// ParseFlag parses a command line flag assignment: NAME, NAME=true or
// NAME=false. NAME follows the #if rules, except that it cannot contain "=".
func ParseFlag(arg string) (string, bool, error) {
	name, raw, hasValue := strings.Cut(arg, "=")
	if err := v.FlagName(name, "flag"); err != nil {
		return "", false, err
	}
	if !hasValue {
		return name, true, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return "", false, fmt.Errorf("flag %s: %q is not a boolean", name, raw)
	}
	return name, b, nil
}

// ParseValue parses a command line value assignment: NAME=TEXT. TEXT may be
// empty.
func ParseValue(arg string) (string, string, error) {
	name, text, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", fmt.Errorf("value %q: expected NAME=TEXT", arg)
	}
	if err := v.Identifier(name, "value"); err != nil {
		return "", "", err
	}
	return name, text, nil
}

// Overrides applies command line assignments on top of flags and values,
// returning new maps. Later assignments win.
func Overrides(flags precompiler.Flags, values precompiler.Values, flagArgs, valueArgs []string) (precompiler.Flags, precompiler.Values, error) {
	extra := Permutation{Flags: precompiler.Flags{}, Values: precompiler.Values{}}
	for _, arg := range flagArgs {
		name, b, err := ParseFlag(arg)
		if err != nil {
			return nil, nil, err
		}
		extra.Flags[name] = b
	}
	for _, arg := range valueArgs {
		name, text, err := ParseValue(arg)
		if err != nil {
			return nil, nil, err
		}
		extra.Values[name] = text
	}
	f, vals := extra.Merge(flags, values)
	return f, vals, nil
}
