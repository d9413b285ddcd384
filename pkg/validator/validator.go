package validator

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"
)

// All returns the first non-nil error.
func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

type Validatable interface {
	Validate() error
}

func Each[T Validatable](items []T, description string) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", description, i, err)
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

func NotNegative(n int, description string) error {
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", description, n)
	}
	return nil
}

var identifier = regexp.MustCompile(`^\w+$`)

// Identifier checks that name can be written after #if or inside #{ }.
func Identifier(name, description string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("%s %q is not a valid name (letters, digits and underscores only)", description, name)
	}
	return nil
}

var (
	valueReference = regexp.MustCompile(`#\{\w+\}`)
	directives     = []string{"#if", "#elseif", "#else", "#endif", "#include"}
)

// FlagName checks that name can be written after #if: a single word that is
// not a negation marker or a directive and holds no #{ } reference. Flag
// names are looser than value names, e.g. "my-flag" is allowed.
func FlagName(name, description string) error {
	switch {
	case name == "":
		return fmt.Errorf("%s name must not be empty", description)
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return fmt.Errorf("%s %q is not a valid name (it contains whitespace)", description, name)
	case name == "not" || strings.HasPrefix(name, "!"):
		return fmt.Errorf("%s %q is not a valid name (it reads as a negation)", description, name)
	case slices.Contains(directives, name):
		return fmt.Errorf("%s %q is not a valid name (it is a directive)", description, name)
	case valueReference.MatchString(name):
		return fmt.Errorf("%s %q is not a valid name (it contains a value reference)", description, name)
	}
	return nil
}

// Keys applies check to every key of m, in sorted order so that the
// reported error does not depend on map iteration.
func Keys[T any](m map[string]T, check func(name, description string) error, description string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := check(k, description); err != nil {
			return err
		}
	}
	return nil
}
