package validator

import (
	"errors"
	"strings"
	"testing"
)

type item struct{ name string }

func (i item) Validate() error { return NotEmpty(i.name, "name") }

func TestEach(t *testing.T) {
	err := Each([]item{{"a"}, {""}}, "items")
	if err == nil || !strings.HasPrefix(err.Error(), "items[1]: ") {
		t.Fatalf("got %v", err)
	}
	if err := Each([]item{{"a"}}, "items"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAll(t *testing.T) {
	first := errors.New("first")
	if err := All(nil, first, errors.New("second")); err != first {
		t.Fatalf("got %v", err)
	}
	if err := All(nil, nil); err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestIdentifierAndKeys(t *testing.T) {
	for _, ok := range []string{"LIGHTING", "max_lights", "A1"} {
		if err := Identifier(ok, "flag"); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "has space", "a-b", "#{x}"} {
		if err := Identifier(bad, "flag"); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
	err := Keys(map[string]bool{"ok": true, "z-z": true, "a-a": false}, Identifier, "value")
	if err == nil || !strings.Contains(err.Error(), `"a-a"`) {
		t.Fatalf("want first bad key in sorted order, got %v", err)
	}
}

func TestFlagName(t *testing.T) {
	for _, ok := range []string{"LIGHTING", "my-flag", "use.fog", "x!"} {
		if err := FlagName(ok, "flag"); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "has space", "not", "!A", "#if", "#endif", "A#{x}"} {
		if err := FlagName(bad, "flag"); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
	if err := Keys(map[string]bool{"my-flag": true, "b c": true}, FlagName, "flag"); err == nil || !strings.Contains(err.Error(), `"b c"`) {
		t.Fatalf("want the whitespace key reported, got %v", err)
	}
}

func TestNoDuplicatesAndAllowed(t *testing.T) {
	if err := NoDuplicates([]string{"a", "b", "a"}, "names"); err == nil {
		t.Fatalf("duplicate not reported")
	}
	if err := MatchesAllowed("x", []string{"a", "b"}, "mode"); err == nil {
		t.Fatalf("disallowed value accepted")
	}
	if err := NotNegative(-1, "jobs"); err == nil {
		t.Fatalf("negative accepted")
	}
}
