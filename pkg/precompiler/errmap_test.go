package precompiler

import "testing"

func TestParseCompileMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want CompileMessage
		ok   bool
	}{
		{"Compilation failed: ERROR: 12: 'foo' : undeclared identifier", CompileMessage{"ERROR", 12}, true},
		{"shader: Compilation failed: fragment/parse: 3: expected ';'", CompileMessage{"fragment/parse", 3}, true},
		{"", CompileMessage{}, false},
		{"Compilation failed", CompileMessage{}, false},
		{"Compilation failed: ERROR: twelve: oops", CompileMessage{}, false},
		{"Compilation failed: ERROR: 99999999999999999999999999: too big", CompileMessage{}, false},
		{"link error: no entry point", CompileMessage{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCompileMessage(tt.msg)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseCompileMessage(%q) = %+v, %v; want %+v, %v", tt.msg, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMapCompileError(t *testing.T) {
	vertex := "v1\nv2\nv3\n"
	fragment := "f1\nf2\n"

	d := MapCompileError("Compilation failed: ERROR: 2: bad", vertex, fragment)
	if !d.HasLine || d.Line != 2 || d.Type != "ERROR" {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
	if d.VertexLine != "v2" || d.FragmentLine != "f2" {
		t.Fatalf("got lines %q / %q", d.VertexLine, d.FragmentLine)
	}

	d = MapCompileError("Compilation failed: ERROR: 3: bad", vertex, fragment)
	if d.VertexLine != "v3" || d.FragmentLine != "" {
		t.Fatalf("out of range line should be empty, got %q / %q", d.VertexLine, d.FragmentLine)
	}

	d = MapCompileError("Compilation failed: ERROR: 0: bad", vertex, fragment)
	if !d.HasLine || d.VertexLine != "" || d.FragmentLine != "" {
		t.Fatalf("line 0 should resolve to nothing: %+v", d)
	}
}

func TestMapCompileErrorMalformed(t *testing.T) {
	for _, msg := range []string{"", "segfault", "Compilation failed: : : :", "Compilation failed: X: -1: y", "\x00\xff"} {
		d := MapCompileError(msg, "a\n", "b\n")
		if d != (Diagnostic{}) {
			t.Errorf("MapCompileError(%q) = %+v, want no context", msg, d)
		}
	}
}

func TestMapExpansions(t *testing.T) {
	ldr := MemoryLoader{"inc.glsl": "i1\ni2\n"}
	s := Session{Flags: Flags{"A": false}, Loader: ldr}
	vraw := "#if A\nskipped\n#endif\nv1\n#include inc.glsl\n"
	fraw := "f1\nf2\nf3\n"
	vexp, err := s.Expand(vraw, "x.vert")
	if err != nil {
		t.Fatal(err)
	}
	fexp, err := s.Expand(fraw, "x.frag")
	if err != nil {
		t.Fatal(err)
	}

	d := MapExpansions("Compilation failed: ERROR: 1: bad",
		Unit{File: "x.vert", Raw: vraw, Expansion: vexp},
		Unit{File: "x.frag", Raw: fraw, Expansion: fexp})
	if d.VertexLine != "v1" || d.VertexOrigin != (Origin{"x.vert", 4}) || d.RawVertexLine != "v1" {
		t.Fatalf("vertex mapping wrong: %+v", d)
	}
	if d.FragmentLine != "f1" || d.FragmentOrigin != (Origin{"x.frag", 1}) || d.RawFragmentLine != "f1" {
		t.Fatalf("fragment mapping wrong: %+v", d)
	}

	d = MapExpansions("Compilation failed: ERROR: 3: bad",
		Unit{File: "x.vert", Raw: vraw, Expansion: vexp},
		Unit{File: "x.frag", Raw: fraw, Expansion: fexp})
	if d.VertexLine != "i2" || d.VertexOrigin != (Origin{"inc.glsl", 2}) || d.RawVertexLine != "" {
		t.Fatalf("included line mapping wrong: %+v", d)
	}

	d = MapExpansions("no line here", Unit{}, Unit{})
	if d.HasLine {
		t.Fatalf("want no context, got %+v", d)
	}
	d = MapExpansions("Compilation failed: E: 1: x", Unit{}, Unit{})
	if !d.HasLine || d.VertexLine != "" || d.VertexOrigin != (Origin{}) {
		t.Fatalf("units without expansions should map to nothing: %+v", d)
	}
}
