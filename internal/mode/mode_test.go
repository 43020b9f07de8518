package mode

import "testing"

func TestIsNormalStrings(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"normal", true},
		{"Normal", true},
		{"NORMAL", true},
		{" Normal ", true},
		{"n", true},
		{"insert", false},
		{"Insert", false},
		{"visual", false},
		{"i", false},
		{"v", false},
		{"", false},
		{"normality", false},
	}
	for _, tt := range tests {
		if got := IsNormal(tt.in); got != tt.want {
			t.Errorf("IsNormal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsNormalStructured(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want bool
	}{
		{"name field", map[string]any{"name": "Normal"}, true},
		{"mode field", map[string]any{"mode": "normal"}, true},
		{"modeName field", map[string]any{"modeName": "Normal"}, true},
		{"mode_name field", map[string]any{"mode_name": "n"}, true},
		{"value field", map[string]any{"value": "Normal"}, true},
		{"nested record", map[string]any{"mode": map[string]any{"name": "Normal"}}, true},
		{"bool flag isNormal", map[string]any{"isNormal": true}, true},
		{"bool flag is_normal", map[string]any{"is_normal": true}, true},
		{"bool flag normal", map[string]any{"normal": true}, true},
		{"bool flag false", map[string]any{"isNormal": false}, false},
		{"type tag", map[string]any{"type": "normal"}, true},
		{"type tag insert", map[string]any{"type": "insert"}, false},
		{"insert name", map[string]any{"name": "Insert"}, false},
		{"nested insert", map[string]any{"mode": map[string]any{"name": "Insert"}}, false},
		{"empty map", map[string]any{}, false},
		{"nil field", map[string]any{"name": nil}, false},
		{"unrelated fields", map[string]any{"line": 3, "col": 7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNormal(tt.in); got != tt.want {
				t.Errorf("IsNormal(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsNormalIsTotal(t *testing.T) {
	// Unrecognized payload shapes classify as not-normal, never panic.
	inputs := []Value{
		nil,
		42,
		3.14,
		true,
		[]any{"normal"},
		[]string{"n"},
		struct{ Name string }{"Normal"},
	}
	for _, in := range inputs {
		if IsNormal(in) {
			t.Errorf("IsNormal(%v) = true, want false", in)
		}
	}
}

func TestIsNormalDepthBound(t *testing.T) {
	// Nesting past maxDepth stops extraction instead of recursing.
	deep := map[string]any{"name": "Normal"}
	for i := 0; i < 10; i++ {
		deep = map[string]any{"mode": deep}
	}
	if IsNormal(deep) {
		t.Error("deeply nested payload should classify as not normal")
	}

	// A self-referential payload terminates.
	cyclic := map[string]any{}
	cyclic["mode"] = cyclic
	if IsNormal(cyclic) {
		t.Error("cyclic payload should classify as not normal")
	}
}

func TestNormalName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"normal", true},
		{"Normal", true},
		{"n", true},
		{"  normal  ", true},
		{"N", false},
		{"no", false},
		{"insert", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := NormalName(tt.in); got != tt.want {
			t.Errorf("NormalName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"bare string", "Insert", "Insert"},
		{"name field", map[string]any{"name": "Visual"}, "Visual"},
		{"nested", map[string]any{"mode": map[string]any{"name": "Normal"}}, "Normal"},
		{"no name", map[string]any{"line": 1}, ""},
		{"nil", nil, ""},
		{"number", 7, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.in); got != tt.want {
				t.Errorf("Name(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
