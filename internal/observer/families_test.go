package observer

import (
	"testing"

	"modeswitchd/internal/mode"
)

func TestVimStrategy(t *testing.T) {
	o := NewVim(nil)
	tests := []struct {
		name string
		in   mode.Value
		want bool
	}{
		{"full name", "Normal", true},
		{"lowercase", "normal", true},
		{"uppercase", "NORMAL", true},
		{"padded", " Normal ", true},
		{"insert", "Insert", false},
		{"visual", "Visual", false},
		// Vim spells modes out; the bare token "n" is not one of its names.
		{"short token", "n", false},
		{"structured fallback", map[string]any{"name": "Normal"}, true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.IsNormalMode(tt.in); got != tt.want {
				t.Errorf("vim.IsNormalMode(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNeovimStrategy(t *testing.T) {
	o := NewNeovim(nil)
	tests := []struct {
		name string
		in   mode.Value
		want bool
	}{
		{"token", "n", true},
		{"operator pending", "no", true},
		{"operator pending charwise", "nov", true},
		{"full name", "normal", true},
		{"insert token", "i", false},
		{"visual token", "v", false},
		{"empty", "", false},
		{"mode field token", map[string]any{"mode": "n"}, true},
		{"mode field insert", map[string]any{"mode": "i"}, false},
		{"structured fallback", map[string]any{"name": "Normal"}, true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.IsNormalMode(tt.in); got != tt.want {
				t.Errorf("neovim.IsNormalMode(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDanceStrategy(t *testing.T) {
	o := NewDance(nil)
	tests := []struct {
		name string
		in   mode.Value
		want bool
	}{
		{"nested normal", map[string]any{"mode": map[string]any{"name": "Normal"}}, true},
		{"nested lowercase", map[string]any{"mode": map[string]any{"name": "normal"}}, true},
		{"nested insert", map[string]any{"mode": map[string]any{"name": "insert"}}, false},
		{"nested select", map[string]any{"mode": map[string]any{"name": "select"}}, false},
		{"bare string fallback", "normal", true},
		{"flat name fallback", map[string]any{"name": "Normal"}, true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.IsNormalMode(tt.in); got != tt.want {
				t.Errorf("dance.IsNormalMode(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFamilyIdentifiers(t *testing.T) {
	tests := []struct {
		o        Observer
		identity string
		ids      []string
	}{
		{NewVim(nil), IdentityVim, []string{"vscodevim.vim"}},
		{NewNeovim(nil), IdentityNeovim, []string{"asvetliakov.vscode-neovim"}},
		{NewDance(nil), IdentityDance, []string{"gregoire.dance", "kend.dancehelixkey"}},
	}
	for _, tt := range tests {
		if tt.o.Identity() != tt.identity {
			t.Errorf("identity = %q, want %q", tt.o.Identity(), tt.identity)
		}
		ids := tt.o.Identifiers()
		if len(ids) != len(tt.ids) {
			t.Fatalf("%s: identifiers = %v, want %v", tt.identity, ids, tt.ids)
		}
		for i := range ids {
			if ids[i] != tt.ids[i] {
				t.Errorf("%s: identifiers = %v, want %v", tt.identity, ids, tt.ids)
			}
		}
	}
}

func TestDefaultObserversOrder(t *testing.T) {
	obs := DefaultObservers(nil)
	want := []string{IdentityVim, IdentityNeovim, IdentityDance}
	if len(obs) != len(want) {
		t.Fatalf("expected %d observers, got %d", len(want), len(obs))
	}
	for i, o := range obs {
		if o.Identity() != want[i] {
			t.Errorf("observer %d = %q, want %q", i, o.Identity(), want[i])
		}
	}
}
