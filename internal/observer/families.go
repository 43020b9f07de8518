package observer

import (
	"strings"

	"modeswitchd/internal/logging"
	"modeswitchd/internal/mode"
)

// Family identities. These are configuration keys, not extension
// identifiers; an identity maps to one or more published identifiers.
const (
	IdentityVim    = "vim"
	IdentityNeovim = "neovim"
	IdentityDance  = "dance"
)

// NewVim builds the observer for the VSCodeVim family. Vim reports its
// mode as a full name string ("Normal", "Insert", ...), so the strategy
// narrows textual classification to exact case-insensitive equality and
// leaves structured payloads to the generic policy.
func NewVim(log *logging.Logger) Observer {
	return newFamily(IdentityVim, []string{"vscodevim.vim"}, vimStrategy, log)
}

func vimStrategy(v mode.Value) bool {
	if s, ok := v.(string); ok {
		return strings.EqualFold(strings.TrimSpace(s), "normal")
	}
	return mode.IsNormal(v)
}

// NewNeovim builds the observer for the embedded-Neovim family. Neovim
// reports short mode tokens ("n", "i", "v"), either bare or under a
// "mode" field.
func NewNeovim(log *logging.Logger) Observer {
	return newFamily(IdentityNeovim, []string{"asvetliakov.vscode-neovim"}, neovimStrategy, log)
}

func neovimStrategy(v mode.Value) bool {
	switch m := v.(type) {
	case string:
		return neovimToken(m)
	case map[string]any:
		if tok, ok := m["mode"].(string); ok {
			return neovimToken(tok)
		}
	}
	return mode.IsNormal(v)
}

// neovimToken matches the short-token spelling: "n" alone or prefixed
// operator-pending forms still count as normal ("no", "nov", ...).
func neovimToken(tok string) bool {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return false
	}
	if strings.EqualFold(tok, "normal") {
		return true
	}
	return tok == "n" || strings.HasPrefix(tok, "no")
}

// NewDance builds the observer for the Dance/Helix-keybindings family.
// The family has shipped under two identifiers; payloads carry the mode
// as a nested record, {mode:{name:"Normal"}}.
func NewDance(log *logging.Logger) Observer {
	ids := []string{"gregoire.dance", "kend.dancehelixkey"}
	return newFamily(IdentityDance, ids, danceStrategy, log)
}

func danceStrategy(v mode.Value) bool {
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["mode"].(map[string]any); ok {
			if name, ok := inner["name"].(string); ok {
				return mode.NormalName(name)
			}
		}
	}
	return mode.IsNormal(v)
}

// DefaultObservers returns the full set of family observers in
// registration order.
func DefaultObservers(log *logging.Logger) []Observer {
	return []Observer{
		NewVim(log),
		NewNeovim(log),
		NewDance(log),
	}
}
