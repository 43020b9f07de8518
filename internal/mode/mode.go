// Package mode classifies editor mode payloads.
//
// Modal editor extensions disagree about what a "mode" looks like on the
// wire: some send a bare string ("Normal", "n"), some a flat object with a
// name field, some a nested object ({mode:{name:"Normal"}}), some only an
// explicit boolean flag. This package owns the single question every
// downstream component asks of those payloads: does this value represent
// normal mode?
//
// Classification is total. A payload that cannot be understood is "not
// normal" — never an error, never a panic.
package mode

import "strings"

// Value is an opaque mode payload as delivered by an editor integration.
// Known shapes are string and map[string]any (JSON-decoded); anything
// else classifies as not normal.
type Value any

// Strategy decides whether a mode payload represents normal mode.
// Implementations must be total: nil and unrecognized inputs return false.
type Strategy func(v Value) bool

// Conventional property names carrying a mode name, in lookup order.
var nameFields = []string{"name", "mode", "modeName", "mode_name", "value"}

// Explicit boolean flags meaning "this is normal mode".
var normalFlags = []string{"isNormal", "is_normal", "normal"}

// maxDepth bounds nested field extraction so a cyclic payload cannot
// recurse forever.
const maxDepth = 3

// IsNormal is the generic classification policy, in priority order:
// textual equality ("normal" case-insensitively, or the token "n"),
// then a name-like field of a structured payload, then an explicit
// boolean flag or a type tag of "normal". Everything else is false.
func IsNormal(v Value) bool {
	return isNormal(v, 0)
}

func isNormal(v Value, depth int) bool {
	if v == nil || depth > maxDepth {
		return false
	}

	switch m := v.(type) {
	case string:
		return NormalName(m)

	case map[string]any:
		for _, field := range nameFields {
			inner, ok := m[field]
			if !ok || inner == nil {
				continue
			}
			if isNormal(inner, depth+1) {
				return true
			}
		}
		for _, flag := range normalFlags {
			if b, ok := m[flag].(bool); ok && b {
				return true
			}
		}
		if tag, ok := m["type"].(string); ok && strings.EqualFold(tag, "normal") {
			return true
		}
		return false

	default:
		return false
	}
}

// NormalName reports whether a mode name denotes normal mode: the word
// "normal" in any casing, or the single-letter vim token "n".
func NormalName(name string) bool {
	if name == "n" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(name), "normal")
}

// Name extracts a mode name from a structured payload by scanning the
// conventional property names, following one level of nesting. Returns
// "" when no textual name is found.
func Name(v Value) string {
	return extractName(v, 0)
}

func extractName(v Value, depth int) string {
	if v == nil || depth > maxDepth {
		return ""
	}
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		for _, field := range nameFields {
			if inner, ok := m[field]; ok {
				if name := extractName(inner, depth+1); name != "" {
					return name
				}
			}
		}
	}
	return ""
}
