package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// AgentID identifies an actor. Built-in identities are fixed strings;
// registered extensions use the form "module:<name>".
// Identities compare by value and are never recycled once registered.
type AgentID string

// Built-in identities.
const (
	User   AgentID = "user"
	Claude AgentID = "claude"
	Llama  AgentID = "llama"
	System AgentID = "system"
)

// ModulePrefix is the separator-qualified prefix of extension identities.
const ModulePrefix = "module:"

// BuiltinAgents returns the fixed identities in display order.
func BuiltinAgents() []AgentID {
	return []AgentID{User, Claude, Llama, System}
}

// ModuleAgent returns the identity of the extension module name.
// The name is not validated; use ValidateModuleName first.
func ModuleAgent(name string) AgentID {
	return AgentID(ModulePrefix + name)
}

// IsBuiltin reports whether a is one of the fixed identities.
func (a AgentID) IsBuiltin() bool {
	switch a {
	case User, Claude, Llama, System:
		return true
	}
	return false
}

// IsModule reports whether a is an extension identity.
func (a AgentID) IsModule() bool {
	return strings.HasPrefix(string(a), ModulePrefix)
}

// ModuleName returns the extension name, or "" for built-ins.
func (a AgentID) ModuleName() string {
	if !a.IsModule() {
		return ""
	}
	return strings.TrimPrefix(string(a), ModulePrefix)
}

func (a AgentID) String() string {
	return string(a)
}

// Validate checks that a is a built-in or a well-formed module identity.
func (a AgentID) Validate() error {
	if a.IsBuiltin() {
		return nil
	}
	if a.IsModule() {
		return ValidateModuleName(a.ModuleName())
	}
	return fmt.Errorf("unknown agent %q (expected user, claude, llama, system or module:<name>)", string(a))
}

// ParseAgentID parses a textual identity. Built-in names are matched
// case-insensitively; module names keep their case.
func ParseAgentID(s string) (AgentID, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, b := range BuiltinAgents() {
		if lower == string(b) {
			return b, nil
		}
	}
	if strings.HasPrefix(lower, ModulePrefix) {
		name := s[len(ModulePrefix):]
		if err := ValidateModuleName(name); err != nil {
			return "", err
		}
		return ModuleAgent(name), nil
	}
	return "", fmt.Errorf("unknown agent %q (expected user, claude, llama, system or module:<name>)", s)
}

// ValidateModuleName rejects empty names and names containing the ':'
// separator, whitespace or control characters.
func ValidateModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("invalid module name %q: cannot be empty", name)
	}
	for _, r := range name {
		switch {
		case r == ':':
			return fmt.Errorf("invalid module name %q: cannot contain ':'", name)
		case unicode.IsSpace(r):
			return fmt.Errorf("invalid module name %q: cannot contain whitespace", name)
		case unicode.IsControl(r):
			return fmt.Errorf("invalid module name %q: cannot contain control characters", name)
		}
	}
	return nil
}
