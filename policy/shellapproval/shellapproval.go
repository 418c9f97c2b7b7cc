// Package shellapproval implements the command allowlist that gates
// client-delegated shell execution: commands outside the allowlist, or
// carrying shell metacharacters, are denied unless the run has already
// collected approval for that exact command via suspend/resume.
package shellapproval

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCommandDenied marks a command that policy will not run without
// out-of-band approval.
var ErrCommandDenied = errors.New("shell command denied by policy")

var forbiddenTokens = []string{"\n", "\r", ";", "&&", "||", "|", ">", "<", "`", "$", "(", ")"}

var defaultAllowed = map[string]struct{}{
	"cat":    {},
	"echo":   {},
	"find":   {},
	"grep":   {},
	"head":   {},
	"ls":     {},
	"pwd":    {},
	"rg":     {},
	"sed":    {},
	"stat":   {},
	"tail":   {},
	"wc":     {},
	"which":  {},
	"printf": {},
}

// Policy is a command-verb allowlist. The zero value uses defaultAllowed.
type Policy struct {
	allowed map[string]struct{}
}

// New returns a Policy restricted to the given command verbs. A nil or
// empty allowed list falls back to a conservative read-only default.
func New(allowed []string) Policy {
	if len(allowed) == 0 {
		return Policy{allowed: defaultAllowed}
	}
	set := make(map[string]struct{}, len(allowed))
	for _, verb := range allowed {
		set[verb] = struct{}{}
	}
	return Policy{allowed: set}
}

// Validate reports ErrCommandDenied if command carries shell metacharacters
// or its verb is outside the allowlist.
func (p Policy) Validate(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("%w: command is empty", ErrCommandDenied)
	}
	for _, token := range forbiddenTokens {
		if strings.Contains(trimmed, token) {
			return fmt.Errorf("%w: forbidden token %q", ErrCommandDenied, token)
		}
	}
	verb := strings.Fields(trimmed)[0]
	if _, ok := p.allowed[verb]; !ok {
		return fmt.Errorf("%w: command %q is not allowed", ErrCommandDenied, verb)
	}
	return nil
}
