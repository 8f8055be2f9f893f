// SPDX-License-Identifier: AGPL-3.0-or-later
package script

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	commentMarker = "#"
	envPrefix     = "env."
)

var variablePattern = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// Tokenize splits a line on whitespace. It returns nil for blank lines and
// comments. There is no quoting.
func Tokenize(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, commentMarker) {
		return nil
	}
	return strings.Fields(line)
}

// ResolveVariable expands a token of the exact form ${name} or ${env.NAME}.
// Other tokens are returned unchanged. Expansion is single-pass.
func (in *Interpreter) ResolveVariable(token string) (string, error) {
	m := variablePattern.FindStringSubmatch(token)
	if m == nil {
		return token, nil
	}
	name := m[1]

	if env, ok := strings.CutPrefix(name, envPrefix); ok {
		value, found := in.lookupEnv(env)
		if !found {
			in.logger.V(1).Info("Environment variable not set, using empty value", "name", env)
		}
		return value, nil
	}

	value, ok := in.vars[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVariableNotDefined, name)
	}
	return value, nil
}

func (in *Interpreter) resolveAll(tokens []string) ([]string, error) {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		v, err := in.ResolveVariable(tok)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// isAssignment reports whether raw tokens use "=" at all, and whether they do
// so in the only accepted shape: name = value. A first token containing "=" or
// a second token starting with it counts as an attempted assignment.
func isAssignment(tokens []string) (assignment, valid bool) {
	equals := 0
	for _, tok := range tokens {
		if tok == "=" {
			equals++
		}
	}
	assignment = equals > 0 ||
		strings.Contains(tokens[0], "=") ||
		(len(tokens) > 1 && strings.HasPrefix(tokens[1], "="))
	if !assignment {
		return false, false
	}
	return true, len(tokens) == 3 && equals == 1 && tokens[1] == "=" && !strings.Contains(tokens[0], "=")
}
