package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const secretPrefix = "secret:"

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// SecretResolver looks up values for ${secret:NAME} placeholders.
type SecretResolver interface {
	Secret(name string) (string, error)
}

// placeholderResolver rewrites scalar nodes in place and collects every
// unresolvable reference so they can be reported together.
type placeholderResolver struct {
	secrets  SecretResolver
	problems []string
	seen     map[string]bool
}

func (r *placeholderResolver) walk(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode {
		if strings.Contains(node.Value, "${") {
			node.Value = r.expand(node.Value)
			// Re-resolve the tag from the substituted value so numeric
			// placeholders still decode into numeric fields.
			node.Tag = ""
		}
		return
	}
	for _, child := range node.Content {
		r.walk(child)
	}
}

func (r *placeholderResolver) expand(value string) string {
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-1])
		resolved, err := r.lookup(name)
		if err != nil {
			r.report(err.Error())
			return ""
		}
		return resolved
	})
}

func (r *placeholderResolver) lookup(name string) (string, error) {
	if strings.HasPrefix(name, secretPrefix) {
		key := strings.TrimPrefix(name, secretPrefix)
		if r.secrets == nil {
			return "", fmt.Errorf("secret %q referenced but no secret store is available", key)
		}
		v, err := r.secrets.Secret(key)
		if err != nil || v == "" {
			return "", fmt.Errorf("secret %q is not set", key)
		}
		return v, nil
	}

	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return v, nil
}

func (r *placeholderResolver) report(problem string) {
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if r.seen[problem] {
		return
	}
	r.seen[problem] = true
	r.problems = append(r.problems, problem)
}
