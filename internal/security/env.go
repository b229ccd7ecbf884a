package security

import (
	"os"
	"slices"
	"strings"
)

// envRule reports whether an upper-cased variable name must not reach a
// subprocess.
type envRule func(name string) bool

func prefix(p string) envRule { return func(n string) bool { return strings.HasPrefix(n, p) } }
func suffix(s string) envRule { return func(n string) bool { return strings.HasSuffix(n, s) } }
func exact(e string) envRule  { return func(n string) bool { return n == e } }

// sensitiveEnv strips cloud keys, chat tokens and passwords. Git and SSH
// agent variables are left alone since the push action depends on them,
// and DATABASE_URL is matched exactly so DATABASE_HOST survives.
var sensitiveEnv = []envRule{
	prefix("AWS_SECRET"),
	prefix("AWS_SESSION_TOKEN"),
	prefix("SNAPKEEP_GATEWAY_"),
	prefix("SLACK_TOKEN"),
	prefix("DISCORD_TOKEN"),
	suffix("_PASSWORD"),
	exact("DATABASE_URL"),
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	return slices.ContainsFunc(sensitiveEnv, func(r envRule) bool { return r(upper) })
}

// SanitizedEnv returns the process environment minus sensitive variables,
// followed by extra. A variable set in extra replaces the inherited one.
func SanitizedEnv(extra ...string) []string {
	overridden := make(map[string]bool, len(extra))
	for _, kv := range extra {
		k, _, _ := strings.Cut(kv, "=")
		overridden[k] = true
	}

	env := os.Environ()
	out := make([]string, 0, len(env)+len(extra))
	for _, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if !ok || overridden[k] || isSensitiveEnvVar(k) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, extra...)
}
