package agent

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// BuildTaskWithEnvironment adds site context to the user's task when the
// run starts from a known URL.
func BuildTaskWithEnvironment(rawTask, startURL string) string {
	u, err := url.Parse(startURL)
	if err != nil || u.Host == "" {
		return rawTask
	}

	host := strings.ToLower(u.Host)
	path := strings.TrimRight(u.Path, "/")

	var pathNote string
	if path != "" {
		pathNote = fmt.Sprintf(`
Starting path on the site: %s.
Try to stay within the section whose URL starts with this path.
Do not move to other major sections of the site (other root paths) unless the user
explicitly asked for it, especially through the global header menu.`,
			path,
		)
	}

	return fmt.Sprintf(
		`You are working on the site %s.
Start page: %s.%s

Do not navigate to other domains unless the user task requires it.
User task: %s`,
		host, startURL, pathNote, rawTask,
	)
}

var credentialRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandCredentials replaces ${VAR} references with environment values.
// Plain $VAR and unrelated dollar signs are left alone. Unset variables
// keep their ${VAR} placeholder and are reported in missing.
func ExpandCredentials(task string) (expanded string, missing []string) {
	expanded = credentialRef.ReplaceAllStringFunc(task, func(ref string) string {
		name := credentialRef.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return v
	})
	return expanded, missing
}
