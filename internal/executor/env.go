package executor

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/harshul/octo-runner/internal/toolchain"
)

// Port variables set for servers. Frameworks honor one or the other.
var portVars = []string{"PORT", "NUXT_PORT"}

// EnvOptions describes the environment of one spawned command
type EnvOptions struct {
	Kind       Kind
	Port       int
	Cwd        string
	BrowserEnv map[string]string
	Dotenv     bool
}

// BuildEnv merges the process environment, the headless-browser variables
// and the package-manager variables, and puts the resolved node directory
// first on PATH. Servers additionally get node_modules/.bin on PATH,
// BROWSER=none, their port variables and, when enabled, the project's .env
// for keys not already set.
func BuildEnv(rt toolchain.Runtime, opts EnvOptions) []string {
	env := newEnvMap(os.Environ())

	for k, v := range opts.BrowserEnv {
		env.set(k, v)
	}
	for k, v := range rt.Env {
		env.set(k, v)
	}

	// A server may run a package script's body directly, as the script
	// runner would, with the project's binaries on PATH
	if opts.Kind != KindOneShot && opts.Cwd != "" {
		bin := filepath.Join(opts.Cwd, "node_modules", ".bin")
		if info, err := os.Stat(bin); err == nil && info.IsDir() {
			env.prependPath(bin)
		}
	}

	if dir := rt.NodeDir(); dir != "" {
		env.prependPath(dir)
	}

	if opts.Kind != KindOneShot {
		env.set("BROWSER", "none")
		if opts.Port > 0 {
			for _, k := range portVars {
				env.set(k, strconv.Itoa(opts.Port))
			}
		}
		if opts.Dotenv && opts.Cwd != "" {
			if vars, err := godotenv.Read(filepath.Join(opts.Cwd, ".env")); err == nil {
				for k, v := range vars {
					if !env.has(k) {
						env.set(k, v)
					}
				}
			}
		}
	}

	return env.list()
}

// envMap is an environment keyed case-insensitively on Windows, where Path
// and PATH are the same variable.
type envMap struct {
	keys   map[string]string // normalized key -> original key
	values map[string]string
}

func newEnvMap(environ []string) *envMap {
	e := &envMap{keys: map[string]string{}, values: map[string]string{}}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		e.set(k, v)
	}
	return e
}

func normalizeKey(k string) string {
	if isWindows {
		return strings.ToUpper(k)
	}
	return k
}

func (e *envMap) set(k, v string) {
	n := normalizeKey(k)
	if orig, ok := e.keys[n]; ok {
		k = orig
	}
	e.keys[n] = k
	e.values[n] = v
}

func (e *envMap) get(k string) string {
	return e.values[normalizeKey(k)]
}

func (e *envMap) has(k string) bool {
	_, ok := e.values[normalizeKey(k)]
	return ok
}

func (e *envMap) prependPath(dir string) {
	current := e.get("PATH")
	parts := []string{dir}
	for _, p := range filepath.SplitList(current) {
		if p != "" && p != dir {
			parts = append(parts, p)
		}
	}
	e.set("PATH", strings.Join(parts, string(os.PathListSeparator)))
}

func (e *envMap) list() []string {
	out := make([]string, 0, len(e.values))
	for n, v := range e.values {
		out = append(out, e.keys[n]+"="+v)
	}
	sort.Strings(out)
	return out
}
