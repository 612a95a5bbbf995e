package executor

import (
	"regexp"
	"strings"

	"github.com/harshul/octo-runner/internal/provisioner"
)

// Kind is how a command is run
type Kind int

const (
	// KindOneShot runs synchronously with a timeout and an output cap
	KindOneShot Kind = iota
	// KindDevServer starts a detached, tracked server on the dev port
	KindDevServer
	// KindPreviewServer starts a detached, tracked server on the preview port
	KindPreviewServer
)

func (k Kind) String() string {
	switch k {
	case KindDevServer:
		return "dev server"
	case KindPreviewServer:
		return "preview server"
	default:
		return "command"
	}
}

const managers = `(?:npm|pnpm|yarn|bun)`

// Preview patterns are checked first: "vite preview" is also a vite command.
var (
	previewPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b` + managers + `\s+(?:run\s+)?preview\b`),
		regexp.MustCompile(`\bvite\s+preview\b`),
		regexp.MustCompile(`\bastro\s+preview\b`),
		regexp.MustCompile(`\bnext\s+start\b`),
		regexp.MustCompile(`\bnuxi?\s+preview\b`),
	}

	devPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b` + managers + `\s+(?:run\s+)?(?:dev|start|serve)\b`),
		regexp.MustCompile(`(?:^|[\s;&|(])(?:npx\s+|bunx\s+|pnpm\s+exec\s+)?vite(?:\s+(?:dev|serve))?(?:\s+-|\s*$|\s*[;&|)])`),
		regexp.MustCompile(`\b(?:next|nuxi?|astro|remix)\s+dev\b`),
		regexp.MustCompile(`\bng\s+serve\b`),
		regexp.MustCompile(`\breact-scripts\s+start\b`),
		regexp.MustCompile(`\bwebpack(?:-dev-server|\s+serve)\b`),
	}

	browserTestPattern = regexp.MustCompile(`\b(?:playwright|puppeteer|cypress)\b|\b` + managers + `\s+(?:run\s+)?test:e2e\b`)

	// npm run dev, pnpm dev, yarn start, bun run preview
	scriptPattern = regexp.MustCompile(`\b(` + managers + `)\s+(?:run(?:-script)?\s+)?([\w:.-]+)`)
)

// Classify decides how command is run
func Classify(command string) Kind {
	for _, re := range previewPatterns {
		if re.MatchString(command) {
			return KindPreviewServer
		}
	}
	for _, re := range devPatterns {
		if re.MatchString(command) {
			return KindDevServer
		}
	}
	return KindOneShot
}

// IsBrowserTest reports whether command launches a browser-automation test
func IsBrowserTest(command string) bool {
	return browserTestPattern.MatchString(command)
}

// scriptFor returns the package.json script body command runs, or "".
func scriptFor(command, cwd string) string {
	m := scriptPattern.FindStringSubmatch(command)
	if m == nil {
		return ""
	}
	name := m[2]
	if strings.HasPrefix(name, "-") {
		return ""
	}

	manifest, err := provisioner.ReadManifest(cwd)
	if err != nil {
		return ""
	}
	return manifest.Scripts[name]
}
