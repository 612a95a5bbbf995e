package ports

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Canonical ports. Every dev server is steered to DevPort, every preview
// server to PreviewPort. AppPort belongs to this application's own UI server
// and is never reaped.
const (
	DevPort     = 3000
	PreviewPort = 4173
	AppPort     = 5173
)

// PortInfo contains information about a port extracted from a command
type PortInfo struct {
	Port     int
	Found    bool
	Pattern  string // The pattern that matched (e.g., "--port 3000", ":3000")
	Original string // The original matched string
}

// Explicit port patterns in run commands
var portPatterns = []*regexp.Regexp{
	// --port 3000, --port=3000, -p 3000, -p=3000
	regexp.MustCompile(`(?:--port[=\s]|--PORT[=\s]|-p[=\s])(\d+)`),
	// PORT=3000
	regexp.MustCompile(`(?:^|\s)(?:PORT=)(\d+)`),
	// localhost:3000, 127.0.0.1:3000, 0.0.0.0:3000
	regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0):(\d+)`),
}

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// ExtractPort returns the port a command pins explicitly, if any
func ExtractPort(runCommand string) PortInfo {
	info := PortInfo{Found: false}

	for _, pattern := range portPatterns {
		matches := pattern.FindStringSubmatch(runCommand)
		if len(matches) >= 2 {
			port, err := strconv.Atoi(matches[1])
			if err == nil && port > 0 && port < 65536 {
				info.Port = port
				info.Found = true
				info.Pattern = pattern.String()
				info.Original = strings.TrimSpace(matches[0])
				return info
			}
		}
	}

	return info
}

// ShiftPort rewrites the explicit port in a command from oldPort to newPort
func ShiftPort(runCommand string, oldPort, newPort int) string {
	oldPortStr := strconv.Itoa(oldPort)
	newPortStr := strconv.Itoa(newPort)

	replacements := []*regexp.Regexp{
		regexp.MustCompile(`(--port[=\s])` + oldPortStr + `\b`),
		regexp.MustCompile(`(--PORT[=\s])` + oldPortStr + `\b`),
		regexp.MustCompile(`(-p[=\s])` + oldPortStr + `\b`),
		regexp.MustCompile(`(PORT=)` + oldPortStr + `\b`),
		regexp.MustCompile(`((?:localhost|127\.0\.0\.1|0\.0\.0\.0):)` + oldPortStr + `\b`),
	}

	for _, re := range replacements {
		if re.MatchString(runCommand) {
			return re.ReplaceAllString(runCommand, "${1}"+newPortStr)
		}
	}
	return runCommand
}

// serverTool describes the port behaviour of a dev/preview server CLI
type serverTool struct {
	name string
	re   *regexp.Regexp
	port int    // the tool's own default
	flag string // flag that sets the port, empty when only PORT is honored
}

// Ordered: "vite preview" must win over plain "vite"
var serverTools = []serverTool{
	{"vite-preview", regexp.MustCompile(`\bvite\s+preview\b`), 4173, "--port"},
	{"astro", regexp.MustCompile(`\bastro\s+(?:dev|preview|start)\b`), 4321, "--port"},
	{"vite", regexp.MustCompile(`\bvite\b`), 5173, "--port"},
	{"next", regexp.MustCompile(`\bnext\s+(?:dev|start)\b`), 3000, "-p"},
	{"react-scripts", regexp.MustCompile(`\breact-scripts\s+start\b`), 3000, ""},
	{"nuxt", regexp.MustCompile(`\bnuxi?\s+(?:dev|preview|start)\b`), 3000, "--port"},
	{"angular", regexp.MustCompile(`\bng\s+serve\b`), 4200, "--port"},
	{"webpack", regexp.MustCompile(`\bwebpack(?:-dev-server|\s+serve)\b`), 8080, "--port"},
	{"parcel", regexp.MustCompile(`\bparcel\b`), 1234, "--port"},
}

// npm needs "--" before arguments meant for the script
var npmScriptPattern = regexp.MustCompile(`^\s*npm\s+(?:run(?:-script)?\s+\S+|start)\b`)

// A package-manager script invocation and the arguments it passes through
var scriptCallPattern = regexp.MustCompile(`^\s*(?:npm|pnpm|yarn|bun)\s+(?:run(?:-script)?\s+)?[\w:.-]+(.*)$`)

// ForcePort rewrites a dev/preview command so the server listens on port.
// script is the package.json script body the command runs, or "" when the
// command invokes the tool directly. Explicit ports are shifted. A script
// that pins another port is run directly with its port shifted, since a
// second port flag would not reliably override the first. Otherwise a port
// flag is appended when the tool's default differs from port. Tools that
// only honor the PORT variable are left to the environment.
func ForcePort(command string, port int, script string) string {
	if info := ExtractPort(command); info.Found {
		if info.Port == port {
			return command
		}
		return ShiftPort(command, info.Port, port)
	}

	target := command
	if script != "" {
		target = script
		if info := ExtractPort(script); info.Found {
			if info.Port == port {
				return command
			}
			return appendArgs(ShiftPort(script, info.Port, port), passThroughArgs(command))
		}
	}

	for _, tool := range serverTools {
		if !tool.re.MatchString(target) {
			continue
		}
		if tool.port == port || tool.flag == "" {
			return command
		}
		return appendArgs(command, tool.flag+" "+strconv.Itoa(port))
	}
	return command
}

// passThroughArgs returns the arguments a script invocation forwards to the
// script, without npm's "--" separator
func passThroughArgs(command string) string {
	m := scriptCallPattern.FindStringSubmatch(command)
	if m == nil {
		return ""
	}
	args := strings.TrimSpace(m[1])
	if args == "--" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(args, "-- "))
}

func appendArgs(command, args string) string {
	command = strings.TrimRight(command, " ")
	if args == "" {
		return command
	}
	if npmScriptPattern.MatchString(command) && !strings.Contains(command, " -- ") {
		return command + " -- " + args
	}
	return command + " " + args
}
