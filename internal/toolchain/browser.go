package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Browser binaries looked up on PATH, in order
var browserNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"msedge",
}

// wellKnownBrowsers lists install locations that are usually not on PATH
func wellKnownBrowsers() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		var paths []string
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)", "LocalAppData"} {
			base := os.Getenv(env)
			if base == "" {
				continue
			}
			paths = append(paths,
				filepath.Join(base, "Google", "Chrome", "Application", "chrome.exe"),
				filepath.Join(base, "Microsoft", "Edge", "Application", "msedge.exe"),
			)
		}
		return paths
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	}
}

// FindBrowser locates a Chrome-compatible browser. override (from config)
// wins, then CHROME_PATH, then PATH lookups, then well-known install paths.
// It returns "" when nothing is found.
func FindBrowser(override string) string {
	for _, p := range []string{override, os.Getenv("CHROME_PATH")} {
		if p != "" && fileExists(p) {
			return p
		}
	}

	for _, name := range browserNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	for _, p := range wellKnownBrowsers() {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// BrowserEnv returns the headless-browser variables injected into every
// spawned command. When a browser is already installed, test runners are
// told to use it instead of downloading their own.
func BrowserEnv(browser string) map[string]string {
	env := map[string]string{}

	if browser != "" {
		env["CHROME_PATH"] = browser
		env["PUPPETEER_EXECUTABLE_PATH"] = browser
		env["PUPPETEER_SKIP_DOWNLOAD"] = "1"
		env["PLAYWRIGHT_SKIP_BROWSER_DOWNLOAD"] = "1"
	}

	if os.Getenv("PLAYWRIGHT_BROWSERS_PATH") == "" {
		if dir := playwrightCache(); dir != "" {
			env["PLAYWRIGHT_BROWSERS_PATH"] = dir
		}
	}
	return env
}

// playwrightCache returns Playwright's default browser cache when it exists
func playwrightCache() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(base, "ms-playwright")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
