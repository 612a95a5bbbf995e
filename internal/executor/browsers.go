package executor

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Command-line markers of browsers launched by automation frameworks. A
// user's everyday browser carries none of them.
var automationMarkers = []string{"ms-playwright", "puppeteer", "--enable-automation", "cypress"}

var browserNames = []string{"chrome", "chromium", "headless_shell", "msedge", "firefox"}

// cleanupAutomationBrowsers kills headless browsers left behind by a
// browser-automation test run. Failures are logged and ignored.
func (e *Executor) cleanupAutomationBrowsers(ctx context.Context) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		e.logger.Debug("list processes for browser cleanup", "error", err)
		return
	}

	killed := 0
	for _, p := range procs {
		if int(p.Pid) == selfPID {
			continue
		}
		// our own validation browser
		if ppid, err := p.PpidWithContext(ctx); err == nil && int(ppid) == selfPID {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || !isBrowserName(name) {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || !isAutomationBrowser(cmdline) {
			continue
		}
		if err := e.ctrl.ForceKill(int(p.Pid)); err != nil {
			e.logger.Warn("failed to kill automation browser", "pid", p.Pid, "error", err)
			continue
		}
		killed++
	}

	if killed > 0 {
		e.logger.Info("cleaned up automation browsers", "count", killed)
	}
}

func isBrowserName(name string) bool {
	name = strings.ToLower(name)
	for _, b := range browserNames {
		if strings.Contains(name, b) {
			return true
		}
	}
	return false
}

func isAutomationBrowser(cmdline string) bool {
	if !strings.Contains(cmdline, "--headless") && !strings.Contains(cmdline, "--remote-debugging") {
		return false
	}
	for _, m := range automationMarkers {
		if strings.Contains(cmdline, m) {
			return true
		}
	}
	return false
}
