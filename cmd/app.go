package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/harshul/octo-runner/internal/config"
	"github.com/harshul/octo-runner/internal/executor"
	"github.com/harshul/octo-runner/internal/fixer"
	"github.com/harshul/octo-runner/internal/ports"
	"github.com/harshul/octo-runner/internal/registry"
	"github.com/harshul/octo-runner/internal/toolchain"
	"github.com/harshul/octo-runner/internal/tools"
	"github.com/harshul/octo-runner/internal/ui"
	"github.com/harshul/octo-runner/internal/validator"
)

// app is the wired component graph
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	reaper    *ports.Reaper
	exec      *executor.Executor
	validator *validator.Validator
	fixer     *fixer.Fixer
	toolkit   *tools.Toolkit
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	ctrl := ports.NewProcessControl()
	reaper := ports.NewReaper(ctrl, logger, ports.WithProtected(cfg.AppPort()), ports.WithSettle(cfg.ReapSettle()))
	reg := registry.New(reaper, logger)

	browser := ""
	if cfg.BrowserEnabled() {
		browser = toolchain.FindBrowser(cfg.BrowserPath())
	}
	logger.Debug("browser resolved", "path", browser)

	browserEnv := toolchain.BrowserEnv(browser)

	exec := executor.New(reg, reaper, logger, executor.Options{
		DevPort:        cfg.DevPort(),
		PreviewPort:    cfg.PreviewPort(),
		Timeout:        cfg.ExecTimeout(),
		MaxOutput:      cfg.MaxOutput(),
		Settle:         cfg.Settle(),
		AppRoot:        cfg.AppRoot(),
		Dotenv:         cfg.Dotenv(),
		RestartOnCrash: cfg.RestartOnCrash(),
		LogDir:         cfg.ServerLogDir(),
		BrowserEnv:     browserEnv,
	})

	var runner validator.BrowserRunner
	if browser != "" {
		runner = validator.NewChromeRunner(browser, cfg.ProbeDelay())
	}
	val := validator.New(runner, logger)

	inst := fixer.NewManagerInstaller()
	inst.Timeout = cfg.InstallTimeout()
	inst.BrowserEnv = browserEnv
	fx := fixer.New(inst, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		reaper:    reaper,
		exec:      exec,
		validator: val,
		fixer:     fx,
		toolkit:   tools.New(exec, val, fx, ui.OpenBrowser, logger, cfg.ValidateTimeout()),
	}
}

// shutdown kills every tracked server. It ignores ctx cancellation so it
// still works after an interrupt.
func (a *app) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.exec.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
}
