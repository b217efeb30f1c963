package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ashureev/promptboost/internal/feedback"
	"github.com/ashureev/promptboost/internal/surface/clipboard"
	"github.com/ashureev/promptboost/internal/surface/headless"
	"github.com/ashureev/promptboost/internal/surface/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	headlessMode bool
	logFile      string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the clipboard for text ending in the trigger suffix",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&headlessMode, "headless", false, "log results instead of opening the terminal dialog; read verdicts from stdin (a = accept, r = reject, optional session id)")
	watchCmd.Flags().StringVar(&logFile, "log-file", "", "log destination while the dialog is open (default: user cache dir)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if !clipboard.Available() {
		return errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if headlessMode {
		return watchHeadless(ctx)
	}
	return watchTUI(ctx)
}

// watchHeadless logs results and takes verdicts from stdin. The stdin reader
// is not supervised: a blocked read must not keep the command alive.
func watchHeadless(ctx context.Context) error {
	logger := newLogger(os.Stderr)
	surface := headless.New(logger)
	poller := clipboard.NewPoller(clipboard.System{}, nil, cfg.TriggerSuffix, cfg.PollInterval, logger)
	rec := feedback.NewReconciler(newClient(), feedback.Surfaces{poller, surface}, logger)
	poller.SetSubmitter(rec)

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		if err := surface.ReadVerdicts(gctx, os.Stdin, rec); err != nil {
			logger.Warn("Verdict reader stopped", "error", err)
		}
	}()
	g.Go(func() error { return poller.Run(gctx) })
	return g.Wait()
}

// watchTUI runs the poller and the dialog side by side. Quitting the dialog
// stops the poller.
func watchTUI(ctx context.Context) error {
	path := logFile
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("resolve log directory: %w", err)
		}
		path = filepath.Join(dir, "promptboost", "watch.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := tea.LogToFile(path, "promptboost")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	logger := newLogger(f)

	surface := &tui.Surface{}
	poller := clipboard.NewPoller(clipboard.System{}, nil, cfg.TriggerSuffix, cfg.PollInterval, logger)
	rec := feedback.NewReconciler(newClient(), feedback.Surfaces{poller, surface}, logger)
	poller.SetSubmitter(rec)

	g, gctx := errgroup.WithContext(ctx)
	program := tea.NewProgram(tui.NewModel(rec), tea.WithContext(gctx), tea.WithAltScreen())
	surface.Bind(program)

	uiDone := make(chan struct{})
	g.Go(func() error {
		defer close(uiDone)
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		pollCtx, cancel := context.WithCancel(gctx)
		defer cancel()
		go func() {
			select {
			case <-uiDone:
				cancel()
			case <-pollCtx.Done():
			}
		}()
		return poller.Run(pollCtx)
	})
	return g.Wait()
}
