package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/host"
	"github.com/dgnsrekt/readaloud/internal/metrics"
	"github.com/dgnsrekt/readaloud/internal/notify"
	"github.com/spf13/cobra"
)

var (
	metricsAddr string

	hostCmd = &cobra.Command{
		Use:   "host [ORIGIN | MANIFEST EXTENSION-ID]",
		Short: "Run as a browser native-messaging host",
		Long: paragraph(fmt.Sprintf("\nRun as a %s host. Requests are read from standard input and replies written to standard output, so logs always go to a file.",
			keyword("native-messaging"))),
		Args:   cobra.ArbitraryArgs,
		Hidden: false,
		RunE:   runHost,
	}
)

// isBrowserLaunch reports whether args are what a browser passes when it
// starts a native-messaging host directly. Chrome passes the extension
// origin; Firefox passes the path of the host manifest and the extension id.
func isBrowserLaunch(args []string) bool {
	switch {
	case len(args) == 0:
		return false
	case strings.HasPrefix(args[0], "chrome-extension://"):
		return true
	case len(args) >= 2 && strings.EqualFold(filepath.Ext(args[0]), ".json") && args[1] != "":
		return true
	}
	return false
}

// routeArgs sends a direct browser launch to the host command.
func routeArgs(args []string) []string {
	if isBrowserLaunch(args) {
		return append([]string{"host"}, args...)
	}
	return args
}

// metricsAddress returns --metrics-addr, falling back to READALOUD_METRICS_ADDR.
func metricsAddress() string {
	if metricsAddr != "" {
		return metricsAddr
	}
	return environment.MetricsAddr
}

func runHost(cmd *cobra.Command, args []string) error {
	if environment.LogFile == "" {
		path, err := defaultLogFilePath()
		if err != nil {
			return err
		}
		closer, err := logToFile(path)
		if err != nil {
			return err
		}
		defer closer() //nolint:errcheck
	}
	if len(args) > 0 {
		log.Info("Started by browser", "args", args)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier := notify.New(os.Stderr)
	notifier.SetQuiet(true)

	a, err := newApp(ctx, appOptions{metrics: metricsAddress() != "", notifier: notifier})
	if err != nil {
		log.Error("Unable to start", "err", err)
		return err
	}
	defer a.Close() //nolint:errcheck

	startMetrics(ctx, a.metrics)

	if err := host.New(os.Stdin, os.Stdout, a.session).Serve(ctx); err != nil {
		log.Error("Host stopped", "err", err)
		return err
	}

	// The browser closed the port; let queued audio finish.
	if err := a.pipeline.Wait(ctx); err != nil {
		a.session.Stop()
	}
	log.Debug("Host finished")
	return nil
}

// startMetrics serves m on --metrics-addr until ctx ends.
func startMetrics(ctx context.Context, m *metrics.Metrics) {
	addr := metricsAddress()
	if addr == "" || m == nil {
		return
	}
	srv := metrics.NewServer(addr, m)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Error("Metrics server failed", "err", err)
		}
	}()
}

func init() {
	hostCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}
