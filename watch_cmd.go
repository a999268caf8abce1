package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/notify"
	"github.com/dgnsrekt/readaloud/internal/session"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/dgnsrekt/readaloud/internal/textsrc"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const defaultWatchDebounce = 300 * time.Millisecond

var (
	watchEngine   string
	watchDebounce time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch FILE",
		Short: "Read a file aloud every time it changes",
		Long: paragraph(fmt.Sprintf("\n%s a file and read it aloud whenever it is saved. A change stops whatever is still being read.",
			keyword("Watch"))),
		Example: paragraph("readaloud watch notes.md"),
		Args:    cobra.ExactArgs(1),
		RunE:    runWatch,
	}
)

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("unable to resolve path: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier := notify.New(os.Stderr)
	a, err := newApp(ctx, appOptions{metrics: metricsAddress() != "", notifier: notifier})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	startMetrics(ctx, a.metrics)

	var sessions readers
	defer func() {
		sessions.Close(a.session.Stop)
	}()

	read := func() {
		if ctx.Err() != nil {
			return
		}
		text, err := textsrc.FromFile(path)
		if err != nil {
			notifier.Error("%v", err)
			return
		}
		if textsrc.IsMarkdownFile(path) {
			text = textsrc.StripMarkdown(text, textsrc.MarkdownOptions{})
		}

		notifier.Info("Reading %s", filepath.Base(path))
		ticket := a.session.Ticket()
		sessions.Go(func() {
			_, err := a.session.HandleTicket(ctx, ticket, synth.ReadRequest{Text: text, Engine: synth.Engine(watchEngine)})
			switch {
			case err == nil, errors.Is(err, session.ErrPreempted), errors.Is(err, context.Canceled):
			case errors.Is(err, session.ErrNothingToRead):
				log.Debug("File is empty", "path", path)
			default:
				notifier.Error("%v", err)
			}
		})
	}

	read()
	return watchFile(ctx, path, watchDebounce, read)
}

// readers runs read sessions in the background. Once closed it refuses new
// ones, so Close can wait for every session that was started.
type readers struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Go runs fn in a new goroutine unless the readers are closed.
func (r *readers) Go(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

// Close refuses new sessions, calls stop and waits for running ones.
func (r *readers) Close(stop func()) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	r.wg.Wait()
}

// watchFile calls onChange after path has been written or recreated and
// stayed quiet for debounce. It blocks until ctx ends.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors often replace the file, so watch its directory.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Debug("Watching", "dir", dir, "file", filepath.Base(path))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "err", err)
		}
	}
}

func init() {
	watchCmd.Flags().StringVarP(&watchEngine, "engine", "e", "", "synthesis engine: chirp3 or gemini")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", defaultWatchDebounce, "wait this long after a change before reading")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}
