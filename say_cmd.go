package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/notify"
	"github.com/dgnsrekt/readaloud/internal/session"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/dgnsrekt/readaloud/internal/textsrc"
	"github.com/spf13/cobra"
)

var (
	sayRequest   synth.ReadRequest
	sayEngine    string
	sayFile      string
	sayClipboard bool
	sayMarkdown  bool
	sayQuiet     bool

	sayCmd = &cobra.Command{
		Use:   "say [TEXT]",
		Short: "Read text aloud",
		Long: paragraph(fmt.Sprintf("\n%s text given as arguments, read from a file, the clipboard or standard input.",
			keyword("Read aloud"))),
		Example: paragraph(`readaloud say "Hello there"
readaloud say -f notes.md
pbpaste | readaloud say --engine gemini --prompt "Read this cheerfully"`),
		RunE: say,
	}
)

func say(cmd *cobra.Command, args []string) error {
	text, markdown, err := sayText(args)
	if err != nil {
		return err
	}
	if markdown {
		text = textsrc.StripMarkdown(text, textsrc.MarkdownOptions{})
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier := notify.New(os.Stderr)
	notifier.SetQuiet(sayQuiet)

	a, err := newApp(ctx, appOptions{notifier: notifier})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	req := sayRequest
	req.Text = text
	req.Engine = synth.Engine(sayEngine)

	notifier.Info("Reading %q", notify.Preview(text, notify.DefaultPreviewWidth))
	result, err := a.session.Handle(ctx, req)
	switch {
	case errors.Is(err, context.Canceled):
		a.session.Stop()
		return nil
	case err != nil:
		notifier.Error("%v", err)
		if result.Chunks == 0 {
			return err
		}
	}
	if len(result.Skipped) > 0 {
		log.Warn("Some chunks could not be decoded", "skipped", len(result.Skipped))
	}

	if err := a.pipeline.Wait(ctx); err != nil {
		a.session.Stop()
		return nil
	}
	if result.Success {
		notifier.Success("Done")
	}
	return err
}

// sayText picks the input source. Markdown is stripped for markdown files
// or when --markdown is set.
func sayText(args []string) (string, bool, error) {
	sources := 0
	for _, set := range []bool{len(args) > 0, sayFile != "", sayClipboard} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return "", false, errors.New("use only one of TEXT, --file or --clipboard")
	}

	switch {
	case len(args) > 0:
		return strings.Join(args, " "), sayMarkdown, nil
	case sayFile == "-":
		text, err := textsrc.FromReader(os.Stdin)
		return text, sayMarkdown, err
	case sayFile != "":
		text, err := textsrc.FromFile(sayFile)
		return text, sayMarkdown || textsrc.IsMarkdownFile(sayFile), err
	case sayClipboard:
		text, err := textsrc.FromClipboard()
		return text, sayMarkdown, err
	}

	yes, err := stdinIsPipe()
	if err != nil {
		return "", false, err
	}
	if !yes {
		return "", false, session.ErrNothingToRead
	}
	text, err := textsrc.FromReader(os.Stdin)
	return text, sayMarkdown, err
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func init() {
	f := sayCmd.Flags()
	f.StringVarP(&sayEngine, "engine", "e", "", "synthesis engine: chirp3 or gemini")
	f.StringVar(&sayRequest.Voice, "voice", "", "voice name")
	f.StringVar(&sayRequest.LanguageCode, "language", "", "BCP-47 language code")
	f.StringVar(&sayRequest.Model, "model", "", "Gemini-TTS model")
	f.StringVar(&sayRequest.Prompt, "prompt", "", "Gemini-TTS style prompt")
	f.Float64Var(&sayRequest.SpeakingRate, "rate", 0, "speaking rate (Chirp 3 HD, 0.25 to 2.0)")
	f.IntVar(&sayRequest.SampleRateHertz, "sample-rate", 0, "requested synthesis sample rate (Chirp 3 HD)")
	f.StringVarP(&sayFile, "file", "f", "", "read text from a file, - for standard input")
	f.BoolVarP(&sayClipboard, "clipboard", "c", false, "read text from the clipboard")
	f.BoolVarP(&sayMarkdown, "markdown", "m", false, "strip markdown formatting before reading")
	f.BoolVarP(&sayQuiet, "quiet", "q", false, "don't print status messages")
}
