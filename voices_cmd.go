package main

import (
	"fmt"
	"io"

	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/spf13/cobra"
)

var (
	voicesEngine string

	voicesCmd = &cobra.Command{
		Use:     "voices",
		Short:   "List the available voices",
		Example: paragraph("readaloud voices\nreadaloud voices --engine gemini"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engines := []synth.Engine{synth.EngineChirp3, synth.EngineGemini}
			if voicesEngine != "" {
				engine, err := synth.ParseEngine(voicesEngine, "")
				if err != nil {
					return err
				}
				engines = []synth.Engine{engine}
			}
			for i, engine := range engines {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printVoices(cmd.OutOrStdout(), engine)
			}
			return nil
		},
	}
)

func printVoices(w io.Writer, engine synth.Engine) {
	fmt.Fprintln(w, keyword(string(engine)))
	for _, v := range synth.Voices(engine) {
		fmt.Fprintf(w, "  %-28s %s\n", v.Name, subtle(v.Gender))
	}
	if engine == synth.EngineGemini {
		fmt.Fprintln(w, keyword("models"))
		for _, m := range synth.GeminiModels {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
}

func init() {
	voicesCmd.Flags().StringVarP(&voicesEngine, "engine", "e", "", "only list voices of this engine")
}
