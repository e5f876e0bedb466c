package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/dubstudio/internal/types"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dubstudio <video>",
		Short:        "Transcribe, translate and dub a short local video",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("out", "", "Output directory (default \"out\")")

	f := root.Flags()
	f.String("lang", "", "Target language code (default \"en\")")
	f.String("voice", "", "Synthesis voice (default \"Zephyr\")")
	f.Bool("no-dub", false, "Skip speech synthesis and export the video muted")
	f.Bool("simulate-sync", false, "Run the lip-sync simulation step before muxing")
	f.String("format", "", "Output container: mp4, mkv or webm")
	f.Duration("max-duration", 0, "Reject sources longer than this")
	f.String("transcriber", "", "Transcriber backend: gemini or local")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	_ = f.MarkHidden("metrics-addr")

	root.AddCommand(newVoicesCmd(), newPreviewCmd())
	return root
}

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List synthesis voices and target languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Voices:")
			for _, v := range types.Voices {
				fmt.Fprintf(w, "  %-8s %s\n", v.ID, v.Name)
			}
			fmt.Fprintln(w, "Languages:")
			for _, l := range types.Languages {
				fmt.Fprintf(w, "  %-8s %s\n", l.Code, l.Name)
			}
			return nil
		},
	}
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <voice>",
		Short: "Synthesize a short sample sentence with a voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return preview(cmd, args[0])
		},
	}
}
