package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepreview/internal/config"
	"github.com/conneroisu/livepreview/internal/enhance"
	"github.com/conneroisu/livepreview/internal/preview"
	"github.com/conneroisu/livepreview/internal/render"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url|path]",
	Short: "Print a document once",
	Long: `Load a document from a preview server, print it and exit. No update channel is
opened.

Examples:
  livepreview fetch http://localhost:8080/notes/intro.md
  livepreview fetch /notes/intro.md --format html > intro.html`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("format", "", "Output format (markdown, html); defaults to output.format")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		cfg.Output.Format = f
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	target, err := cfg.Target(arg)
	if err != nil {
		return err
	}
	format, err := render.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.HTTP.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := preview.FetchPage(ctx, &http.Client{Timeout: cfg.HTTP.Timeout}, target)
	if err != nil {
		return err
	}
	p.SetEnhancer(&enhance.CodeBlocks{DefaultLanguage: cfg.Output.DefaultLanguage})
	p.EnhanceContents()

	render.NewTerminal(cmd.OutOrStdout(), format).Render(ctx, p)

	return nil
}
