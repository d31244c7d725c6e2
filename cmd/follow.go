package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepreview/internal/channel"
	"github.com/conneroisu/livepreview/internal/config"
	"github.com/conneroisu/livepreview/internal/enhance"
	"github.com/conneroisu/livepreview/internal/logging"
	"github.com/conneroisu/livepreview/internal/navigation"
	"github.com/conneroisu/livepreview/internal/page"
	"github.com/conneroisu/livepreview/internal/preview"
	"github.com/conneroisu/livepreview/internal/render"
)

var followCmd = &cobra.Command{
	Use:     "follow [url|path]",
	Aliases: []string{"f"},
	Short:   "Show a document and keep it updated",
	Long: `Open a document on a preview server, print it, and print it again every time
the server pushes a change. Commands are read from standard input:

  go <path>   open another document
  back        go back in history
  forward     go forward in history
  links       list the documents in the sidebar
  reload      reload the current document
  status      show connection and navigation state
  quit        exit

Examples:
  livepreview follow http://localhost:8080/notes/intro.md
  livepreview follow /notes/intro.md --format html
  livepreview follow /notes/intro.md --no-reconnect`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)

	followCmd.Flags().String("format", "markdown", "Output format (markdown, html)")
	followCmd.Flags().Bool("clear", false, "Clear the screen before every redraw")
	followCmd.Flags().Bool("no-reconnect", false, "Stop instead of reconnecting when the connection drops")
	followCmd.Flags().Bool("rebind-sidebar", false, "Navigate in-app to links added by sidebar updates")

	bindFlags(followCmd.Flags(), map[string]string{
		"format":         "output.format",
		"clear":          "output.clear_screen",
		"rebind-sidebar": "navigation.rebind_sidebar",
	})
}

func runFollow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if noReconnect, _ := cmd.Flags().GetBool("no-reconnect"); noReconnect {
		cfg.Reconnect.Enabled = false
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
	view := render.NewTerminal(cmd.OutOrStdout(), format)
	view.ClearScreen = cfg.Output.ClearScreen

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)
	watchConfig(ctx, logger)

	client, err := preview.Open(ctx, target, previewOptions(cfg, view), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines, done)

	s := &session{client: client, out: cmd.OutOrStdout(), logger: logger}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			fmt.Fprintln(cmd.ErrOrStderr(), "update channel closed")
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin ended; keep following until interrupted.
				lines = nil
				continue
			}
			if quit := s.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// previewOptions maps the configuration onto the client options.
func previewOptions(cfg *config.Config, view preview.View) preview.Options {
	opts := preview.DefaultOptions()

	opts.Channel = channel.Options{
		Path:           cfg.Channel.Path,
		Heartbeat:      cfg.Channel.Heartbeat,
		Reconnect:      cfg.Reconnect.Enabled,
		InitialBackoff: cfg.Reconnect.InitialBackoff,
		MaxBackoff:     cfg.Reconnect.MaxBackoff,
		DialTimeout:    cfg.Channel.DialTimeout,
		ReadLimit:      cfg.Channel.ReadLimit,
	}
	opts.HTTPClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	opts.Navigation = navigation.Options{
		ContentsPrefix: cfg.Navigation.ContentsPrefix,
		HTTPClient:     opts.HTTPClient,
	}
	opts.RebindSidebar = cfg.Navigation.RebindSidebar
	opts.Enhancer = &enhance.CodeBlocks{DefaultLanguage: cfg.Output.DefaultLanguage}
	opts.View = view

	return opts
}

// readLines sends every line of r on out until r ends or done is closed.
func readLines(r io.Reader, out chan<- string, done <-chan struct{}) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-done:
			return
		}
	}
}

// session executes the interactive commands of follow.
type session struct {
	client *preview.Client
	out    io.Writer
	logger logging.Logger
}

// exec runs one command line and reports whether the user asked to quit.
// Failures are printed; the page is left as it was.
func (s *session) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	nav := s.client.Navigator()

	var err error
	switch fields[0] {
	case "quit", "exit", "q":
		return true
	case "go", "open":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: go <path>")
			return false
		}
		err = nav.Activate(ctx, strings.Join(fields[1:], " "))
	case "back", "b":
		err = nav.Back(ctx)
	case "forward", "f":
		err = nav.Forward(ctx)
	case "reload", "r":
		var location string
		if err = s.client.Update(ctx, func(p *page.Page) error {
			location = p.Location()
			return nil
		}); err == nil {
			err = nav.Reload(ctx, location)
		}
	case "links", "ls":
		err = s.client.Update(ctx, func(p *page.Page) error {
			for _, href := range p.SidebarLinks() {
				fmt.Fprintln(s.out, href)
			}
			return nil
		})
	case "status":
		var snap preview.Snapshot
		if snap, err = s.client.Snapshot(ctx); err == nil {
			fmt.Fprintf(s.out, "location: %s\nchannel: %s\nnavigation: %s\n",
				snap.Location, s.client.ChannelState(), nav.State())
		}
	default:
		fmt.Fprintf(s.out, "unknown command %q\n", fields[0])
		return false
	}

	if err != nil {
		s.logger.Debug(ctx, "Command failed", "command", fields[0], "error", err.Error())
		fmt.Fprintf(s.out, "%s: %v\n", fields[0], err)
	}

	return false
}
