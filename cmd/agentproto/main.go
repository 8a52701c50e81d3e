// agentproto talks to the agent CLI over its control protocol.
//
// With arguments it runs them as a single prompt and exits after the
// result. Without arguments it reads prompts from stdin, one per line, on a
// single session. In that mode Ctrl-C or /interrupt interrupts the running
// turn, and lines starting with a slash are session commands:
//
//	/interrupt                interrupt the running turn
//	/mode <permission-mode>   change the permission mode
//	/model <name>             change the model
//	/mcp                      show MCP server status
//	/quit                     disconnect and exit
package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/wagiedev/agentproto"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	config         string
	model          string
	permissionMode string
	cliPath        string
	maxTurns       int
	controlTimeout time.Duration
	logLevel       string
	logJSON        bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var f flags

	flagSet := pflag.NewFlagSet("agentproto", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&f.config, "config", "c", "", "settings file (.toml, .yaml or .json)")
	flagSet.StringVarP(&f.model, "model", "m", "", "model name")
	flagSet.StringVar(&f.permissionMode, "permission-mode", "", "default, acceptEdits, plan or bypassPermissions")
	flagSet.StringVar(&f.cliPath, "cli-path", "", "path to the agent CLI (default: search PATH)")
	flagSet.IntVar(&f.maxTurns, "max-turns", 0, "limit agent turns per prompt")
	flagSet.DurationVar(&f.controlTimeout, "control-timeout", 0, "timeout for control requests")
	flagSet.StringVar(&f.logLevel, "log-level", "warn", "debug, info, warn or error")
	flagSet.BoolVar(&f.logJSON, "log-json", false, "write JSON log records")

	if err := flagSet.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	logger, err := newLogger(stderr, f.logLevel, f.logJSON)
	if err != nil {
		return err
	}

	opts, err := buildOptions(flagSet, &f, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if prompt := strings.Join(flagSet.Args(), " "); prompt != "" {
		return runOnce(ctx, prompt, opts, stdout, stderr)
	}

	// Ctrl-C interrupts turns in the REPL instead of exiting.
	stop()

	return repl(context.Background(), stdin, stdout, stderr, logger, opts)
}

func newLogger(w io.Writer, level string, asJSON bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	if asJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})), nil
}

// buildOptions layers the settings file under the flags that were set.
func buildOptions(flagSet *pflag.FlagSet, f *flags, logger *slog.Logger) ([]agentproto.Option, error) {
	opts := []agentproto.Option{agentproto.WithLogger(logger)}

	if f.config != "" {
		fromFile, err := agentproto.SettingsFile(f.config)
		if err != nil {
			return nil, err
		}

		opts = append(opts, fromFile)
	}

	if flagSet.Changed("model") {
		opts = append(opts, agentproto.WithModel(f.model))
	}

	if flagSet.Changed("permission-mode") {
		mode, err := agentproto.ParsePermissionMode(f.permissionMode)
		if err != nil {
			return nil, err
		}

		opts = append(opts, agentproto.WithPermissionMode(mode))
	}

	if flagSet.Changed("cli-path") {
		opts = append(opts, agentproto.WithCliPath(f.cliPath))
	}

	if flagSet.Changed("max-turns") {
		opts = append(opts, agentproto.WithMaxTurns(f.maxTurns))
	}

	if flagSet.Changed("control-timeout") {
		opts = append(opts, agentproto.WithControlTimeout(f.controlTimeout))
	}

	return opts, nil
}

func runOnce(ctx context.Context, prompt string, opts []agentproto.Option, stdout, stderr io.Writer) error {
	for msg, err := range agentproto.Query(ctx, prompt, opts...) {
		if err != nil {
			return err
		}

		printMessage(stdout, stderr, msg)
	}

	return nil
}

func repl(
	ctx context.Context,
	stdin io.Reader,
	stdout, stderr io.Writer,
	logger *slog.Logger,
	opts []agentproto.Option,
) error {
	s, err := agentproto.Connect(ctx, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if err := s.Disconnect(); err != nil {
			logger.Warn("Disconnect failed", "error", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	defer signal.Stop(sigs)

	lines := readLines(stdin)

	for {
		fmt.Fprint(stderr, "> ")

		var line string

		select {
		case l, ok := <-lines:
			if !ok {
				return nil
			}

			line = l
		case <-sigs:
			// Ctrl-C at the prompt exits.
			fmt.Fprintln(stderr)

			return nil
		}

		if strings.HasPrefix(line, "/") {
			quit, err := command(ctx, s, line, stdout)
			if err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
			}

			if quit {
				return nil
			}

			continue
		}

		if err := turn(ctx, s, line, sigs, lines, stdout, stderr); err != nil {
			return err
		}
	}
}

// readLines yields the non-empty trimmed lines of r until end of input.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lines <- line
			}
		}
	}()

	return lines
}

func command(ctx context.Context, s *agentproto.Session, line string, stdout io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/interrupt":
		return false, fmt.Errorf("no turn in progress")

	case "/mode":
		mode, err := agentproto.ParsePermissionMode(arg)
		if err != nil {
			return false, err
		}

		return false, s.SetPermissionMode(ctx, mode)

	case "/model":
		return false, s.SetModel(ctx, arg)

	case "/mcp":
		status, err := s.MCPStatus(ctx)
		if err != nil {
			return false, err
		}

		for _, srv := range status.MCPServers {
			fmt.Fprintf(stdout, "%s\t%s\n", srv.Name, srv.Status)
		}

		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
}

// turn runs one prompt. Ctrl-C or an /interrupt line interrupts it; other
// input is ignored until the turn ends.
func turn(
	ctx context.Context,
	s *agentproto.Session,
	prompt string,
	sigs <-chan os.Signal,
	lines <-chan string,
	stdout, stderr io.Writer,
) error {
	if _, err := s.Query(ctx, prompt, agentproto.TurnOptions{}); err != nil {
		return err
	}

	done := make(chan struct{})
	watcher := make(chan struct{})

	go func() {
		defer close(watcher)

		for {
			select {
			case <-done:
				return
			case <-sigs:
			case line, ok := <-lines:
				if !ok {
					lines = nil

					continue
				}

				if line != "/interrupt" {
					fmt.Fprintln(stderr, "turn in progress, input ignored (use /interrupt)")

					continue
				}
			}

			if err := s.Interrupt(ctx); err != nil {
				fmt.Fprintf(stderr, "interrupt: %v\n", err)
			}
		}
	}()

	defer func() {
		close(done)
		<-watcher
	}()

	for msg, err := range s.TurnOutput(ctx) {
		if err != nil {
			return err
		}

		printMessage(stdout, stderr, msg)
	}

	if !s.State().Connected() {
		return agentproto.ErrConnectionLost
	}

	return nil
}

func printMessage(stdout, stderr io.Writer, msg agentproto.Message) {
	switch m := msg.(type) {
	case *agentproto.AssistantMessage:
		if text := m.Text(); text != "" {
			fmt.Fprintln(stdout, text)
		}

		if m.Error != "" {
			fmt.Fprintf(stderr, "assistant error: %s\n", m.Error)
		}

	case *agentproto.ResultMessage:
		cost := ""
		if m.TotalCostUSD != nil {
			cost = fmt.Sprintf(" cost=$%.4f", *m.TotalCostUSD)
		}

		fmt.Fprintf(stderr, "[%s] turns=%d duration=%dms%s\n", m.Subtype, m.NumTurns, m.DurationMs, cost)
	}
}
