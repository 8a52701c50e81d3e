package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/wagiedev/agentproto/internal/cli"
	"github.com/wagiedev/agentproto/internal/config"
	"github.com/wagiedev/agentproto/internal/errors"
	"github.com/wagiedev/agentproto/internal/transport"
)

// maxStderrBufferSize caps the stderr kept for ProcessError. Lines past the
// cap still reach the Stderr callback.
const maxStderrBufferSize = 10 * 1024 * 1024 // 10MB

// CLITransport is a Transport backed by an agent CLI subprocess.
type CLITransport struct {
	log        *slog.Logger
	opts       *config.Options
	discoverer cli.Discoverer

	mu      sync.Mutex
	cmd     *exec.Cmd
	stream  *transport.Stream
	closing bool

	stderrDone chan struct{}
	stderr     stderrBuffer

	waitOnce sync.Once
	waitErr  error
}

// Compile-time verification that CLITransport implements Transport.
var _ transport.Transport = (*CLITransport)(nil)

// NewCLITransport creates a transport for opts. The binary is located and
// the process spawned in Start.
func NewCLITransport(log *slog.Logger, opts *config.Options) *CLITransport {
	return &CLITransport{
		log:  log.With("component", "cli_transport"),
		opts: opts,
		discoverer: cli.NewDiscoverer(log, cli.Config{
			CliPath: opts.CliPath,
		}),
	}
}

// NewFactory returns a Factory that spawns a fresh process per connection.
func NewFactory(log *slog.Logger, opts *config.Options) transport.Factory {
	return func() (transport.Transport, error) {
		return NewCLITransport(log, opts), nil
	}
}

// Start locates the CLI and spawns it.
//
// The process is not tied to ctx: it lives until Close or until it exits.
// Returns CLINotFoundError if the binary cannot be located.
func (t *CLITransport) Start(ctx context.Context) error {
	path, err := t.discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover CLI: %w", err)
	}

	invocation, err := cli.NewCommand(path, t.opts)
	if err != nil {
		return fmt.Errorf("build command: %w", err)
	}

	//nolint:gosec // G204: the CLI path and flags are the caller's configuration
	cmd := exec.Command(invocation.Path, invocation.Args...)
	cmd.Dir = invocation.Dir
	cmd.Env = invocation.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.TransportError{Op: "start", Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.TransportError{Op: "start", Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.TransportError{Op: "start", Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start CLI process", "error", err)

		return &errors.TransportError{Op: "start", Err: err}
	}

	var streamOpts []transport.StreamOption
	if t.opts.MaxFrameSize > 0 {
		streamOpts = append(streamOpts, transport.WithMaxFrameSize(t.opts.MaxFrameSize))
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stream = transport.NewStream(t.log, stdout, stdin, streamOpts...)
	t.stderrDone = make(chan struct{})
	t.mu.Unlock()

	go t.drainStderr(stderr)

	t.log.Info("CLI process started", "pid", cmd.Process.Pid, "cli_path", path)

	return t.stream.Start(ctx)
}

// drainStderr buffers stderr for error reporting and feeds the Stderr
// callback. It returns when the process closes its stderr.
func (t *CLITransport) drainStderr(r io.Reader) {
	defer close(t.stderrDone)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		t.stderr.add(line)

		if t.opts.Stderr != nil {
			t.opts.Stderr(line)
		}
	}

	if err := scanner.Err(); err != nil {
		t.log.Debug("Stderr read ended", "error", err)
	}
}

// ReadFrames reads frames from the process stdout. After stdout ends the
// process is reaped; a failed exit that Close did not cause is reported as
// a ProcessError.
func (t *CLITransport) ReadFrames(ctx context.Context) (<-chan *transport.Frame, <-chan error) {
	frames := make(chan *transport.Frame)
	errs := make(chan error, 2)

	s := t.current()
	if s == nil {
		errs <- errors.ErrTransportNotConnected

		close(errs)
		close(frames)

		return frames, errs
	}

	in, inErrs := s.ReadFrames(ctx)

	go func() {
		defer close(frames)
		defer close(errs)

		for f := range in {
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}

		for err := range inErrs {
			errs <- err
		}

		if err := t.wait(); err != nil {
			errs <- err
		}
	}()

	return frames, errs
}

// wait reaps the process once stderr is drained.
func (t *CLITransport) wait() error {
	t.waitOnce.Do(func() {
		<-t.stderrDone

		err := t.cmd.Wait()

		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()

		switch {
		case err == nil:
			t.log.Info("CLI process exited")
		case closing:
			t.log.Debug("CLI process terminated during shutdown")
		default:
			exitCode := -1

			var exitErr *exec.ExitError
			if stderrors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			}

			stderr := cleanStderr(t.stderr.String())
			t.log.Error("CLI process exited with error", "exit_code", exitCode, "stderr", stderr)

			t.waitErr = &errors.ProcessError{ExitCode: exitCode, Stderr: stderr, Err: err}
		}
	})

	return t.waitErr
}

// SendMessage writes one frame to the process stdin.
func (t *CLITransport) SendMessage(ctx context.Context, data []byte) error {
	s := t.current()
	if s == nil {
		return errors.ErrTransportNotConnected
	}

	return s.SendMessage(ctx, data)
}

// EndInput closes stdin so the process can finish its work and exit.
func (t *CLITransport) EndInput() error {
	s := t.current()
	if s == nil {
		return nil
	}

	return s.EndInput()
}

// IsReady reports whether the process is running with stdin open.
func (t *CLITransport) IsReady() bool {
	s := t.current()

	return s != nil && s.IsReady()
}

// Close closes the pipes and kills the process. Safe to call repeatedly.
func (t *CLITransport) Close() error {
	t.mu.Lock()
	t.closing = true
	cmd, s := t.cmd, t.stream
	t.mu.Unlock()

	if s == nil {
		return nil
	}

	_ = s.Close()

	t.log.Debug("Killing CLI process", "pid", cmd.Process.Pid)

	if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill CLI process (pid %d): %w", cmd.Process.Pid, err)
	}

	return nil
}

func (t *CLITransport) current() *transport.Stream {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stream
}

// stderrBuffer keeps the first maxStderrBufferSize bytes of stderr.
type stderrBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *stderrBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buf.Len() >= maxStderrBufferSize {
		return
	}

	if b.buf.Len() > 0 {
		b.buf.WriteByte('\n')
	}

	b.buf.WriteString(line)
}

func (b *stderrBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// cleanStderr drops the minified source context some runtimes print next
// to a stack trace ("1234 | <code>").
func cleanStderr(stderr string) string {
	var cleaned []string

	for line := range strings.SplitSeq(stderr, "\n") {
		if isSourceContextLine(strings.TrimSpace(line)) {
			continue
		}

		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

func isSourceContextLine(line string) bool {
	prefix, _, found := strings.Cut(line, "|")
	prefix = strings.TrimSpace(prefix)

	if !found || prefix == "" {
		return false
	}

	for _, ch := range prefix {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return true
}
