// Package command implements the Command Pipeline: spawning an
// ordered chain of child processes with stdout piped to the next stage's
// stdin, exposing the head stdin and tail stdout, tracking PIDs, and
// guaranteeing every stage is reaped on teardown.
package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/util"
)

// DefaultTerminationGrace is how long Close waits after sending a graceful
// termination signal before force-killing a stage that hasn't exited.
const DefaultTerminationGrace = 2 * time.Second

// stage is one spawned process in a Pipeline.
type stage struct {
	commandText string
	cmd         *exec.Cmd
	stdinCloser io.Closer // head stage's stdin pipe; nil on every other stage
	stdoutPipe  io.Closer // tail stage's stdout pipe; nil on every other stage
}

// Pipeline is a chain of N spawned processes wired stage[i].stdout →
// stage[i+1].stdin via OS pipes. Tag identifies the pipeline in logs.
type Pipeline struct {
	Tag ulid.ULID

	mu           sync.Mutex
	stages       []*stage
	endpointsTaken bool
	headStdin    io.WriteCloser
	tailStdout   io.ReadCloser
	logger       *slog.Logger
	grace        time.Duration
	closed       bool
}

// Spawn parses each command string with POSIX shell-word rules and starts
// the resulting chain. On any failure, already-started stages are killed
// before the error is returned. An empty commands slice is valid: the
// pipeline has no stages and head/tail are the same pipe.
func Spawn(ctx context.Context, commands []string, tag ulid.ULID, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		Tag:    tag,
		logger: logger.With("pipeline.tag", tag.String()),
		grace:  DefaultTerminationGrace,
	}

	if len(commands) == 0 {
		r, w := io.Pipe()
		p.headStdin = w
		p.tailStdout = r
		return p, nil
	}

	argvs := make([][]string, len(commands))
	for i, c := range commands {
		argv, err := SplitShellWords(c)
		if err != nil {
			return nil, apperr.NewCommandError(c, apperr.UnableToParse, err)
		}
		if len(argv) == 0 {
			return nil, apperr.NewCommandError(c, apperr.UnableToParse, fmt.Errorf("empty command"))
		}
		argvs[i] = argv
	}

	var prevStdout io.ReadCloser
	for i, argv := range argvs {
		binary, err := util.FindBinary(argv[0], "")
		if err != nil {
			p.killStarted()
			return nil, apperr.NewCommandError(commands[i], apperr.UnableToSpawn, err)
		}
		cmd := exec.CommandContext(ctx, binary, argv[1:]...)

		st := &stage{commandText: commands[i], cmd: cmd}

		if i == 0 {
			stdin, err := cmd.StdinPipe()
			if err != nil {
				p.killStarted()
				return nil, apperr.NewCommandError(commands[i], apperr.PipelineBroken, err)
			}
			p.headStdin = stdin
			st.stdinCloser = stdin
		} else {
			cmd.Stdin = prevStdout
		}

		if i == len(argvs)-1 {
			stdout, err := cmd.StdoutPipe()
			if err != nil {
				p.killStarted()
				return nil, apperr.NewCommandError(commands[i], apperr.PipelineBroken, err)
			}
			p.tailStdout = stdout
			st.stdoutPipe = stdout
		} else {
			stdout, err := cmd.StdoutPipe()
			if err != nil {
				p.killStarted()
				return nil, apperr.NewCommandError(commands[i], apperr.PipelineBroken, err)
			}
			prevStdout = stdout
		}

		stderr, err := cmd.StderrPipe()
		if err != nil {
			p.killStarted()
			return nil, apperr.NewCommandError(commands[i], apperr.PipelineBroken, err)
		}

		if err := cmd.Start(); err != nil {
			p.killStarted()
			return nil, apperr.NewCommandError(commands[i], apperr.UnableToSpawn, err)
		}
		go forwardStderr(p.logger, commands[i], cmd.Process.Pid, stderr)

		p.stages = append(p.stages, st)
	}

	return p, nil
}

func forwardStderr(logger *slog.Logger, commandText string, pid int, r io.ReadCloser) {
	defer r.Close()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logger.Info("stage stderr", "command", commandText, "pid", pid, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// killStarted force-kills any stage already started, used to unwind a
// partially-constructed pipeline when a later stage fails to spawn.
func (p *Pipeline) killStarted() {
	for _, st := range p.stages {
		if st.cmd.Process != nil {
			_ = st.cmd.Process.Kill()
			_ = st.cmd.Wait()
		}
	}
}

// TakeEndpoints returns the pipeline's head stdin and tail stdout exactly
// once. Subsequent calls fail.
func (p *Pipeline) TakeEndpoints() (io.WriteCloser, io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpointsTaken {
		return nil, nil, fmt.Errorf("pipeline endpoints already taken")
	}
	p.endpointsTaken = true
	return p.headStdin, p.tailStdout, nil
}

// PIDs returns the OS process ids of all currently running stages. A stage
// whose process has already been reaped is omitted.
func (p *Pipeline) PIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pids := make([]int, 0, len(p.stages))
	for _, st := range p.stages {
		if st.cmd.Process == nil {
			continue
		}
		if alive, _ := processAlive(st.cmd.Process.Pid); alive {
			pids = append(pids, st.cmd.Process.Pid)
		}
	}
	return pids
}

// processAlive confirms liveness via gopsutil rather than relying solely
// on cmd.ProcessState, since exec.Cmd only updates that after Wait returns.
func processAlive(pid int) (bool, error) {
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Close sends a graceful termination signal to every stage, waits up to the
// configured grace period, then force-kills any stage still running. Pipes
// are closed before waiting on each stage so a downstream stage that has
// already exited cannot cause Close to hang on a blocked write.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stages := p.stages
	headStdin := p.headStdin
	tailStdout := p.tailStdout
	p.mu.Unlock()

	if headStdin != nil {
		_ = headStdin.Close()
	}

	for _, st := range stages {
		if st.cmd.Process != nil {
			_ = terminateGracefully(st.cmd.Process)
		}
	}

	done := make(chan struct{})
	go func() {
		for _, st := range stages {
			if st.stdoutPipe != nil {
				_ = st.stdoutPipe.Close()
			}
			if st.stdinCloser != nil {
				_ = st.stdinCloser.Close()
			}
			_ = st.cmd.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.grace):
		for _, st := range stages {
			if st.cmd.Process != nil {
				_ = st.cmd.Process.Kill()
			}
		}
		<-done
	}

	if tailStdout != nil {
		_ = tailStdout.Close()
	}

	return nil
}
