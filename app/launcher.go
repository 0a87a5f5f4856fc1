package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadscore-backtest/logger"
)

// Process is a running child job.
type Process interface {
	// Done is closed once the process has exited and its output is drained.
	Done() <-chan struct{}
	// ExitErr is the wait error; valid after Done is closed.
	ExitErr() error
	Terminate() error
	Kill() error
}

// Launcher starts child jobs.
type Launcher interface {
	Launch(ctx context.Context, job string, args []string) (Process, error)
}

// ExecLauncher runs jobs as subcommands of a binary, by default the running
// executable. Child output is logged line by line under the job name.
type ExecLauncher struct {
	Binary string
	Env    []string
	Log    *zap.Logger
}

// Launch starts "<binary> <job> <args...>". The child is not bound to ctx;
// stop it with Terminate or Kill.
func (l *ExecLauncher) Launch(ctx context.Context, job string, args []string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	binary := l.Binary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		binary = exe
	}

	cmd := exec.Command(binary, append([]string{job}, args...)...)
	cmd.Env = append(os.Environ(), l.Env...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, err
	}

	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	log := logger.OrNop(l.Log).With(zap.String(logger.FieldJob, job), zap.Int("pid", cmd.Process.Pid))

	var g errgroup.Group
	g.Go(func() error {
		err := cmd.Wait()
		pw.Close()
		return err
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			log.Info(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			log.Warn("output stream failed", zap.Error(err))
		}
		// keep draining so Wait never blocks on a full pipe
		_, _ = io.Copy(io.Discard, pr)
		return nil
	})
	go func() {
		p.err = g.Wait()
		close(p.done)
	}()

	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitErr() error {
	<-p.done
	return p.err
}

func (p *execProcess) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signal(os.Kill)
}

func (p *execProcess) signal(sig os.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
