//go:build linux

package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

/**
 * A running child process together with its output readers.
 */
type Execution struct {
	Child   *exec.Cmd
	readers sync.WaitGroup
}

/**
 * A child that exited with a non-zero code during Stop.
 */
type ExitError struct {
	Name   string
	Status string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command in %s failed with status: %s", e.Name, e.Status)
}

/**
 * Spawns every configured command in ascending index order. Once spawned
 * the children run concurrently; a spawn failure aborts the remaining
 * launches and the caller hands over to teardown.
 * @param cfg the per-host command map
 * @param running the map the supervisor records executions in
 * @param errs the error bus read errors are forwarded on
 * @return error if any, nil otherwise.
 */
func Launch(cfg map[int]CommandConfig, running map[int]*Execution, errs chan<- error) error {
	for _, index := range sortedKeys(cfg) {
		execution, err := launchOne(index, cfg[index], errs)
		if err != nil {
			return err
		}
		running[index] = execution
	}
	return nil
}

/**
 * Stops every running child: kill all first, then wait on each, then
 * join the reader goroutines. Clearing is best-effort; failures are
 * logged and the remaining children are still kill-attempted.
 * @param running the execution map; emptied on return.
 */
func Stop(running map[int]*Execution) {
	for index, execution := range running {
		if err := execution.Child.Process.Kill(); err != nil {
			slog.Error("failed to kill command", "index", index, "err", err)
		}
	}
	for index, execution := range running {
		if err := wait(cfgName(execution), execution.Child); err != nil {
			slog.Error("failed to stop command", "index", index, "err", err)
		}
		execution.readers.Wait()
	}
	clear(running)
}

func cfgName(execution *Execution) string {
	if len(execution.Child.Args) >= 4 {
		// argv is "ip netns exec <name> ...".
		return execution.Child.Args[3]
	}
	return ""
}

func wait(name string, child *exec.Cmd) error {
	err := child.Wait()
	state := child.ProcessState
	switch {
	case err == nil:
		return nil
	case state != nil && state.ExitCode() == -1:
		// Terminated by a signal, which is how Stop ends children.
		slog.Debug("command was terminated by signal", "namespace", name, "status", state)
		return nil
	case state != nil:
		return &ExitError{Name: name, Status: state.String()}
	default:
		return fmt.Errorf("failed to wait for command: %w", err)
	}
}

func launchOne(index int, cfg CommandConfig, errs chan<- error) (*Execution, error) {
	argv, err := cfg.Invocation(index)
	if err != nil {
		return nil, err
	}
	slog.Debug("running command", "redirect", cfg.Redirect, "cmd", argv)

	child := exec.Command(argv[0], argv[1:]...)
	child.Dir = cfg.WorkDir
	child.Env = os.Environ()
	for key, value := range cfg.Env {
		child.Env = append(child.Env, fmt.Sprintf("%s=%s", key, value))
	}

	execution := &Execution{Child: child}
	if cfg.Redirect {
		stdout, err := openOutput(cfg.WorkDir, cfg.Name, "stdout")
		if err != nil {
			return nil, err
		}
		stderr, err := openOutput(cfg.WorkDir, cfg.Name, "stderr")
		if err != nil {
			stdout.Close()
			return nil, err
		}
		child.Stdout = stdout
		child.Stderr = stderr
		if err := child.Start(); err != nil {
			stdout.Close()
			stderr.Close()
			return nil, fmt.Errorf("failed to spawn command: %w", err)
		}
		return execution, nil
	}

	stdout, err := child.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to take stdout from child process: %w", err)
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to take stderr from child process: %w", err)
	}
	if err := child.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn command: %w", err)
	}
	execution.readers.Add(2)
	go readLines(&execution.readers, cfg.Name, stdout, errs)
	go readLines(&execution.readers, cfg.Name, stderr, errs)
	return execution, nil
}

/**
 * Forwards the child's output to the log line by line, tagged with the
 * namespace. A read error before EOF goes to the error bus without
 * terminating sibling readers.
 */
func readLines(readers *sync.WaitGroup, name string, pipe io.Reader, errs chan<- error) {
	defer readers.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		slog.Info(fmt.Sprintf("[%s]: %s", name, scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		select {
		case errs <- fmt.Errorf("reading output of %s: %w", name, err):
		default:
		}
	}
}

func openOutput(dir, name, stream string) (*os.File, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s.%s", name, stream))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}
