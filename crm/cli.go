package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external command and captures its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Error names in sf CLI output that indicate a retryable condition.
var transientMarkers = []string{
	"REQUEST_LIMIT_EXCEEDED",
	"SERVER_UNAVAILABLE",
	"UNABLE_TO_LOCK_ROW",
	"ECONNRESET",
	"ETIMEDOUT",
	"ENOTFOUND",
	"socket hang up",
}

// Error names that mean the org session cannot be used.
var authMarkers = []string{
	"INVALID_SESSION_ID",
	"NoOrgFound",
	"NamedOrgNotFound",
	"NoDefaultEnvError",
	"invalid_grant",
	"expired access/refresh token",
}

// cliEnvelope is the --json output of sf commands.
type cliEnvelope struct {
	Status  int             `json:"status"`
	Name    string          `json:"name"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type queryResult struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl"`
	Records        []json.RawMessage `json:"records"`
}

// CLITransport queries through the sf command line tool.
type CLITransport struct {
	runner    Runner
	binary    string
	targetOrg string
	timeout   time.Duration
}

// NewCLITransport creates a transport that shells out to binary.
func NewCLITransport(binary, targetOrg string, timeout time.Duration, runner Runner) *CLITransport {
	if binary == "" {
		binary = "sf"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CLITransport{runner: runner, binary: binary, targetOrg: targetOrg, timeout: timeout}
}

// Name implements Transport.
func (t *CLITransport) Name() string {
	return "cli"
}

// Query implements Transport.
func (t *CLITransport) Query(ctx context.Context, soql string) ([]json.RawMessage, error) {
	env, err := t.run(ctx, "data", "query", "--query", soql)
	if err != nil {
		return nil, err
	}
	var res queryResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return res.Records, nil
}

// Ping implements Transport.
func (t *CLITransport) Ping(ctx context.Context) error {
	_, err := t.run(ctx, "org", "display")
	return err
}

func (t *CLITransport) run(ctx context.Context, args ...string) (*cliEnvelope, error) {
	args = append(args, "--json")
	if t.targetOrg != "" {
		args = append(args, "--target-org", t.targetOrg)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	stdout, stderr, runErr := t.runner.Run(ctx, t.binary, args...)
	if errors.Is(runErr, exec.ErrNotFound) {
		return nil, fmt.Errorf("%s not installed: %w", t.binary, runErr)
	}
	if ctx.Err() != nil {
		return nil, transient(fmt.Errorf("%s %s: %w", t.binary, args[0], ctx.Err()))
	}

	var env cliEnvelope
	if err := json.Unmarshal(stdout, &env); err != nil {
		if runErr != nil {
			return nil, classifyCLIFailure(fmt.Sprintf("%v: %s", runErr, strings.TrimSpace(string(stderr))))
		}
		return nil, fmt.Errorf("decode %s output: %w", t.binary, err)
	}

	if runErr != nil || env.Status != 0 {
		return nil, classifyCLIFailure(fmt.Sprintf("%s: %s %s", env.Name, env.Message, strings.TrimSpace(string(stderr))))
	}
	return &env, nil
}

func classifyCLIFailure(detail string) error {
	for _, m := range authMarkers {
		if strings.Contains(detail, m) {
			return fmt.Errorf("%w: %s", ErrUnauthenticated, detail)
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(detail, m) {
			return transient(errors.New(detail))
		}
	}
	return fmt.Errorf("sf command failed: %s", detail)
}
