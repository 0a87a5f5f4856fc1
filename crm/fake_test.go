package crm

import (
	"context"
	"strings"
	"sync"
)

type fakeCall struct {
	name string
	args []string
}

type fakeResponse struct {
	stdout string
	stderr string
	err    error
}

// fakeRunner replays queued responses and records every invocation.
type fakeRunner struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []fakeCall
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{name: name, args: append([]string(nil), args...)})
	if len(f.responses) == 0 {
		return nil, nil, nil
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func (f *fakeRunner) joinedArgs(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls[i].args, " ")
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
