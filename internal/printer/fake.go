package printer

import (
	"context"
	"os"
	"sync"
)

// SubmitCall records one FakeSpooler submission.
type SubmitCall struct {
	Path    string
	Options []string
	Data    []byte // file contents at submit time
}

// FakeSpooler is a test double spooler.
type FakeSpooler struct {
	mu       sync.Mutex
	jobs     []string
	submits  []SubmitCall
	queryErr error

	// SubmitError, if set, is returned by Submit.
	SubmitError error
	// Hold, if set, keeps every submission as an active job.
	Hold bool
}

func (f *FakeSpooler) ActiveJobs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return append([]string(nil), f.jobs...), nil
}

func (f *FakeSpooler) Submit(ctx context.Context, path string, options []string) error {
	data, _ := os.ReadFile(path)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, SubmitCall{Path: path, Options: options, Data: data})
	if f.SubmitError != nil {
		return f.SubmitError
	}
	if f.Hold {
		f.jobs = append(f.jobs, path)
	}
	return nil
}

// SetJobs replaces the active job list.
func (f *FakeSpooler) SetJobs(jobs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = jobs
}

// SetQueryError makes ActiveJobs fail.
func (f *FakeSpooler) SetQueryError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// Submits returns a copy of the recorded submissions.
func (f *FakeSpooler) Submits() []SubmitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SubmitCall(nil), f.submits...)
}
