package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one periodic maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs keyed by name and runs them in registration order.
// Names feed metric labels, so they must be unique and non-empty.
type Registry struct {
	order []string
	jobs  map[string]Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{jobs: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends job. Nil jobs are ignored so optional jobs can be passed
// straight through from the wiring code.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if r.jobs == nil {
		r.jobs = map[string]Job{}
	}
	if _, dup := r.jobs[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.jobs[name] = job
	r.order = append(r.order, name)
	return nil
}

// Jobs returns a fresh slice of jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.jobs[name])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
