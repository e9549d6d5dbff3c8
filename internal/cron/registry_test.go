package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	jobA := &stubJob{name: "outbox_retention"}
	jobB := &stubJob{name: "import_reaper"}
	registry, err := NewRegistry(jobA, nil, jobB)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	require.Same(t, jobA, jobs[0])
	require.Same(t, jobB, jobs[1])
	require.Equal(t, []string{"outbox_retention", "import_reaper"}, registry.Names())

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0], "caller mutated registry state")
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"})
	require.ErrorContains(t, err, "registered twice")

	var registry Registry
	require.Error(t, registry.Register(&stubJob{name: "  "}))
	require.NoError(t, registry.Register(&stubJob{name: "b"}))
	require.Equal(t, []string{"b"}, registry.Names())
}
