package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type fakeConfirmTokenRepo struct {
	cutoff      time.Time
	resetCutoff time.Time
	err         error
	resetErr    error
}

func (f *fakeConfirmTokenRepo) DeleteConfirmTokensBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func (f *fakeConfirmTokenRepo) DeleteResetTokensBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.resetCutoff = cutoff
	return 1, f.resetErr
}

type fakeImportTaskRepo struct {
	staleBefore    time.Time
	finishedBefore time.Time
	resetErr       error
	deleteCalls    int
}

func (f *fakeImportTaskRepo) ResetStale(_ context.Context, startedBefore time.Time) (int64, error) {
	f.staleBefore = startedBefore
	return 1, f.resetErr
}

func (f *fakeImportTaskRepo) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.finishedBefore = cutoff
	f.deleteCalls++
	return 2, nil
}

func TestConfirmTokenCleanupJobUsesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeConfirmTokenRepo{}
	jobIface, err := NewConfirmTokenCleanupJob(ConfirmTokenCleanupJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
		TTL:        24 * time.Hour,
		ResetTTL:   2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewConfirmTokenCleanupJob: %v", err)
	}
	job := jobIface.(*confirmTokenCleanupJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if want := now.Add(-2 * time.Hour); !repo.resetCutoff.Equal(want) {
		t.Fatalf("expected reset cutoff %s, got %s", want, repo.resetCutoff)
	}

	repo.err = errors.New("boom")
	repo.resetCutoff = time.Time{}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if repo.resetCutoff.IsZero() {
		t.Fatal("reset tokens skipped after confirm token failure")
	}

	repo.err = nil
	repo.resetErr = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected reset cleanup error")
	}
}

func TestImportReaperJobResetsAndTrims(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeImportTaskRepo{}
	jobIface, err := NewImportReaperJob(ImportReaperJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewImportReaperJob: %v", err)
	}
	job := jobIface.(*importReaperJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultImportStaleAfter); !repo.staleBefore.Equal(want) {
		t.Fatalf("expected stale cutoff %s, got %s", want, repo.staleBefore)
	}
	if want := now.Add(-defaultImportHistory); !repo.finishedBefore.Equal(want) {
		t.Fatalf("expected history cutoff %s, got %s", want, repo.finishedBefore)
	}
}

func TestImportReaperJobStopsOnResetError(t *testing.T) {
	repo := &fakeImportTaskRepo{resetErr: errors.New("boom")}
	job, err := NewImportReaperJob(ImportReaperJobParams{Logger: logger.Nop(), Repository: repo})
	if err != nil {
		t.Fatalf("NewImportReaperJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if repo.deleteCalls != 0 {
		t.Fatalf("history trimmed after reset failure")
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	if _, err := NewConfirmTokenCleanupJob(ConfirmTokenCleanupJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewImportReaperJob(ImportReaperJobParams{Repository: &fakeImportTaskRepo{}}); err == nil {
		t.Fatal("expected error without logger")
	}
}
