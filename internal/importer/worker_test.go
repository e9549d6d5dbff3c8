package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
)

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

type memoryLocks struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryLocks() *memoryLocks {
	return &memoryLocks{values: map[string]string{}}
}

func (m *memoryLocks) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLocks) ReleaseOwned(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLocks) LockKey(scope, id string) string {
	return "proc:lock:" + scope + ":" + id
}

type invalidations struct {
	calls int
}

func (i *invalidations) Invalidate(context.Context, ...string) (int, error) {
	i.calls++
	return 0, nil
}

type workerFixture struct {
	worker  *Worker
	conn    *gorm.DB
	fetcher *stubFetcher
	locks   *memoryLocks
	cache   *invalidations
	owner   *models.User
}

func newWorkerFixture(t *testing.T, maxAttempts int) *workerFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	im, err := NewImporter(ImporterParams{DB: client, Outbox: emitter})
	require.NoError(t, err)

	f := &workerFixture{
		conn:    conn,
		fetcher: &stubFetcher{body: acmeFeed},
		locks:   newMemoryLocks(),
		cache:   &invalidations{},
		owner:   seedPartner(t, conn, "acme@example.com"),
	}
	f.worker, err = NewWorker(WorkerParams{
		DB:       client,
		Tasks:    NewTaskRepository(conn),
		Fetcher:  f.fetcher,
		Importer: im,
		Locks:    f.locks,
		Outbox:   emitter,
		Cache:    f.cache,
		Config:   config.ImportConfig{Workers: 1, MaxAttempts: maxAttempts, LockTTL: time.Minute},
	})
	require.NoError(t, err)
	return f
}

func (f *workerFixture) enqueue(t *testing.T) *models.ImportTask {
	t.Helper()
	task := &models.ImportTask{UserID: f.owner.ID, URL: "https://feeds.example.com/acme.yaml"}
	require.NoError(t, NewTaskRepository(f.conn).Create(context.Background(), task))
	return task
}

func (f *workerFixture) reload(t *testing.T, id uuid.UUID) models.ImportTask {
	t.Helper()
	var task models.ImportTask
	require.NoError(t, f.conn.First(&task, "id = ?", id.String()).Error)
	return task
}

func TestWorkerImportsQueuedTask(t *testing.T) {
	f := newWorkerFixture(t, 3)
	task := f.enqueue(t)
	ctx := context.Background()

	claimed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	got := f.reload(t, task.ID)
	require.Equal(t, enums.ImportTaskSucceeded, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.Equal(t, 1, got.CategoriesCreated)
	require.Equal(t, 1, got.ProductsCreated)
	require.NotNil(t, got.ShopID)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, 1, f.cache.calls)
	require.Empty(t, f.locks.values, "lock must be released")

	claimed, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestWorkerDefersWhenPartnerIsBusy(t *testing.T) {
	f := newWorkerFixture(t, 3)
	task := f.enqueue(t)
	key := f.locks.LockKey(lockScope, fmt.Sprint(f.owner.ID))
	f.locks.values[key] = "other-worker"

	claimed, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)
	require.Zero(t, f.fetcher.calls)

	got := f.reload(t, task.ID)
	require.Equal(t, enums.ImportTaskPending, got.Status)
	require.Zero(t, got.Attempts)
	require.True(t, got.AvailableAt.After(time.Now()))
	require.Equal(t, "other-worker", f.locks.values[key])
}

func TestWorkerRetriesFetchErrorsThenFails(t *testing.T) {
	f := newWorkerFixture(t, 2)
	f.fetcher.err = pkgerrors.Wrap(pkgerrors.CodeUpstreamFetch, errors.New("connection refused"), "fetch feed")
	task := f.enqueue(t)
	ctx := context.Background()

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	got := f.reload(t, task.ID)
	require.Equal(t, enums.ImportTaskPending, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)

	f.worker.now = func() time.Time { return time.Now().Add(time.Hour) }
	claimed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	got = f.reload(t, task.ID)
	require.Equal(t, enums.ImportTaskFailed, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, 2, f.fetcher.calls)

	var event models.OutboxEvent
	require.NoError(t, f.conn.First(&event, "event_type = ?", enums.EventImportFailed).Error)
	require.Equal(t, task.ID.String(), event.AggregateID)
}

func TestWorkerFailsFatalFeedWithoutRetry(t *testing.T) {
	f := newWorkerFixture(t, 5)
	f.fetcher.body = "shop: [broken"
	task := f.enqueue(t)

	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	got := f.reload(t, task.ID)
	require.Equal(t, enums.ImportTaskFailed, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.Contains(t, *got.LastError, string(pkgerrors.CodeImportFatal))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventImportFailed, events[0].EventType)
	require.Contains(t, string(events[0].Payload), `"email":"acme@example.com"`)
	require.Zero(t, f.cache.calls)
}

func TestRetryBackoffCaps(t *testing.T) {
	require.Equal(t, retryBaseDelay, retryBackoff(0))
	require.Equal(t, 2*retryBaseDelay, retryBackoff(2))
	require.Equal(t, retryMaxDelay, retryBackoff(20))
}
