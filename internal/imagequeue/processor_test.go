package imagequeue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/menu"
)

type fakeQueue struct {
	due         []menu.ImageQueueItem
	dueErr      error
	cleanups    int
	downloading []int64
	completed   []int64
	skipped     []int64
	failed      []int64
}

func (f *fakeQueue) Due(context.Context, int) ([]menu.ImageQueueItem, error) {
	return f.due, f.dueErr
}
func (f *fakeQueue) MarkDownloading(_ context.Context, id int64) error {
	f.downloading = append(f.downloading, id)
	return nil
}
func (f *fakeQueue) MarkCompleted(_ context.Context, id int64) error {
	f.completed = append(f.completed, id)
	return nil
}
func (f *fakeQueue) MarkSkipped(_ context.Context, id int64) error {
	f.skipped = append(f.skipped, id)
	return nil
}
func (f *fakeQueue) MarkFailed(_ context.Context, id int64) error {
	f.failed = append(f.failed, id)
	return nil
}
func (f *fakeQueue) Cleanup(context.Context) (int64, error) {
	f.cleanups++
	return 0, nil
}

type fakeFetcher struct {
	derived  string
	onDisk   bool
	filename string
	err      map[string]error
	fetched  []string
}

func (f *fakeFetcher) DerivedFilename(string) string { return f.derived }
func (f *fakeFetcher) Exists(string) bool            { return f.onDisk }
func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	if err := f.err[url]; err != nil {
		return "", err
	}
	return f.filename, nil
}

type fakeDishStore struct {
	images map[int64]string
	inUse  bool
}

func (f *fakeDishStore) SetDishImage(_ context.Context, dishID int64, filename string) error {
	if f.images == nil {
		f.images = map[int64]string{}
	}
	f.images[dishID] = filename
	return nil
}
func (f *fakeDishStore) ImageInUse(context.Context, string) (bool, error) {
	return f.inUse, nil
}

type noopPacer struct{ pauses int }

func (p *noopPacer) Pause(context.Context, time.Duration) { p.pauses++ }

func item(id, dishID int64, url string) menu.ImageQueueItem {
	return menu.ImageQueueItem{ID: id, DishID: dishID, ImageURL: url, Status: menu.StatusPending}
}

func TestProcessDownloadsDueItems(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{due: []menu.ImageQueueItem{
		item(1, 7, "https://x/a.jpg"),
		item(2, 8, "https://x/b.jpg"),
	}}
	fetch := &fakeFetcher{filename: "deadbeef.jpg"}
	dishes := &fakeDishStore{}
	pacer := &noopPacer{}

	p := NewProcessor(queue, fetch, dishes, pacer, time.Second, zap.NewNop())
	out, err := p.Process(context.Background(), 10, false)
	require.NoError(t, err)
	require.Equal(t, menu.ProcessOutcome{Downloaded: 2, Total: 2}, out)

	require.Equal(t, []int64{1, 2}, queue.downloading)
	require.Equal(t, []int64{1, 2}, queue.completed)
	require.Equal(t, "deadbeef.jpg", dishes.images[7])
	require.Equal(t, "deadbeef.jpg", dishes.images[8])
	// Pacing applies between items, not before the first.
	require.Equal(t, 1, pacer.pauses)
	require.Zero(t, queue.cleanups)
}

func TestProcessRunsCleanupWhenAsked(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	p := NewProcessor(queue, &fakeFetcher{}, &fakeDishStore{}, &noopPacer{}, 0, zap.NewNop())

	_, err := p.Process(context.Background(), 10, true)
	require.NoError(t, err)
	require.Equal(t, 1, queue.cleanups)
}

func TestProcessSkipsWhenFileAlreadyOnDisk(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{due: []menu.ImageQueueItem{item(1, 7, "https://x/a.jpg")}}
	fetch := &fakeFetcher{derived: "deadbeef.jpg", onDisk: true}
	dishes := &fakeDishStore{}

	p := NewProcessor(queue, fetch, dishes, &noopPacer{}, 0, zap.NewNop())
	out, err := p.Process(context.Background(), 10, false)
	require.NoError(t, err)
	require.Equal(t, menu.ProcessOutcome{Skipped: 1, Total: 1}, out)

	require.Empty(t, fetch.fetched, "no network call for a materialized file")
	require.Equal(t, []int64{1}, queue.skipped)
	require.Equal(t, "deadbeef.jpg", dishes.images[7], "skip still wires the dish to the file")
}

func TestProcessSkipsWhenFilenameAlreadyReferenced(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{due: []menu.ImageQueueItem{item(1, 7, "https://x/a.jpg")}}
	fetch := &fakeFetcher{derived: "deadbeef.jpg"}
	dishes := &fakeDishStore{inUse: true}

	p := NewProcessor(queue, fetch, dishes, &noopPacer{}, 0, zap.NewNop())
	out, err := p.Process(context.Background(), 10, false)
	require.NoError(t, err)
	require.Equal(t, menu.ProcessOutcome{Skipped: 1, Total: 1}, out)
	require.Empty(t, fetch.fetched)
}

func TestProcessIsolatesPerItemFailures(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{due: []menu.ImageQueueItem{
		item(1, 7, "https://x/broken.jpg"),
		item(2, 8, "https://x/ok.jpg"),
	}}
	fetch := &fakeFetcher{
		filename: "cafe.jpg",
		err:      map[string]error{"https://x/broken.jpg": errors.New("timeout")},
	}
	dishes := &fakeDishStore{}

	p := NewProcessor(queue, fetch, dishes, &noopPacer{}, 0, zap.NewNop())
	out, err := p.Process(context.Background(), 10, false)
	require.NoError(t, err)
	require.Equal(t, menu.ProcessOutcome{Downloaded: 1, Failed: 1, Total: 2}, out)

	require.Equal(t, []int64{1}, queue.failed)
	require.Equal(t, []int64{2}, queue.completed)
	require.Equal(t, "cafe.jpg", dishes.images[8])
}

func TestProcessStopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{due: []menu.ImageQueueItem{item(1, 7, "https://x/a.jpg")}}
	p := NewProcessor(queue, &fakeFetcher{}, &fakeDishStore{}, &noopPacer{}, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Process(ctx, 10, false)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, menu.ProcessOutcome{Total: 1}, out)
	require.Empty(t, queue.downloading)
}
