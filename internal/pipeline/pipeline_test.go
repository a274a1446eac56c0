package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlwatch/internal/digest"
	"urlwatch/internal/fetch"
	"urlwatch/internal/notifier"
	"urlwatch/internal/storage"
	"urlwatch/internal/storage/storagetest"
	logx "urlwatch/pkg/logx"
)

// stubFetcher serves canned results per locator.
type stubFetcher struct {
	mu      sync.Mutex
	results map[string]fetch.Result
	calls   []string
}

func newStubFetcher() *stubFetcher { return &stubFetcher{results: map[string]fetch.Result{}} }

func (f *stubFetcher) ok(locator, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[locator] = fetch.Result{StatusCode: http.StatusOK, Content: []byte(body)}
}

func (f *stubFetcher) status(locator string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[locator] = fetch.Result{StatusCode: code}
}

func (f *stubFetcher) fail(locator string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[locator] = fetch.Result{Err: err}
}

func (f *stubFetcher) Fetch(_ context.Context, locator string) fetch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, locator)
	return f.results[locator]
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notifier.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

const (
	urlA = "https://example.com/a"
	urlB = "https://example.com/b"
)

func newPipeline(st storage.Store, f fetch.Fetcher, n notifier.Notifier, workers int, urls ...string) *Pipeline {
	cfg := Config{Resources: Specs(urls), Workers: workers, Location: "/srv/state"}
	return New(cfg, st, f, n, logx.Nop(), nil)
}

func TestFirstRunBothChangedOneAlert(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	f := newStubFetcher()
	f.ok(urlA, "alpha")
	f.ok(urlB, "beta")
	n := &recordingNotifier{}

	res, err := newPipeline(st, f, n, 1, urlA, urlB).Run(context.Background(), "run-a")
	require.NoError(t, err)

	assert.True(t, res.AnyChanged)
	assert.True(t, res.Notified)
	assert.Equal(t, Specs([]string{urlA, urlB}), res.Changed)
	require.Equal(t, 1, n.count())
	assert.Equal(t, "run-a", n.msgs[0].RunID)
	assert.Equal(t, "/srv/state", n.msgs[0].Location)
	assert.Len(t, n.msgs[0].Changed, 2)

	for key, body := range map[string]string{"url_1": "alpha", "url_2": "beta"} {
		d, ok := st.Digest(key)
		require.True(t, ok)
		assert.Equal(t, digest.Sum([]byte(body)), d)
		c, ok := st.Content(key)
		require.True(t, ok)
		assert.Equal(t, body, string(c))
	}
}

func TestIdenticalContentDoesNotAlert(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	st.Seed(storage.Key(1), digest.Sum([]byte("same")), []byte("same"))
	f := newStubFetcher()
	f.ok(urlA, "same")
	n := &recordingNotifier{}

	res, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "run-b")
	require.NoError(t, err)
	assert.False(t, res.AnyChanged)
	assert.False(t, res.Notified)
	assert.Zero(t, n.count())

	// content re-written even though unchanged
	assert.Contains(t, st.Calls(), "write_content:url_1")
	c, _ := st.Content(storage.Key(1))
	assert.Equal(t, "same", string(c))
}

func TestServerErrorResetsDigestKeepsContent(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	st.Seed(storage.Key(1), "d-prev", []byte("last good"))
	f := newStubFetcher()
	f.status(urlA, http.StatusInternalServerError)
	n := &recordingNotifier{}

	res, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "run-c")
	require.NoError(t, err, "soft failure is not a run failure")
	assert.False(t, res.AnyChanged)
	assert.Zero(t, n.count())
	assert.Equal(t, Specs([]string{urlA}), res.SoftFailures)

	d, ok := st.Digest(storage.Key(1))
	require.True(t, ok)
	assert.Empty(t, d)
	c, _ := st.Content(storage.Key(1))
	assert.Equal(t, "last good", string(c))
	assert.NotContains(t, st.Calls(), "write_content:url_1")
}

func TestSoftFailureIsolation(t *testing.T) {
	t.Parallel()
	for _, workers := range []int{1, 4} {
		workers := workers
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			st := storagetest.NewMemory()
			st.Seed(storage.Key(2), digest.Sum([]byte("b")), []byte("b"))
			f := newStubFetcher()
			f.fail(urlA, errors.New("dial tcp: connection refused"))
			f.ok(urlB, "b")
			n := &recordingNotifier{}

			res, err := newPipeline(st, f, n, workers, urlA, urlB).Run(context.Background(), "iso")
			require.NoError(t, err)
			assert.False(t, res.AnyChanged, "a soft failure alone must not alert")
			assert.Zero(t, n.count())
			assert.ElementsMatch(t, []string{urlA, urlB}, f.calls)

			d, _ := st.Digest(storage.Key(2))
			assert.Equal(t, digest.Sum([]byte("b")), d)
		})
	}
}

func TestSoftFailureForcesChangeOnNextSuccess(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	f := newStubFetcher()
	n := &recordingNotifier{}

	f.ok(urlA, "stable")
	_, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 1, n.count())

	f.status(urlA, http.StatusServiceUnavailable)
	res, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "r2")
	require.NoError(t, err)
	assert.False(t, res.AnyChanged)

	// Next run's baseline reads as empty regardless of the earlier digest.
	d, ok, err := st.ReadDigest(context.Background(), storage.Key(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, d)

	f.ok(urlA, "stable")
	res, err = newPipeline(st, f, n, 1, urlA).Run(context.Background(), "r3")
	require.NoError(t, err)
	assert.True(t, res.AnyChanged, "same content after an outage is reported again")
	assert.Equal(t, 2, n.count())
}

func TestRepeatedRunsAreIdempotent(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	f := newStubFetcher()
	f.ok(urlA, "v1")
	f.ok(urlB, "v2")
	n := &recordingNotifier{}

	_, err := newPipeline(st, f, n, 2, urlA, urlB).Run(context.Background(), "r1")
	require.NoError(t, err)
	d1, _ := st.Digest("url_1")
	c1, _ := st.Content("url_1")

	res, err := newPipeline(st, f, n, 2, urlA, urlB).Run(context.Background(), "r2")
	require.NoError(t, err)
	assert.False(t, res.AnyChanged)
	assert.Equal(t, 1, n.count())

	d2, _ := st.Digest("url_1")
	c2, _ := st.Content("url_1")
	assert.Equal(t, d1, d2)
	assert.Equal(t, c1, c2)
}

func TestChangedContentAlertsOnce(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	st.Seed(storage.Key(1), digest.Sum([]byte("old a")), []byte("old a"))
	st.Seed(storage.Key(2), digest.Sum([]byte("old b")), []byte("old b"))
	f := newStubFetcher()
	f.ok(urlA, "new a")
	f.ok(urlB, "new b")
	n := &recordingNotifier{}

	res, err := newPipeline(st, f, n, 1, urlA, urlB).Run(context.Background(), "r")
	require.NoError(t, err)
	assert.True(t, res.AnyChanged)
	assert.Equal(t, 1, n.count(), "one alert per run no matter how many changed")
	assert.Contains(t, n.msgs[0].Text, "URL_2 "+urlB)
}

func TestEmptyBodyOnBlankBaselineIsUnchanged(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	f := newStubFetcher()
	f.ok(urlA, "")
	n := &recordingNotifier{}

	res, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "r")
	require.NoError(t, err)
	assert.False(t, res.AnyChanged)
	assert.Zero(t, n.count())
	d, _ := st.Digest("url_1")
	assert.Equal(t, digest.Sum(nil), d)
}

func TestLoadPrecedesFetchAndWritesPlaceholder(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	st.Seed(storage.Key(2), "known", nil)
	f := newStubFetcher()
	f.status(urlA, http.StatusNotFound)
	f.status(urlB, http.StatusNotFound)

	_, err := newPipeline(st, f, nil, 1, urlA, urlB).Run(context.Background(), "r")
	require.NoError(t, err)

	calls := st.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{"read_digest:url_1", "write_digest:url_1", "read_digest:url_2"}, calls[:3])
	reads := 0
	for _, c := range calls {
		if strings.HasPrefix(c, "read_digest:") {
			reads++
		}
	}
	assert.Equal(t, 2, reads, "prior digest is read exactly once per resource")
}

func TestNoNotifierStillPersists(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	f := newStubFetcher()
	f.ok(urlA, "x")

	res, err := newPipeline(st, f, nil, 1, urlA).Run(context.Background(), "r")
	require.NoError(t, err)
	assert.True(t, res.AnyChanged)
	assert.False(t, res.Notified)
	_, ok := st.Content("url_1")
	assert.True(t, ok)
}

func TestStorageFailureIsFatalWithoutAlert(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	st.Seed(storage.Key(1), "", nil)
	st.FailWrites = true
	f := newStubFetcher()
	f.ok(urlA, "x")
	n := &recordingNotifier{}

	_, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "r")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, n.count())
}

func TestNotifyFailureIsReported(t *testing.T) {
	t.Parallel()
	st := storagetest.NewMemory()
	f := newStubFetcher()
	f.ok(urlA, "x")
	n := &recordingNotifier{err: errors.New("channel unreachable")}

	res, err := newPipeline(st, f, n, 1, urlA).Run(context.Background(), "r")
	assert.ErrorIs(t, err, ErrNotify)
	assert.True(t, res.AnyChanged)
	assert.False(t, res.Notified)
}

// slowFetcher tracks concurrency to check the fan-out limit and the barrier.
type slowFetcher struct {
	inFlight, peak atomic.Int32
	done           atomic.Int32
}

func (f *slowFetcher) Fetch(_ context.Context, locator string) fetch.Result {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	f.inFlight.Add(-1)
	f.done.Add(1)
	return fetch.Result{StatusCode: http.StatusOK, Content: []byte(locator)}
}

type barrierNotifier struct {
	f        *slowFetcher
	doneSeen int32
	calls    int
}

func (n *barrierNotifier) Notify(context.Context, notifier.Message) error {
	n.calls++
	n.doneSeen = n.f.done.Load()
	return nil
}

func (n *barrierNotifier) Close() error { return nil }

func TestFanOutRespectsLimitAndBarrier(t *testing.T) {
	t.Parallel()
	urls := make([]string, 8)
	for i := range urls {
		urls[i] = "https://example.com/" + string(rune('a'+i))
	}
	f := &slowFetcher{}
	n := &barrierNotifier{f: f}
	st := storagetest.NewMemory()

	res, err := New(Config{Resources: Specs(urls), Workers: 3}, st, f, n, logx.Nop(), nil).Run(context.Background(), "fan")
	require.NoError(t, err)
	assert.True(t, res.AnyChanged)
	assert.Len(t, res.Changed, len(urls))
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, int32(len(urls)), n.doneSeen, "alert only after every fetch completed")
}

func TestSpecsAreOneBased(t *testing.T) {
	t.Parallel()
	specs := Specs([]string{urlA, urlB})
	assert.Equal(t, ResourceSpec{Index: 1, Locator: urlA}, specs[0])
	assert.Equal(t, ResourceSpec{Index: 2, Locator: urlB}, specs[1])
}
