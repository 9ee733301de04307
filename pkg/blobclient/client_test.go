package blobclient

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/logging"
	"github.com/yourorg/go-blob-kit/pkg/utils"
)

const testContainer = "test-container"

// timeoutError is a network timeout as the HTTP stack reports it.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// flakyTransport fails the first N calls of an operation with err.
type flakyTransport struct {
	Transport
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	err      error
}

func newFlakyTransport(inner Transport, err error) *flakyTransport {
	return &flakyTransport{
		Transport: inner,
		failures:  make(map[string]int),
		calls:     make(map[string]int),
		err:       err,
	}
}

func (f *flakyTransport) failNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
}

func (f *flakyTransport) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyTransport) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failures[op] > 0 {
		f.failures[op]--
		return f.err
	}
	return nil
}

func (f *flakyTransport) Download(ctx context.Context, container, blobName, snapshotID string) (Blob, error) {
	if err := f.fail("download"); err != nil {
		return Blob{}, err
	}
	return f.Transport.Download(ctx, container, blobName, snapshotID)
}

func (f *flakyTransport) Upload(ctx context.Context, container, blobName string, data []byte, opts UploadOptions) (string, error) {
	if err := f.fail("upload"); err != nil {
		return "", err
	}
	return f.Transport.Upload(ctx, container, blobName, data, opts)
}

func (f *flakyTransport) CreateSnapshot(ctx context.Context, container, blobName, ifMatch string) (string, error) {
	if err := f.fail("snapshot"); err != nil {
		return "", err
	}
	return f.Transport.CreateSnapshot(ctx, container, blobName, ifMatch)
}

func fastRetry(maxAttempts int) utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestClient(t *testing.T, transport Transport, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(fastRetry(3))}, opts...)
	client, err := New(transport, testContainer, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_PutGetRoundTrip(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	payloads := map[string][]byte{
		"empty":  {},
		"text":   []byte("hello, blob"),
		"binary": {0x00, 0xff, 0x10, 0x00, 0x7f},
		"large":  bytes.Repeat([]byte("abcdefgh"), 64*1024),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			result, err := client.Put(ctx, "blobs/"+name, payload)
			require.NoError(t, err)
			assert.NotEmpty(t, result.ETag)
			assert.Empty(t, result.SnapshotID)

			got, err := client.Get(ctx, "blobs/"+name)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestClient_GetReturnsCopy(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	payload := []byte("original")
	_, err := client.Put(ctx, "a", payload)
	require.NoError(t, err)
	payload[0] = 'X'

	got, err := client.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestClient_PutWithoutOverwriteConflicts(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	_, err := client.Put(ctx, "report.csv", []byte("v1"))
	require.NoError(t, err)

	_, err = client.Put(ctx, "report.csv", []byte("v2"), WithOverwrite(false))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConflict))

	got, err := client.Get(ctx, "report.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestClient_PutWithoutOverwriteCreatesNewBlob(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	_, err := client.Put(ctx, "fresh", []byte("v1"), WithOverwrite(false))
	require.NoError(t, err)
}

func TestClient_SnapshotSurvivesOverwrite(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	result, err := client.Put(ctx, "state.json", []byte(`{"v":1}`), WithSnapshot())
	require.NoError(t, err)
	require.NotEmpty(t, result.SnapshotID)

	_, err = client.Put(ctx, "state.json", []byte(`{"v":2}`))
	require.NoError(t, err)

	snap, err := client.GetSnapshot(ctx, "state.json", result.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), snap)

	current, err := client.Get(ctx, "state.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), current)
}

func TestClient_ExplicitSnapshot(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	_, err := client.Put(ctx, "doc", []byte("P"))
	require.NoError(t, err)

	id, err := client.Snapshot(ctx, "doc")
	require.NoError(t, err)

	_, err = client.Put(ctx, "doc", []byte("P2"))
	require.NoError(t, err)

	snap, err := client.GetSnapshot(ctx, "doc", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("P"), snap)
}

func TestClient_SnapshotMissingBlob(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())

	_, err := client.Snapshot(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeNotFound))
}

func TestClient_GetMissingBlob(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())

	got, err := client.Get(context.Background(), "missing")
	assert.Nil(t, got)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeNotFound))
}

func TestClient_GetSnapshotUnknownID(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	_, err := client.Put(ctx, "doc", []byte("P"))
	require.NoError(t, err)

	_, err = client.GetSnapshot(ctx, "doc", "2001-01-01T00:00:00.0000000Z")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeNotFound))
}

func TestClient_TransientFaultsWithinBudget(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(), timeoutError{})
	var stats []OperationStats
	client := newTestClient(t, flaky, WithObserver(ObserverFunc(func(s OperationStats) {
		stats = append(stats, s)
	})))
	ctx := context.Background()

	flaky.failNext("upload", 2)
	_, err := client.Put(ctx, "a", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.callCount("upload"))

	flaky.failNext("download", 2)
	got, err := client.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.Len(t, stats, 2)
	assert.Equal(t, OperationStats{
		Operation: "put",
		Container: testContainer,
		Blob:      "a",
		Attempts:  3,
		Duration:  stats[0].Duration,
		Success:   true,
	}, stats[0])
	assert.Equal(t, 3, stats[1].Attempts)
}

func TestClient_TransientFaultsExhaustBudget(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(), timeoutError{})
	client := newTestClient(t, flaky)
	ctx := context.Background()

	_, err := client.Put(ctx, "a", []byte("payload"))
	require.NoError(t, err)

	flaky.failNext("download", 3)
	got, err := client.Get(ctx, "a")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeTransient))
	assert.Equal(t, 3, errors.FromError(err).Details["attempts"])
	assert.ErrorIs(t, err, timeoutError{})
	assert.Equal(t, 3, flaky.callCount("download"))
}

func TestClient_ServiceStatusTransientIsRetried(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(),
		errors.NewAppError(errors.FromHTTPStatus(503), "server busy"))
	client := newTestClient(t, flaky)

	flaky.failNext("upload", 1)
	_, err := client.Put(context.Background(), "a", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.callCount("upload"))
}

func TestClient_PermanentFaultsAreNotRetried(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(), errors.NewUnauthorizedError("AuthorizationFailure"))
	client := newTestClient(t, flaky)

	flaky.failNext("upload", 5)
	_, err := client.Put(context.Background(), "a", []byte("x"))
	assert.True(t, errors.IsCode(err, errors.ErrorCodeUnauthorized))
	assert.Equal(t, 1, flaky.callCount("upload"))
}

func TestClient_UnknownErrorIsInternal(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(), fmt.Errorf("decoder exploded"))
	client := newTestClient(t, flaky)

	flaky.failNext("download", 1)
	_, err := client.Get(context.Background(), "a")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeInternal))
	assert.Equal(t, 1, flaky.callCount("download"))
}

// racingTransport lets another writer commit between the upload and its snapshot.
type racingTransport struct {
	Transport
}

func (r racingTransport) CreateSnapshot(ctx context.Context, container, blobName, ifMatch string) (string, error) {
	if _, err := r.Transport.Upload(ctx, container, blobName, []byte("intruder"), UploadOptions{Overwrite: true}); err != nil {
		return "", err
	}
	return r.Transport.CreateSnapshot(ctx, container, blobName, ifMatch)
}

func TestClient_SnapshotRefusesLaterWrite(t *testing.T) {
	client := newTestClient(t, racingTransport{NewMemoryTransport()})

	result, err := client.Put(context.Background(), "doc", []byte("mine"), WithSnapshot())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConflict))
	assert.Equal(t, true, errors.FromError(err).Details["committed"])

	require.NotNil(t, result)
	assert.NotEmpty(t, result.ETag)
	assert.Empty(t, result.SnapshotID)
}

func TestClient_SnapshotFailureAfterCommit(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(), timeoutError{})
	client := newTestClient(t, flaky)
	ctx := context.Background()

	flaky.failNext("snapshot", 3)
	result, err := client.Put(ctx, "doc", []byte("written"), WithSnapshot())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeTransient))
	assert.Equal(t, true, errors.FromError(err).Details["committed"])
	assert.Equal(t, result.ETag, errors.FromError(err).Details["etag"])

	got, err := client.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("written"), got)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, err := New(NewMemoryTransport(), testContainer)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Put(ctx, "a", []byte("before close"))
	require.NoError(t, err)
	got, err := client.Get(ctx, "a")
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.Equal(t, []byte("before close"), got)

	_, err = client.Get(ctx, "a")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeClosed))
}

func TestClient_CanceledContext(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Put(ctx, "a", []byte("x"))
	assert.True(t, errors.IsCode(err, errors.ErrorCodeCanceled))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_DeadlineDuringBackoff(t *testing.T) {
	flaky := newFlakyTransport(NewMemoryTransport(), timeoutError{})
	client := newTestClient(t, flaky, WithRetryPolicy(utils.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   1,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	flaky.failNext("download", 5)
	_, err := client.Get(ctx, "a")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeCanceled))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, flaky.callCount("download"))
}

// stallingTransport blocks the first download until its context ends.
type stallingTransport struct {
	Transport
	mu      sync.Mutex
	stalled bool
}

func (s *stallingTransport) Download(ctx context.Context, container, blobName, snapshotID string) (Blob, error) {
	s.mu.Lock()
	first := !s.stalled
	s.stalled = true
	s.mu.Unlock()

	if first {
		<-ctx.Done()
		return Blob{}, ctx.Err()
	}
	return s.Transport.Download(ctx, container, blobName, snapshotID)
}

func TestClient_TryTimeoutIsTransient(t *testing.T) {
	memory := NewMemoryTransport()
	client := newTestClient(t, &stallingTransport{Transport: memory}, WithTryTimeout(10*time.Millisecond))
	ctx := context.Background()

	_, err := client.Put(ctx, "a", []byte("eventually"))
	require.NoError(t, err)

	got, err := client.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("eventually"), got)
}

func TestClient_ExistsDeleteList(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	exists, err := client.Exists(ctx, "logs/1")
	require.NoError(t, err)
	assert.False(t, exists)

	for _, name := range []string{"logs/2", "logs/1", "other"} {
		_, err := client.Put(ctx, name, []byte(name), WithContentType("text/plain"))
		require.NoError(t, err)
	}

	exists, err = client.Exists(ctx, "logs/1")
	require.NoError(t, err)
	assert.True(t, exists)

	blobs, err := client.List(ctx, "logs/")
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, "logs/1", blobs[0].Name)
	assert.Equal(t, "logs/2", blobs[1].Name)
	assert.Equal(t, "text/plain", blobs[0].ContentType)
	assert.Equal(t, int64(6), blobs[0].Size)

	require.NoError(t, client.Delete(ctx, "logs/1"))
	err = client.Delete(ctx, "logs/1")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeNotFound))

	info, err := client.Properties(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
}

func TestClient_ConcurrentUse(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("blob-%d", i)
			payload := []byte(name)
			if _, err := client.Put(ctx, name, payload, WithSnapshot()); err != nil {
				errs <- err
				return
			}
			got, err := client.Get(ctx, name)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, payload) {
				errs <- fmt.Errorf("%s: got %q", name, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestClient_Validation(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	_, err := client.Get(ctx, "")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeValidation))

	_, err = client.Put(ctx, string(bytes.Repeat([]byte("a"), maxBlobNameLength+1)), nil)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeValidation))

	_, err = client.GetSnapshot(ctx, "a", "")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeValidation))
}

func TestNew_Configuration(t *testing.T) {
	_, err := New(NewMemoryTransport(), "")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConfiguration))

	_, err = New(nil, testContainer)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConfiguration))

	_, err = NewFromConnectionString("AccountName", testContainer)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConfiguration))

	_, err = NewFromConnectionString("UseDevelopmentStorage=true", "   ")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConfiguration))

	client, err := NewFromConnectionString("UseDevelopmentStorage=true", testContainer)
	require.NoError(t, err)
	assert.Equal(t, testContainer, client.Container())
	assert.NoError(t, client.Close())
}

func TestClient_LogsRetries(t *testing.T) {
	core, observedLogs := observer.New(zapcore.DebugLevel)
	flaky := newFlakyTransport(NewMemoryTransport(), timeoutError{})
	client := newTestClient(t, flaky, WithLogger(logging.NewLoggerFromZap(zap.New(core))))

	flaky.failNext("upload", 1)
	_, err := client.Put(context.Background(), "a", []byte("x"))
	require.NoError(t, err)

	retries := observedLogs.FilterMessage("Transient blob failure, retrying").All()
	require.Len(t, retries, 1)
	fields := retries[0].ContextMap()
	assert.Equal(t, "blob.put", fields["operation"])
	assert.Equal(t, testContainer, fields["container"])
	assert.Equal(t, "a", fields["blob"])
	assert.Equal(t, int64(1), fields["attempt"])
	assert.True(t, utils.IsValidUUID(fields["operation_id"].(string)))
}

func TestClient_DownloadCarriesProperties(t *testing.T) {
	client := newTestClient(t, NewMemoryTransport())
	ctx := context.Background()

	result, err := client.Put(ctx, "doc.txt", []byte("hello"), WithContentType("text/plain"), WithSnapshot())
	require.NoError(t, err)
	_, err = client.Put(ctx, "doc.txt", []byte("{}"), WithContentType("application/json"))
	require.NoError(t, err)

	blob, err := client.Download(ctx, "doc.txt", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), blob.Data)
	assert.Equal(t, "application/json", blob.Info.ContentType)

	blob, err = client.Download(ctx, "doc.txt", result.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob.Data)
	assert.Equal(t, "text/plain", blob.Info.ContentType)
	assert.Equal(t, result.ETag, blob.Info.ETag)

	_, err = client.Download(ctx, "", "")
	assert.True(t, errors.IsCode(err, errors.ErrorCodeValidation))
}

// lostResponseTransport commits the first upload and then reports a
// timeout, as when the response is dropped on the way back.
type lostResponseTransport struct {
	Transport
	mu   sync.Mutex
	lost bool
}

func (l *lostResponseTransport) Upload(ctx context.Context, container, blobName string, data []byte, opts UploadOptions) (string, error) {
	etag, err := l.Transport.Upload(ctx, container, blobName, data, opts)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.lost {
		l.lost = true
		return "", timeoutError{}
	}
	return etag, nil
}

// A create-only write whose response is lost is retried, and the retry
// finds the blob it just wrote. There is no idempotency key to tell the two
// apart, so the caller sees a conflict although its payload is stored.
func TestClient_PutNoOverwriteLostResponseReportsConflict(t *testing.T) {
	client := newTestClient(t, &lostResponseTransport{Transport: NewMemoryTransport()})
	ctx := context.Background()

	result, err := client.Put(ctx, "once", []byte("mine"), WithOverwrite(false))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConflict))

	got, err := client.Get(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, []byte("mine"), got)
}
