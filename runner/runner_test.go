package runner_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/taskrow/taskrow/capability"
	"github.com/taskrow/taskrow/effect"
	"github.com/taskrow/taskrow/platform/fsx"
	"github.com/taskrow/taskrow/row"
	"github.com/taskrow/taskrow/runner"
	"github.com/taskrow/taskrow/task"
)

var emptyRow = row.Row{}

// appendTask lifts an effect that appends n to out under mu when performed.
func appendTask(mu *sync.Mutex, out *[]int, n int) task.Task[task.Unit] {
	eff := effect.NewFunc(
		fmt.Sprintf("append.%d", n),
		capability.Write(capability.ResourceDisk),
		func(context.Context) effect.Outcome {
			mu.Lock()
			defer mu.Unlock()
			*out = append(*out, n)
			return effect.Outcome{}
		},
	)
	return task.Lift(eff, emptyRow, func(effect.Outcome) (task.Unit, row.Variant) {
		return task.Unit{}, nil
	})
}

func TestRunner_RunsAuthorizedTask(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	r := runner.New(runner.Config{
		Granted: capability.NewSet(capability.Write(capability.ResourceDisk)),
		Logger:  zaptest.NewLogger(t),
	})
	defer func() { require.NoError(t, r.Close()) }()

	handle, err := runner.Submit(r, context.Background(), path, fsx.WriteUTF8(path, "via runner"))
	require.NoError(t, err)

	select {
	case res := <-handle:
		require.False(t, res.Failed())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task resolution")
	}
}

func TestRunner_RefusesUnauthorizedTask(t *testing.T) {
	r := runner.New(runner.Config{
		Granted: capability.NewSet(capability.Read(capability.ResourceDisk)),
		Logger:  zaptest.NewLogger(t),
	})
	defer func() { _ = r.Close() }()

	handle, err := runner.Submit(r, context.Background(), "k", fsx.WriteUTF8("/tmp/denied.txt", "no"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, capability.ErrUnauthorizedCapability))
	assert.Nil(t, handle)
}

func TestRunner_FailureVariantReachesHandle(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "no", "such", "dir", "x.txt")

	r := runner.New(runner.Config{
		Granted: capability.NewSet(capability.Write(capability.ResourceDisk)),
		Logger:  zaptest.NewLogger(t),
	})
	defer func() { _ = r.Close() }()

	handle, err := runner.Submit(r, context.Background(), badPath, fsx.WriteUTF8(badPath, "x"))
	require.NoError(t, err)

	res := <-handle
	require.True(t, res.Failed())
	assert.Equal(t, fsx.NotFound{Path: badPath}, res.Failure)
}

func TestRunner_SameKeyKeepsSubmissionOrder(t *testing.T) {
	r := runner.New(runner.Config{
		Granted:    capability.NewSet(capability.Write(capability.ResourceDisk)),
		NumWorkers: 4,
		BufferSize: 16,
		Logger:     zaptest.NewLogger(t),
	})
	defer func() { _ = r.Close() }()

	var (
		mu  sync.Mutex
		got []int
	)
	const n = 20
	handles := make([]<-chan task.Result[task.Unit], 0, n)
	for i := 0; i < n; i++ {
		h, err := runner.Submit(r, context.Background(), "same-key", appendTask(&mu, &got, i))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		<-h
	}

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestRunner_CancelledBeforePickupResolvesCancelled(t *testing.T) {
	r := runner.New(runner.Config{
		Granted:    capability.NewSet(capability.Write(capability.ResourceDisk)),
		BufferSize: 4,
		Logger:     zaptest.NewLogger(t),
	})
	defer func() { _ = r.Close() }()

	// occupy the only worker so the second job waits in queue
	blockEff := effect.NewFunc("block", capability.Write(capability.ResourceDisk), func(context.Context) effect.Outcome {
		time.Sleep(150 * time.Millisecond)
		return effect.Outcome{}
	})
	blocker := task.Lift(blockEff, emptyRow, func(effect.Outcome) (task.Unit, row.Variant) {
		return task.Unit{}, nil
	})
	_, err := runner.Submit(r, context.Background(), "k", blocker)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []int
	handle, err := runner.Submit(r, ctx, "k", appendTask(&mu, &got, 1))
	require.NoError(t, err)
	cancel()

	res := <-handle
	require.True(t, res.Failed())
	assert.Equal(t, "cancelled", res.Failure.Tag())
	assert.Empty(t, got)
}

func TestRunner_CloseResolvesQueuedHandles(t *testing.T) {
	r := runner.New(runner.Config{
		Granted:    capability.NewSet(capability.Write(capability.ResourceDisk)),
		BufferSize: 8,
		Logger:     zaptest.NewLogger(t),
	})

	started := make(chan struct{})
	blockEff := effect.NewFunc("block", capability.Write(capability.ResourceDisk), func(context.Context) effect.Outcome {
		close(started)
		time.Sleep(150 * time.Millisecond)
		return effect.Outcome{}
	})
	blocker := task.Lift(blockEff, emptyRow, func(effect.Outcome) (task.Unit, row.Variant) {
		return task.Unit{}, nil
	})

	blocked, err := runner.Submit(r, context.Background(), "k", blocker)
	require.NoError(t, err)
	<-started

	var mu sync.Mutex
	var got []int
	queued := make([]<-chan task.Result[task.Unit], 0, 3)
	for i := 0; i < 3; i++ {
		h, err := runner.Submit(r, context.Background(), "k", appendTask(&mu, &got, i))
		require.NoError(t, err)
		queued = append(queued, h)
	}

	require.NoError(t, r.Close())

	// the in-flight task still finishes normally
	select {
	case res := <-blocked:
		require.False(t, res.Failed())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the in-flight task")
	}

	// every queued handle resolves to the Cancelled variant, none dangle
	for i, h := range queued {
		select {
		case res := <-h:
			require.True(t, res.Failed(), "handle %d", i)
			assert.Equal(t, "cancelled", res.Failure.Tag(), "handle %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("handle %d never resolved", i)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestRunner_DefectResolvesHandleAsDefected(t *testing.T) {
	r := runner.New(runner.Config{
		Granted: capability.NewSet(capability.Write(capability.ResourceDisk)),
		Logger:  zaptest.NewLogger(t),
	})
	defer func() { _ = r.Close() }()

	// a binding classifying into a variant outside its declared row
	eff := effect.NewFunc("broken.binding", capability.Write(capability.ResourceDisk), func(context.Context) effect.Outcome {
		return effect.Outcome{Err: errors.New("boom")}
	})
	broken := task.Lift(eff, emptyRow, func(effect.Outcome) (task.Unit, row.Variant) {
		return task.Unit{}, fsx.NotFound{Path: "/undeclared"}
	})

	handle, err := runner.Submit(r, context.Background(), "k", broken)
	require.NoError(t, err)

	select {
	case res := <-handle:
		// never an apparent success with a zero value
		require.True(t, res.Failed())
		assert.Equal(t, "defected", res.Failure.Tag())
		var defect task.Defect
		require.ErrorAs(t, res.Failure, &defect)
		assert.Contains(t, defect.Reason, "not_found")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the defect resolution")
	}
}

func TestRunner_MetricsAndObserver(t *testing.T) {
	dir := t.TempDir()
	metrics := runner.NewMetrics(nil)

	var reports []runner.Report
	r := runner.New(runner.Config{
		Granted: capability.NewSet(capability.Write(capability.ResourceDisk)),
		Logger:  zaptest.NewLogger(t),
		Metrics: metrics,
		Observer: func(rep runner.Report) {
			reports = append(reports, rep)
		},
	})
	defer func() { _ = r.Close() }()

	okPath := filepath.Join(dir, "ok.txt")
	h1, err := runner.Submit(r, context.Background(), okPath, fsx.WriteUTF8(okPath, "x"))
	require.NoError(t, err)
	<-h1

	badPath := filepath.Join(dir, "no", "dir", "bad.txt")
	h2, err := runner.Submit(r, context.Background(), badPath, fsx.WriteUTF8(badPath, "x"))
	require.NoError(t, err)
	<-h2

	_, err = runner.Submit(r, context.Background(), "k", fsx.ReadUTF8(okPath))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs("fsx.write_utf8", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs("fsx.write_utf8", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refusals()))

	require.Len(t, reports, 2)
	assert.NotEmpty(t, reports[0].RunID)
	assert.Equal(t, "fsx.write_utf8", reports[0].Task)
	assert.Nil(t, reports[0].Failure)
	assert.GreaterOrEqual(t, reports[0].Span.Duration(), time.Duration(0))
	assert.Equal(t, "not_found", reports[1].Failure.Tag())
}

func TestRunner_SubmitAfterCloseFails(t *testing.T) {
	r := runner.New(runner.Config{
		Granted: capability.NewSet(capability.Write(capability.ResourceDisk)),
	})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close()) // idempotent

	time.Sleep(50 * time.Millisecond) // let the worker close its queue

	_, err := runner.Submit(r, context.Background(), "k", fsx.WriteUTF8("/tmp/late.txt", "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrRunnerClosed))
}

func TestRunner_CloseCombinesTeardownErrors(t *testing.T) {
	bang := errors.New("bang")
	boom := errors.New("boom")
	r := runner.New(runner.Config{
		Teardown: []func() error{
			func() error { return bang },
			func() error { return nil },
			func() error { return boom },
		},
	})

	err := r.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, bang))
	assert.True(t, errors.Is(err, boom))
}
