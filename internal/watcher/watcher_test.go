package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/sidestamp/internal/discovery"
	"github.com/starford/sidestamp/internal/models"
	"github.com/starford/sidestamp/internal/reconcile"
	"github.com/starford/sidestamp/internal/rewrite"
	"github.com/starford/sidestamp/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type fakeProcessor struct {
	mu     sync.Mutex
	calls  map[string]int
	status models.Status
}

func (f *fakeProcessor) Process(p string) models.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[p]++
	st := f.status
	if st == "" {
		st = models.StatusUpdated
	}
	return models.Outcome{Sidecar: p, Status: st}
}

func (f *fakeProcessor) count(p string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[p]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatch(t *testing.T, dir string, proc Processor, cb OutcomeCallback) {
	t.Helper()
	tree, err := discovery.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, tree, proc, 50*time.Millisecond, testLogger(), cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatch_NewSidecarProcessed(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProcessor{}

	var mu sync.Mutex
	var outcomes []models.Outcome
	startWatch(t, dir, proc, func(o models.Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	p := testutil.Sidecar(t, dir, "new.json", "1700000000")

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return proc.count(p) == 1
	}, "new sidecar not processed")
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 1 && outcomes[0].Sidecar == p
	}, "expected one outcome callback")
}

func TestWatch_ExistingSidecarsNotReprocessed(t *testing.T) {
	dir := t.TempDir()
	p := testutil.Sidecar(t, dir, "old.json", "1700000000")
	proc := &fakeProcessor{}
	startWatch(t, dir, proc, nil)

	// Same content: the fingerprint matches.
	testutil.Sidecar(t, dir, "old.json", "1700000000")
	time.Sleep(300 * time.Millisecond)
	if n := proc.count(p); n != 0 {
		t.Errorf("unchanged sidecar processed %d times", n)
	}

	testutil.Sidecar(t, dir, "old.json", "1700000001")
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return proc.count(p) == 1
	}, "changed sidecar not processed")
}

func TestWatch_BurstDebounced(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProcessor{}
	startWatch(t, dir, proc, nil)

	p := filepath.Join(dir, "burst.json")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	for _, chunk := range []string{`{"photoTakenTime":`, `{"timestamp":`, `"1700000000"}}`} {
		_, _ = f.WriteString(chunk)
	}
	_ = f.Close()

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return proc.count(p) >= 1
	}, "sidecar not processed")
	time.Sleep(200 * time.Millisecond)
	if n := proc.count(p); n != 1 {
		t.Errorf("processed %d times, want 1", n)
	}
}

func TestWatch_NoMatchRetried(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProcessor{status: models.StatusSkippedNoMatch}
	startWatch(t, dir, proc, nil)

	p := testutil.Sidecar(t, dir, "a.json", "1700000000")
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return proc.count(p) == 1
	}, "sidecar not processed")

	testutil.Sidecar(t, dir, "a.json", "1700000000")
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return proc.count(p) == 2
	}, "no-match sidecar not retried")
}

func TestWatch_NewDirWatched(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProcessor{}
	startWatch(t, dir, proc, nil)

	sub := filepath.Join(dir, "album")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	p := testutil.Sidecar(t, sub, "deep.json", "1700000000")
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return proc.count(p) == 1
	}, "sidecar in new dir not processed")
}

func TestWatch_StampsImage(t *testing.T) {
	dir := t.TempDir()
	img := testutil.WriteFile(t, dir, "a.jpg", testutil.JPEG(t))
	proc := reconcile.New(reconcile.WithLogger(testLogger()), reconcile.WithLocation(time.UTC))
	startWatch(t, dir, proc, nil)

	testutil.Sidecar(t, dir, "a.jpg.json", "1700000000")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		ts, err := rewrite.Inspect(img)
		return err == nil && ts.DateTimeOriginal == "2023:11:14 22:13:20"
	}, "image not stamped by watcher")
}

func TestWatcher_SidecarCreatedBeforeRunProcessed(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "old.jpg", testutil.JPEG(t))
	old := testutil.Sidecar(t, dir, "old.jpg.json", "1600000000")
	tree, err := discovery.Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	proc := reconcile.New(reconcile.WithLogger(testLogger()), reconcile.WithLocation(time.UTC))
	var mu sync.Mutex
	var outcomes []models.Outcome
	w, err := New(tree, proc, 50*time.Millisecond, testLogger(), func(o models.Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// A pair that lands after the initial pass walked the directory but
	// before the event loop starts.
	img := testutil.WriteFile(t, dir, "x.jpg", testutil.JPEG(t))
	sc := testutil.Sidecar(t, dir, "x.jpg.json", "1700000000")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, o := range outcomes {
			if o.Sidecar == sc && o.Status == models.StatusUpdated {
				return true
			}
		}
		return false
	}, "sidecar created before Run was never processed")

	ts, err := rewrite.Inspect(img)
	if err != nil || ts.DateTimeOriginal != "2023:11:14 22:13:20" {
		t.Errorf("x.jpg timestamps = %+v, %v", ts, err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, o := range outcomes {
		if o.Sidecar == old {
			t.Errorf("fingerprinted sidecar processed by the watcher: %+v", o)
		}
	}
}
