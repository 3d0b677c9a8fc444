package internal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/testutil"
)

func testConfig(root string) *Config {
	cfg := NewDefaultConfig()
	cfg.Library.Root = root
	cfg.Library.Timezone = "UTC"
	cfg.App.LogFormat = LogFormatText
	return cfg
}

func TestRunOnce_UpdatesAndReports(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.jpg", testutil.JPEG(t))
	testutil.Sidecar(t, dir, "a.jpg.json", "1700000000")
	testutil.Sidecar(t, dir, "orphan.json", "1700000000")

	var stdout, stderr bytes.Buffer
	sum, err := RunOnce(context.Background(), WithConfig(testConfig(dir)), WithOutput(&stdout, &stderr))
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Total != 2 || sum.Updated != 1 || sum.Skipped != 1 {
		t.Errorf("summary = %+v", sum)
	}

	out := stdout.String()
	for _, want := range []string{
		"Starting file processing...",
		"  - Successfully updated a.jpg.",
		"  - No matching image found for orphan.json. Skipping.",
		"All files processed. Task completed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}

	stdout.Reset()
	if err := Inspect(filepath.Join(dir, "a.jpg"), WithConfig(testConfig(dir)), WithOutput(&stdout, &stderr)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "DateTimeOriginal:  2023:11:14 22:13:20") {
		t.Errorf("inspect output:\n%s", stdout.String())
	}
}

func TestRunOnce_ItemErrorFailsCommand(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "broken.jpg", []byte("not an image"))
	testutil.Sidecar(t, dir, "broken.jpg.json", "1700000000")

	var stdout, stderr bytes.Buffer
	sum, err := RunOnce(context.Background(), WithConfig(testConfig(dir)), WithOutput(&stdout, &stderr))
	if !errors.Is(err, ErrItemsFailed) {
		t.Fatalf("err = %v, want ErrItemsFailed", err)
	}
	if sum.Errored != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !strings.Contains(stdout.String(), "ERROR: Could not process broken.jpg.json") {
		t.Errorf("stdout:\n%s", stdout.String())
	}
}

func TestRunOnce_MissingRoot(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := filepath.Join(t.TempDir(), "missing")
	_, err := RunOnce(context.Background(), WithConfig(testConfig(root)), WithOutput(&stdout, &stderr))
	if !errors.Is(err, apperr.ErrDirectoryNotFound) {
		t.Fatalf("err = %v, want ErrDirectoryNotFound", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should be reported, got %q", stdout.String())
	}
}

func TestInspect_NoEXIF(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "a.png", testutil.PNG(t))

	var stdout, stderr bytes.Buffer
	if err := Inspect(path, WithConfig(testConfig(dir)), WithOutput(&stdout, &stderr)); err != nil {
		t.Fatal(err)
	}
	if strings.Count(stdout.String(), " -\n") != 3 {
		t.Errorf("expected three empty tags:\n%s", stdout.String())
	}
}

func TestNewEnv_RequiresConfig(t *testing.T) {
	if _, err := newEnv(nil); err == nil {
		t.Fatal("missing config should fail")
	}
}
