package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cdtdelta/easlog/internal/easparser"
	"github.com/cdtdelta/easlog/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func entryLog(n int, stamp, device, body string) string {
	return "Log Entry: " + strconv.Itoa(n) + "\n" +
		"RequestTime : " + stamp + "\n" +
		"GET /Microsoft-Server-ActiveSync?DeviceId=" + device + "&Cmd=Sync\n" +
		body + "\n"
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(model.TimeLayout, s)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func TestRun_ConcreteScenario(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeLog(t, dir, "one.log", entryLog(1, "01/01/2024 00:00:05", "DEV1", "second")),
		writeLog(t, dir, "two.log", entryLog(1, "01/01/2024 00:00:00", "DEV1", "first")),
		writeLog(t, dir, "three.log", entryLog(1, "01/01/2024 00:00:00", "DEV2", "other")),
	}

	idx, sum, err := Run(context.Background(), files, ParseFile(easparser.Options{}), Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Parsed != 3 || len(sum.Failed) != 0 {
		t.Errorf("expected 3 parsed and 0 failed, got %d and %d", sum.Parsed, len(sum.Failed))
	}
	if diff := cmp.Diff([]string{"DEV1", "DEV2"}, idx.Devices()); diff != "" {
		t.Errorf("device order mismatch (-want +got):\n%s", diff)
	}

	var stamps []string
	for _, e := range idx.History("DEV1").Entries() {
		stamps = append(stamps, e.Time.Format(model.TimeLayout))
	}
	want := []string{"2024-01-01 00:00:00", "2024-01-01 00:00:05"}
	if diff := cmp.Diff(want, stamps); diff != "" {
		t.Errorf("entry order mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_LaterSubmissionWinsRegardlessOfCompletion(t *testing.T) {
	stamp := mustTime(t, "2024-01-01 00:00:00")
	lastDone := make(chan struct{})

	parse := func(ctx context.Context, path string) (*easparser.ReadResult, error) {
		idx := model.NewIndex()
		idx.Put(model.Entry{DeviceID: "D", Time: stamp, Source: path, Text: path})
		switch path {
		case "F1":
			// F1 finishes only after F3 has finished
			<-lastDone
		case "F3":
			defer close(lastDone)
		}
		return &easparser.ReadResult{Devices: idx, Count: 1}, nil
	}

	idx, _, err := Run(context.Background(), []string{"F1", "F2", "F3"}, parse, Options{Workers: 3, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	e, ok := idx.History("D").Get(stamp)
	if !ok {
		t.Fatal("entry missing")
	}
	if e.Text != "F3" {
		t.Errorf("expected text from the last submitted file F3, got %q", e.Text)
	}
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 0; i < 8; i++ {
		body := "file " + strconv.Itoa(i)
		files = append(files, writeLog(t, dir, "f"+strconv.Itoa(i)+".log",
			entryLog(i, "01/01/2024 00:00:0"+strconv.Itoa(i%3), "DEV"+strconv.Itoa(i%2), body)))
	}

	collect := func(idx *model.Index) []model.Entry {
		var out []model.Entry
		idx.Walk(func(e model.Entry) error {
			out = append(out, e)
			return nil
		})
		return out
	}

	base, _, err := Run(context.Background(), files, ParseFile(easparser.Options{}), Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []int{2, 4, 8} {
		got, _, err := Run(context.Background(), files, ParseFile(easparser.Options{}), Options{Workers: w})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(collect(base), collect(got)); diff != "" {
			t.Errorf("workers=%d result differs (-want +got):\n%s", w, diff)
		}
	}
}

func TestRun_TaskFailureIsFileScoped(t *testing.T) {
	stamp := mustTime(t, "2024-01-01 00:00:00")
	boom := errors.New("boom")

	parse := func(ctx context.Context, path string) (*easparser.ReadResult, error) {
		switch path {
		case "bad":
			return nil, boom
		case "panics":
			panic("parser exploded")
		}
		idx := model.NewIndex()
		idx.Put(model.Entry{DeviceID: path, Time: stamp})
		return &easparser.ReadResult{Devices: idx, Count: 1}, nil
	}

	idx, sum, err := Run(context.Background(), []string{"a", "bad", "panics", "b"}, parse, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("task failures must not fail the run: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, idx.Devices()); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}
	if len(sum.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(sum.Failed))
	}
	if sum.Failed[0].Path != "bad" || !errors.Is(sum.Failed[0], boom) {
		t.Errorf("expected first failure to be bad/boom, got %v", sum.Failed[0])
	}
	if sum.Failed[1].Path != "panics" || !strings.Contains(sum.Failed[1].Error(), "parser exploded") {
		t.Errorf("expected recovered panic, got %v", sum.Failed[1])
	}
	if !errors.Is(sum.Err(), boom) {
		t.Errorf("expected joined error to contain boom, got %v", sum.Err())
	}
}

func TestRun_NoInput(t *testing.T) {
	idx, _, err := Run(context.Background(), nil, ParseFile(easparser.Options{}), Options{})
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
	if idx == nil || idx.Len() != 0 {
		t.Error("expected an empty index")
	}
}

func TestRun_EmptyResultIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeLog(t, dir, "empty.log", "nothing to see\n")}

	idx, sum, err := Run(context.Background(), files, ParseFile(easparser.Options{}), Options{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if idx.Len() != 0 || sum.Parsed != 1 {
		t.Errorf("expected empty index from 1 parsed file, got %d devices from %d", idx.Len(), sum.Parsed)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	parse := func(ctx context.Context, path string) (*easparser.ReadResult, error) {
		calls.Add(1)
		return &easparser.ReadResult{Devices: model.NewIndex()}, nil
	}

	_, sum, err := Run(ctx, []string{"a", "b"}, parse, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no task to start, got %d", calls.Load())
	}
	if len(sum.Failed) != 2 {
		t.Errorf("expected 2 failed tasks, got %d", len(sum.Failed))
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := NewPool(context.Background(), 2)
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
	fut := p.Submit("late", func(context.Context, string) (*easparser.ReadResult, error) {
		t.Error("task must not run after shutdown")
		return nil, nil
	})
	if _, err := fut.Wait(); !errors.Is(err, errPoolClosed) {
		t.Errorf("expected errPoolClosed, got %v", err)
	}
}

func TestFuture_WaitTwice(t *testing.T) {
	p := NewPool(context.Background(), 1)
	defer p.Shutdown()

	fut := p.Submit("x", func(context.Context, string) (*easparser.ReadResult, error) {
		return &easparser.ReadResult{Devices: model.NewIndex(), Count: 7}, nil
	})
	for i := 0; i < 2; i++ {
		res, err := fut.Wait()
		if err != nil || res.Count != 7 {
			t.Errorf("wait %d: expected count 7, got %v, %v", i, res, err)
		}
	}
}

func TestReducer_FoldSkipsEmptyDevices(t *testing.T) {
	red := NewReducer(model.NewIndex())
	red.Fold(model.NewIndex())
	red.Fold(nil)
	if red.Index().Len() != 0 {
		t.Errorf("expected empty index, got %d devices", red.Index().Len())
	}
}
