package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logx "sysmonitor/pkg/logx"
)

func openTest(t *testing.T, driver string, retention int) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: driver, Path: path, Retention: retention}, nopLog())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func record(i int) RunRecord {
	at := time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
	return RunRecord{
		RunID:      fmt.Sprintf("run-%d", i),
		Cycle:      uint64(i),
		StartedAt:  at,
		FinishedAt: at.Add(time.Second),
		Program:    "pwsh",
		Args:       []string{"-baseDir", "/data"},
		PID:        100 + i,
		Status:     "success",
		ExitCode:   0,
		TookMS:     1000,
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, nopLog())
		if st != nil || err != nil {
			t.Fatalf("driver %q: st=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, nopLog()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
	if _, err := Open(Config{Driver: "file"}, nopLog()); err == nil {
		t.Fatalf("file driver without path accepted")
	}
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTest(t, driver, 0)
			ctx := context.Background()
			for i := 1; i <= 5; i++ {
				if err := st.AppendRun(ctx, record(i)); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			failed := record(6)
			failed.Status, failed.ExitCode, failed.Error, failed.Args = "failed", -1, "collector executable not found", nil
			if err := st.AppendRun(ctx, failed); err != nil {
				t.Fatalf("append failed run: %v", err)
			}

			got, err := st.RecentRuns(ctx, 3)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 3 || got[0].RunID != "run-6" || got[2].RunID != "run-4" {
				t.Fatalf("recent order: %+v", got)
			}
			if got[0].Error == "" || got[0].Status != "failed" || got[0].ExitCode != -1 {
				t.Fatalf("failed run fields lost: %+v", got[0])
			}
			if len(got[1].Args) != 2 || got[1].Args[1] != "/data" || got[1].PID != 105 {
				t.Fatalf("args/pid lost: %+v", got[1])
			}
			if !got[1].StartedAt.Equal(record(5).StartedAt) {
				t.Fatalf("started_at %s", got[1].StartedAt)
			}

			all, err := st.RecentRuns(ctx, 0)
			if err != nil || len(all) != 6 {
				t.Fatalf("all: n=%d err=%v", len(all), err)
			}
		})
	}
}

func TestFileRetention(t *testing.T) {
	t.Parallel()

	st := openTest(t, "file", 3)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		if err := st.AppendRun(ctx, record(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := st.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	// compaction at 6 lines keeps 3, then one more append
	if len(got) != 4 || got[0].RunID != "run-7" || got[3].RunID != "run-4" {
		t.Fatalf("after retention: %+v", got)
	}
}

func TestFileReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "file", Path: path}, nopLog())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.AppendRun(context.Background(), record(1))
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, nopLog())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.RecentRuns(context.Background(), 10)
	if err != nil || len(got) != 1 || got[0].RunID != "run-1" {
		t.Fatalf("reopen: %+v %v", got, err)
	}
}

func nopLog() logx.Logger { return logx.Nop() }
