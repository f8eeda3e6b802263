package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/danmuck/distask/internal/testutil/testlog"
)

func TestRunSampleTask(t *testing.T) {
	dir := testlog.Dir(t)
	path := filepath.Join(dir, "config.toml")
	body := "workers = 3\nlog_dir = " + strconv.Quote(filepath.Join(dir, "logs")) + "\n[[libraries]]\nname = \"linalg\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts := options{config: path, library: "linalg", task: "frobenius-norm", rows: 6, cols: 3}
	if err := run(context.Background(), opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "driver.log")); err != nil {
		t.Fatalf("driver log: %v", err)
	}
}

func TestSampleMatrix(t *testing.T) {
	m := sample(2, 3)
	if m == nil || m.At(1, 2) != 6 {
		t.Fatalf("sample: %v", m)
	}
	if sample(0, 3) != nil {
		t.Fatalf("empty sample should be nil")
	}
}
