package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/dlboard/internal/config"
)

func TestLoadDotEnv_SetsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := `
# comment
DLBOARD_TEST_A=hello
DLBOARD_TEST_B = spaced
not-a-pair
=nokey
`
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DLBOARD_TEST_A", "")
	os.Unsetenv("DLBOARD_TEST_A")
	t.Setenv("DLBOARD_TEST_B", "already")

	loadDotEnv(envFile)

	if got := os.Getenv("DLBOARD_TEST_A"); got != "hello" {
		t.Errorf("DLBOARD_TEST_A = %q, want hello", got)
	}
	// Existing env wins over the file.
	if got := os.Getenv("DLBOARD_TEST_B"); got != "already" {
		t.Errorf("DLBOARD_TEST_B = %q, want already", got)
	}
}

func TestLoadDotEnv_MissingFileIsNoOp(t *testing.T) {
	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}

func TestRunSnapshotCommand_PrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/downloads" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": []map[string]any{
				{"id": 7, "title": "holiday", "url": "https://example.com/a", "mediaType": 3, "status": 3, "updateTime": 1700000000},
			},
		})
	}))
	defer srv.Close()

	cfg := config.Config{ServerURL: srv.URL}

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	code := runSnapshotCommand(context.Background(), cfg, nil)
	w.Close()
	os.Stdout = old

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	out := string(buf[:n])

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out, "holiday") {
		t.Errorf("output missing row title: %q", out)
	}
	if !strings.Contains(out, "Video") {
		t.Errorf("output missing media type label: %q", out)
	}
}

func TestRunSnapshotCommand_RejectsArgs(t *testing.T) {
	if code := runSnapshotCommand(context.Background(), config.Config{}, []string{"extra"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunPingCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": true, "data": []any{}})
	}))
	defer srv.Close()

	if code := runPingCommand(context.Background(), config.Config{ServerURL: srv.URL}, nil); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	down := config.Config{ServerURL: "http://127.0.0.1:1"}
	if code := runPingCommand(context.Background(), down, nil); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRunSnapshotCommand_ServerDown(t *testing.T) {
	cfg := config.Config{ServerURL: "http://127.0.0.1:1"}
	if code := runSnapshotCommand(context.Background(), cfg, nil); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
