package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMustNewLocalLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "comment_service.log")

	l := MustNewLocalLogger(path)
	log := slog.New(slog.NewTextHandler(l, nil))
	log.Info("hello", "post_id", "p1")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "post_id=p1") {
		t.Errorf("Expected log line in file, got '%s'", data)
	}
}

func TestNew_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	h := New(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := buf.String()
	if !strings.Contains(out, "status=202") {
		t.Errorf("Expected status in log, got '%s'", out)
	}
	if !strings.Contains(out, "path=/posts/p1/comments") {
		t.Errorf("Expected path in log, got '%s'", out)
	}
}
