package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CommentThreads/internal/gateway"
	"CommentThreads/internal/http-server/handlers"
	"CommentThreads/internal/http-server/middleware/auth"
	"CommentThreads/internal/models"
	"CommentThreads/internal/storage/memory"
)

type threadResponse struct {
	Comments []models.Node `json:"comments"`
	Total    int           `json:"total"`
	Visible  int           `json:"visible"`
}

func getThread(t *testing.T, url string) threadResponse {
	t.Helper()

	resp, err := http.Get(url + "/posts/p1/comments")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var out threadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func do(t *testing.T, req *http.Request) int {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestService_ReplyAndDelete(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(log)
	store.Seed("p1", models.Comment{ID: "a", Author: "Bob", AuthorID: "u2", Text: "nice post", Timestamp: time.Unix(1, 0).UTC()})

	notices := handlers.NewNoticeHub(log)
	gw := gateway.New(store, gateway.IdentityFunc(auth.FromContext), log, gateway.Config{Notifier: notices})
	verifier := auth.NewVerifier("test-secret")

	srv := httptest.NewServer(newRouter(log, store, gw, notices, verifier, nil))
	defer srv.Close()

	token, err := verifier.Sign(models.Identity{ID: "u1", Name: "Ann"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/posts/p1/comments", bytes.NewBufferString(`{"text":"  thanks  ","parent_id":"a"}`))
	req.Header.Set("Content-Type", "application/json")
	if code := do(t, req); code != http.StatusUnauthorized {
		t.Errorf("Expected status %d without token, got %d", http.StatusUnauthorized, code)
	}

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/posts/p1/comments", bytes.NewBufferString(`{"text":"  thanks  ","parent_id":"a"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if code := do(t, req); code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, code)
	}
	gw.Wait()

	th := getThread(t, srv.URL)
	if th.Visible != 2 || len(th.Comments) != 1 {
		t.Fatalf("Expected 2 visible comments under one root, got %+v", th)
	}
	replies := th.Comments[0].Replies
	if len(replies) != 1 {
		t.Fatalf("Expected 1 reply, got %d", len(replies))
	}
	if r := replies[0]; r.Text != "thanks" || r.Author != "Ann" || r.AuthorID != "u1" || r.Depth != 1 {
		t.Errorf("Unexpected reply %+v", r)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/posts/p1/comments/a", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if code := do(t, req); code != http.StatusPreconditionRequired {
		t.Errorf("Expected status %d without confirmation, got %d", http.StatusPreconditionRequired, code)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/posts/p1/comments/a?confirm=true", nil)
	if code := do(t, req); code != http.StatusUnauthorized {
		t.Errorf("Expected status %d for anonymous delete, got %d", http.StatusUnauthorized, code)
	}
	gw.Wait()
	if th := getThread(t, srv.URL); th.Visible != 2 {
		t.Fatalf("Expected anonymous delete to leave the thread alone, got visible=%d", th.Visible)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/posts/p1/comments/a?confirm=true", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if code := do(t, req); code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, code)
	}
	gw.Wait()

	th = getThread(t, srv.URL)
	if th.Total != 1 || th.Visible != 0 {
		t.Errorf("Expected the orphaned reply kept but hidden (total=1 visible=0), got total=%d visible=%d", th.Total, th.Visible)
	}
}
