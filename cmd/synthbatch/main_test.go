package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestWSURLForJob(t *testing.T) {
	got, err := wsURLForJob("https://radio.example/base/", "job 1")
	if err != nil {
		t.Fatalf("wsURLForJob() error = %v", err)
	}
	if want := "wss://radio.example/base/v1/synthesis/job%201/ws"; got != want {
		t.Fatalf("wsURLForJob() = %q, want %q", got, want)
	}

	if _, err := wsURLForJob("ftp://radio.example", "x"); err == nil {
		t.Fatalf("wsURLForJob() error = nil, want scheme error")
	}
}

func TestParseFlagsRequiresBookAndVoice(t *testing.T) {
	if _, err := parseFlags([]string{"-password", "pw", "-book", "a.txt"}); err == nil {
		t.Fatalf("parseFlags() error = nil, want missing voice error")
	}
	cfg, err := parseFlags([]string{"-password", "pw", "-book", "a.txt", "-voice", "0", "-base-url", "http://h:1/"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://h:1" {
		t.Fatalf("baseURL = %q, want trailing slash trimmed", cfg.baseURL)
	}
}

func TestOutcome(t *testing.T) {
	if err := outcome(jobSnapshot{Status: "completed", Files: []string{"a"}}); err != nil {
		t.Fatalf("outcome(completed) error = %v", err)
	}
	err := outcome(jobSnapshot{Status: "failed", FailedIndex: 3, FailureKind: "transport", Error: "boom"})
	if err == nil || !strings.Contains(err.Error(), "chunk 3") {
		t.Fatalf("outcome(failed) error = %v, want chunk 3", err)
	}
	if err := outcome(jobSnapshot{Status: "running"}); err == nil {
		t.Fatalf("outcome(running) error = nil, want error")
	}
}

func TestFollowReturnsLastSnapshotOnNormalClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(jobEvent{Type: "snapshot", Job: jobSnapshot{Status: "running", TotalChunks: 2}})
		_ = conn.WriteJSON(jobEvent{Type: "completed", Job: jobSnapshot{Status: "completed", TotalChunks: 2, DoneChunks: 2, Files: []string{"a", "b"}}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	final, err := follow(t.Context(), conn, false)
	if err != nil {
		t.Fatalf("follow() error = %v", err)
	}
	if final.Status != "completed" || len(final.Files) != 2 {
		t.Fatalf("final = %+v, want completed with 2 files", final)
	}
}
