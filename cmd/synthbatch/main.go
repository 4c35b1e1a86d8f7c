// Command synthbatch drives a running iradio server: it logs in, starts a
// book synthesis, follows the job stream and prints per-provider latency.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type options struct {
	baseURL  string
	username string
	password string
	book     string
	voice    string
	timeout  time.Duration
	verbose  bool
}

type startResponse struct {
	Job       jobSnapshot `json:"job"`
	Existing  bool        `json:"existing"`
	Chunks    int         `json:"chunks"`
	MaxBytes  int         `json:"max_bytes"`
	Oversized int         `json:"oversized"`
	Dropped   int         `json:"dropped"`
}

type jobSnapshot struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	TotalChunks int      `json:"total_chunks"`
	DoneChunks  int      `json:"done_chunks"`
	Files       []string `json:"files"`
	Error       string   `json:"error,omitempty"`
	FailedIndex int      `json:"failed_index,omitempty"`
	FailureKind string   `json:"failure_kind,omitempty"`
}

type jobEvent struct {
	Type string      `json:"type"`
	Job  jobSnapshot `json:"job"`
}

type latencyReport struct {
	Providers []struct {
		Provider    string  `json:"provider"`
		Samples     int     `json:"samples"`
		P50MS       float64 `json:"p50_ms"`
		P95MS       float64 `json:"p95_ms"`
		TargetP95MS float64 `json:"target_p95_ms"`
	} `json:"providers"`
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "synthbatch: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "synthbatch: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	fs := flag.NewFlagSet("synthbatch", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8501", "iradio base URL")
	fs.StringVar(&cfg.username, "user", "cyan", "account used to log in")
	fs.StringVar(&cfg.password, "password", os.Getenv("IRADIO_PASSWORD"), "account password (default $IRADIO_PASSWORD)")
	fs.StringVar(&cfg.book, "book", "", "book file name under the books directory")
	fs.StringVar(&cfg.voice, "voice", "", "voice id or label")
	fs.DurationVar(&cfg.timeout, "timeout", 2*time.Hour, "give up after this long")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print every finished chunk")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(cfg.book) == "" || strings.TrimSpace(cfg.voice) == "" {
		return options{}, fmt.Errorf("book and voice are required")
	}
	if cfg.password == "" {
		return options{}, fmt.Errorf("password is required")
	}
	if cfg.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be > 0")
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: 45 * time.Second, Jar: jar}

	if err := postJSON(ctx, client, cfg.baseURL+"/v1/auth/login", map[string]string{
		"username": cfg.username,
		"password": cfg.password,
	}, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var started startResponse
	if err := postJSON(ctx, client, cfg.baseURL+"/v1/synthesis", map[string]string{
		"book":  cfg.book,
		"voice": cfg.voice,
	}, http.StatusAccepted, &started); err != nil {
		return fmt.Errorf("start synthesis: %w", err)
	}
	fmt.Printf("synthbatch: job=%s chunks=%d max_bytes=%d oversized=%d dropped=%d existing=%t\n",
		started.Job.ID, started.Chunks, started.MaxBytes, started.Oversized, started.Dropped, started.Existing)

	wsURL, err := wsURLForJob(cfg.baseURL, started.Job.ID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, http.Header{"Origin": []string{cfg.baseURL}})
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	final, err := follow(ctx, conn, cfg.verbose)
	if err != nil {
		return err
	}

	var report latencyReport
	if err := getJSON(ctx, client, cfg.baseURL+"/v1/synthesis/latency", &report); err != nil {
		fmt.Fprintf(os.Stderr, "synthbatch: latency report unavailable: %v\n", err)
	}
	for _, p := range report.Providers {
		fmt.Printf("synthbatch: provider=%s samples=%d p50=%.0fms p95=%.0fms target=%.0fms\n",
			p.Provider, p.Samples, p.P50MS, p.P95MS, p.TargetP95MS)
	}

	return outcome(final)
}

// follow reads job events until the server closes the stream and returns
// the last snapshot seen.
func follow(ctx context.Context, conn *websocket.Conn, verbose bool) (jobSnapshot, error) {
	var last jobSnapshot
	seen := 0
	for {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetReadDeadline(deadline)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && last.Status != "" {
				return last, nil
			}
			return last, fmt.Errorf("ws read: %w", err)
		}
		var evt jobEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		last = evt.Job
		if verbose {
			for ; seen < len(evt.Job.Files); seen++ {
				fmt.Printf("synthbatch: %d/%d %s\n", seen+1, evt.Job.TotalChunks, evt.Job.Files[seen])
			}
		}
	}
}

func outcome(s jobSnapshot) error {
	switch s.Status {
	case "completed":
		fmt.Printf("synthbatch: completed %d segments\n", len(s.Files))
		return nil
	case "failed":
		return fmt.Errorf("chunk %d failed (%s): %s", s.FailedIndex, s.FailureKind, s.Error)
	default:
		return errors.New("stream ended before the job finished")
	}
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any, want int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, want, out)
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return do(client, req, http.StatusOK, out)
}

func do(client *http.Client, req *http.Request, want int, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != want {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func wsURLForJob(baseURL, jobID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/synthesis/" + jobID + "/ws"
	return u.String(), nil
}
