// Package medinsightctl is a thin HTTP client for the medinsight API.
package medinsightctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/medinsight/medinsight/internal/cli/tableview"
	"github.com/medinsight/medinsight/internal/query"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
	// table names the response field holding a table for -format text.
	table string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("medinsightctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "medinsight API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	// Answers can take several model round trips.
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 5*time.Minute), "HTTP timeout (e.g. 90s)")
	format := fs.String("format", "json", "output format: json or text")
	date := fs.String("date", "", "day for the artifacts command (YYYY-MM-DD)")
	limit := fs.Int("limit", 0, "entry limit for the journal command")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *format != "json" && *format != "text" {
		_, _ = fmt.Fprintf(stderr, "invalid -format %q\n", *format)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "ask":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		req = request{method: http.MethodPost, path: "/v1/answer", body: map[string]any{"question": rest}, table: "table"}
	case "query":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "query requires a SQL statement")
			return 2
		}
		req = request{method: http.MethodPost, path: "/v1/query", body: map[string]any{"sql": rest}, table: "."}
	case "schema":
		req = request{method: http.MethodGet, path: "/v1/schema"}
	case "overview":
		req = request{method: http.MethodGet, path: "/v1/overview"}
	case "class":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "class requires a disease class")
			return 2
		}
		req = request{method: http.MethodGet, path: "/v1/overview/classes/" + url.PathEscape(rest)}
	case "districts", "seasons":
		path := "/v1/overview/" + command
		if rest != "" {
			path += "?name=" + url.QueryEscape(rest)
		}
		req = request{method: http.MethodGet, path: path, table: "."}
	case "artifacts":
		path := "/v1/artifacts"
		if strings.TrimSpace(*date) != "" {
			path += "?date=" + url.QueryEscape(strings.TrimSpace(*date))
		}
		req = request{method: http.MethodGet, path: path}
	case "artifact":
		if rest == "" {
			_, _ = fmt.Fprintln(stderr, "artifact requires a key")
			return 2
		}
		req = request{method: http.MethodGet, path: "/v1/artifacts/" + strings.TrimLeft(rest, "/"), table: "table"}
	case "journal":
		path := "/v1/journal"
		if *limit > 0 {
			path += "?limit=" + strconv.Itoa(*limit)
		}
		req = request{method: http.MethodGet, path: path}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *format == "text" && req.table != "" {
		if err := writeText(stdout, responseBody, req.table); err != nil {
			_, _ = fmt.Fprintf(stderr, "render response: %v\n", err)
			return 1
		}
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

type tablePayload struct {
	Columns []query.Column `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Capped  bool           `json:"capped"`
}

// writeText prints the answer text, if any, followed by the table found at
// field ("." for the whole body).
func writeText(w io.Writer, raw []byte, field string) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if answer, ok := envelope["answer"]; ok {
		var text string
		if err := json.Unmarshal(answer, &text); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	tableRaw := raw
	if field != "." {
		var ok bool
		if tableRaw, ok = envelope[field]; !ok {
			return nil
		}
	}
	var payload tablePayload
	if err := json.Unmarshal(tableRaw, &payload); err != nil {
		return err
	}
	return tableview.Render(w, query.Table{Columns: payload.Columns, Rows: payload.Rows, Capped: payload.Capped})
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: medinsightctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health             GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready              GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask <question>     POST /v1/answer")
	_, _ = fmt.Fprintln(w, "  query <sql>        POST /v1/query")
	_, _ = fmt.Fprintln(w, "  schema             GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  overview           GET /v1/overview")
	_, _ = fmt.Fprintln(w, "  class <class>      GET /v1/overview/classes/<class>")
	_, _ = fmt.Fprintln(w, "  districts [name]   GET /v1/overview/districts")
	_, _ = fmt.Fprintln(w, "  seasons [name]     GET /v1/overview/seasons")
	_, _ = fmt.Fprintln(w, "  artifacts          GET /v1/artifacts (-date YYYY-MM-DD)")
	_, _ = fmt.Fprintln(w, "  artifact <key>     GET /v1/artifacts/<key>")
	_, _ = fmt.Fprintln(w, "  journal            GET /v1/journal (-limit N)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
