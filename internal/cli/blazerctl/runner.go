package blazerctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
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

	fs := flag.NewFlagSet("blazerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "Blazer API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	dataSource := fs.String("data-source", "", "data source id for run and cache-clear")
	statement := fs.String("statement", "", "SQL statement for run and cache-clear")
	queryTimeout := fs.Int("query-timeout", 0, "per-run timeout override in seconds")
	refresh := fs.Bool("refresh", false, "bypass the statement cache for this run")
	async := fs.Bool("async", false, "start the run in the background and print its run id")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body any
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "data-sources":
		method, path = http.MethodGet, "/v1/data-sources"
	case "tables":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "usage: blazerctl tables <data-source-id>")
			return 2
		}
		method, path = http.MethodGet, "/v1/data-sources/"+url.PathEscape(fs.Arg(1))+"/tables"
	case "run":
		if strings.TrimSpace(*statement) == "" {
			_, _ = fmt.Fprintln(stderr, "run requires -statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/queries/run"
		body = map[string]any{
			"data_source":     *dataSource,
			"statement":       *statement,
			"timeout_seconds": *queryTimeout,
			"refresh_cache":   *refresh,
			"async":           *async,
		}
	case "run-results":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "usage: blazerctl run-results <run-id>")
			return 2
		}
		method, path = http.MethodGet, "/v1/runs/"+url.PathEscape(fs.Arg(1))
	case "run-delete":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "usage: blazerctl run-delete <run-id>")
			return 2
		}
		method, path = http.MethodDelete, "/v1/runs/"+url.PathEscape(fs.Arg(1))
	case "cache-clear":
		if strings.TrimSpace(*statement) == "" {
			_, _ = fmt.Fprintln(stderr, "cache-clear requires -statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/cache/clear"
		body = map[string]any{
			"data_source": *dataSource,
			"statement":   *statement,
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
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

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
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
	_, _ = fmt.Fprintln(w, "usage: blazerctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                     GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                      GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  data-sources               GET /v1/data-sources")
	_, _ = fmt.Fprintln(w, "  tables <data-source-id>    GET /v1/data-sources/{id}/tables")
	_, _ = fmt.Fprintln(w, "  run -statement <sql>       POST /v1/queries/run")
	_, _ = fmt.Fprintln(w, "  run-results <run-id>       GET /v1/runs/{id}")
	_, _ = fmt.Fprintln(w, "  run-delete <run-id>        DELETE /v1/runs/{id}")
	_, _ = fmt.Fprintln(w, "  cache-clear -statement <sql>  POST /v1/cache/clear")
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
