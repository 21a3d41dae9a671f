package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-export/pkg/client"
)

func pdfServer(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("html") == "":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"success":true,"message":"Task successfully completed!","timestamp":"t","status":"completed"}`)
			return
		case r.Method == http.MethodGet:
			*seen = append(*seen, "GET "+r.URL.Query().Get("html"))
		default:
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			*seen = append(*seen, "POST "+body["html"])
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseFlags(t *testing.T) {
	t.Setenv(client.EnvBaseURL, "")

	_, err := parseFlags([]string{"--html", "x"}, io.Discard)
	require.Error(t, err)

	_, err = parseFlags([]string{"-u", "http://x"}, io.Discard)
	require.Error(t, err)

	_, err = parseFlags([]string{"-u", "http://x", "--html", "x", "-i", "f"}, io.Discard)
	require.Error(t, err)

	t.Setenv(client.EnvBaseURL, "http://env/api/success")
	o, err := parseFlags([]string{"--status"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "http://env/api/success", o.url)
	assert.Equal(t, "generated.pdf", o.output)
}

func TestRun_PostFromFileAndGetInline(t *testing.T) {
	var seen []string
	srv := pdfServer(t, &seen)
	dir := t.TempDir()

	in := filepath.Join(dir, "in.html")
	require.NoError(t, os.WriteFile(in, []byte("<h1>file</h1>"), 0o644))
	out := filepath.Join(dir, "out.pdf")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-u", srv.URL, "-i", in, "-o", out}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))
	assert.Contains(t, stdout.String(), "(8 bytes)")

	code = run([]string{"-u", srv.URL, "--get", "--html", "<p>q</p>", "-o", out}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	code = run([]string{"-u", srv.URL, "-i", "-", "-o", out}, strings.NewReader("<p>stdin</p>"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, []string{"POST <h1>file</h1>", "GET <p>q</p>", "POST <p>stdin</p>"}, seen)
}

func TestRun_Status(t *testing.T) {
	var seen []string
	srv := pdfServer(t, &seen)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-u", srv.URL, "--status"}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "completed: Task successfully completed!")
	assert.Empty(t, seen)
}

func TestRun_UsageAndServiceErrors(t *testing.T) {
	t.Setenv(client.EnvBaseURL, "")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"--html", "x"}, nil, &stdout, &stderr))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"success":false,"error":"Failed to generate PDF","message":"acquire browser: all browser slots are busy","kind":"unavailable"}`)
	}))
	defer srv.Close()

	stderr.Reset()
	code := run([]string{"-u", srv.URL, "--html", "x", "-o", filepath.Join(t.TempDir(), "x.pdf")}, nil, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "503")
}
