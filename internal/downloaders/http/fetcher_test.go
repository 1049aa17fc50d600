package pullhttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

func newTestFetcher(method string) *Fetcher {
	return NewFetcher(utils.NewHTTPClient(utils.HTTPClientConfig{}), method)
}

func TestFetcher_OpenOK(t *testing.T) {
	var gotMethod, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Disposition", `attachment; filename="report 2024.pdf"`)
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	resp, err := newTestFetcher("").Open(context.Background(), srv.URL+"/file")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !resp.OK() || string(body) != "hello" {
		t.Errorf("response = %d %q", resp.StatusCode, body)
	}
	if resp.Length != 5 {
		t.Errorf("Length = %d, want 5", resp.Length)
	}
	if resp.FileName != "report 2024.pdf" {
		t.Errorf("FileName = %q", resp.FileName)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method = %q, want GET", gotMethod)
	}
	if gotAgent != utils.ToolUserAgent {
		t.Errorf("User-Agent = %q", gotAgent)
	}
}

func TestFetcher_ConfiguredMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	resp, err := newTestFetcher("post").Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	resp.Body.Close()
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	resp, err := newTestFetcher("").Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	resp.Body.Close()
	if resp.OK() || resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.Status != "Not Found" {
		t.Errorf("Status = %q, want %q", resp.Status, "Not Found")
	}
}

func TestFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newTestFetcher("").Open(context.Background(), addr)
	if !errors.Is(err, types.ErrTransport) {
		t.Errorf("Open() error = %v, want ErrTransport", err)
	}
}

func TestFetcher_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher("").Open(ctx, srv.URL)
	if !errors.Is(err, types.ErrCancelled) {
		t.Errorf("Open() error = %v, want ErrCancelled", err)
	}
}

func TestFileNameFromDisposition(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`attachment; filename="a.bin"`, "a.bin"},
		{`attachment; filename="we/ird:name.txt"`, "we_ird_name.txt"},
		{`attachment; filename*=UTF-8''na%20me.zip`, "na me.zip"},
		{`garbage;;`, ""},
	}
	for _, tt := range tests {
		if got := fileNameFromDisposition(tt.header); got != tt.want {
			t.Errorf("fileNameFromDisposition(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
