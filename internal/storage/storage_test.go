package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	storage_go "github.com/supabase-community/storage-go"

	"videothingy/assembly-engine/internal/errs"
)

func writeJSON(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"project_id":"p1","scenes":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadPutsObjectAndReturnsPublicURL(t *testing.T) {
	var gotPath, gotType, gotUpsert, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")
		gotAuth = r.Header.Get("Authorization")
		gotBody = string(data)
		_, _ = w.Write([]byte(`{"Key":"renders/p1/manifest.json"}`))
	}))
	defer srv.Close()

	client := storage_go.NewClient(srv.URL+"/storage/v1", "service-key", nil)
	u := NewWithClient(client, "renders", nil)

	url, err := u.Upload(context.Background(), writeJSON(t), "/p1/manifest.json")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotPath != "/storage/v1/object/renders/p1/manifest.json" {
		t.Errorf("path = %s", gotPath)
	}
	if !strings.HasPrefix(gotType, "application/json") || gotUpsert != "true" || gotAuth != "Bearer service-key" {
		t.Errorf("headers type=%q upsert=%q auth=%q", gotType, gotUpsert, gotAuth)
	}
	if !strings.Contains(gotBody, `"project_id":"p1"`) {
		t.Errorf("body = %q", gotBody)
	}
	if url != srv.URL+"/storage/v1/object/public/renders/p1/manifest.json" {
		t.Errorf("url = %s", url)
	}
}

func TestUploadClassifiesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":503,"message":"overloaded"}`))
	}))
	defer srv.Close()
	u := NewWithClient(storage_go.NewClient(srv.URL+"/storage/v1", "k", nil), "renders", nil)

	_, err := u.Upload(context.Background(), writeJSON(t), "p1/manifest.json")
	if !errs.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	u := NewWithClient(storage_go.NewClient("http://127.0.0.1:1/storage/v1", "k", nil), "renders", nil)
	if _, err := u.Upload(context.Background(), writeJSON(t), ""); err == nil {
		t.Error("expected error for empty remote path")
	}
	if _, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "p1/out.mp4"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := New("https://example.supabase.co", "k", "", nil); err == nil {
		t.Error("expected error for empty bucket")
	}
}
