package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablerag/tablerag-client/internal/api"
	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/poller"
	"github.com/tablerag/tablerag-client/internal/progress"
	"github.com/tablerag/tablerag-client/internal/tableview"
	"github.com/tablerag/tablerag-client/internal/workflow"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := DefaultConfig()
	cfg.TaskDuration = 20 * time.Millisecond
	s := New(cfg, nil)
	t.Cleanup(s.Close)
	return s
}

func doRequest(t *testing.T, s *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func multipartBody(t *testing.T, field string, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write([]byte("content of " + name))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var h models.Health
	decodeJSON(t, rec.Body.Bytes(), &h)
	if h.Status != "ok" || h.Version == "" {
		t.Errorf("health = %+v", h)
	}
}

func TestGetDirsAppliesOverrides(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/data/dirs?doc_dir=/tmp/schema&save_path=/tmp/e.pkl", nil, "")

	var dirs models.Dirs
	decodeJSON(t, rec.Body.Bytes(), &dirs)
	if dirs.DocDir != "/tmp/schema" || dirs.EmbeddingSavePath != "/tmp/e.pkl" {
		t.Errorf("overrides not applied: %+v", dirs)
	}
	if dirs.ExcelDir != DefaultConfig().Dirs.ExcelDir {
		t.Errorf("excel_dir = %q, want default", dirs.ExcelDir)
	}
}

func TestUnknownTaskIsNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, kind := range []string{"data", "cleanup", "embeddings"} {
		rec := doRequest(t, s, http.MethodGet, "/"+kind+"/tasks/missing", nil, "")
		if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "task not found") {
			t.Errorf("%s: status = %d body = %s", kind, rec.Code, rec.Body.String())
		}
	}
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		field    string
		files    []string
		wantCode int
	}{
		{"csv rejected", "/data/upload", "file", []string{"notes.csv"}, http.StatusBadRequest},
		{"wrong field", "/data/upload", "files", []string{"a.xlsx"}, http.StatusUnprocessableEntity},
		{"single", "/data/upload", "file", []string{"a.xlsx"}, http.StatusOK},
		{"many", "/data/upload_many", "files", []string{"a.xlsx", "b.XLS"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, tt.files...)
			rec := doRequest(t, s, http.MethodPost, tt.path, body, ct)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var resp models.SubmitResponse
			decodeJSON(t, rec.Body.Bytes(), &resp)
			if resp.TaskID == "" || resp.Status != models.StatusQueued {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, "file", "sales.xlsx")
	rec := doRequest(t, s, http.MethodPost, "/data/upload", body, ct)
	var resp models.SubmitResponse
	decodeJSON(t, rec.Body.Bytes(), &resp)

	seen := map[models.Status]bool{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := doRequest(t, s, http.MethodGet, "/data/tasks/"+resp.TaskID, nil, "")
		var task models.Task
		decodeJSON(t, rec.Body.Bytes(), &task)
		seen[task.Status] = true
		if task.Status.IsTerminal() {
			if task.Status != models.StatusSucceeded || task.EndedAt < task.StartedAt {
				t.Fatalf("task = %+v", task)
			}
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !seen[models.StatusRunning] || !seen[models.StatusSucceeded] {
		t.Errorf("statuses seen = %v", seen)
	}
}

func TestCleanupRequiresTargets(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/cleanup", bytes.NewBufferString(`{"targets":[]}`), "application/json")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
}

// TestClientAgainstDevServer drives the real client stack through upload,
// listing, chat and row cleanup.
func TestClientAgainstDevServer(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	cfg := config.Default()
	cfg.APIBaseURL = server.URL
	client, err := api.NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx := context.Background()
	registry := poller.NewRegistry(ctx, poller.New(client, poller.Options{Interval: 5 * time.Millisecond}, nil), nil, nil)
	defer registry.Close()

	runner := workflow.NewRunner(client, registry)
	view := tableview.New(client, runner, nil, nil)
	runner.SetTableRefresher(view)

	sheet := filepath.Join(t.TempDir(), "Sales Q1.xlsx")
	if err := os.WriteFile(sheet, []byte("PK\x03\x04"), 0600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}

	rec := &progress.Recorder{}
	task, err := runner.Upload(ctx, workflow.UploadRequest{Files: []string{sheet}}, rec)
	if err != nil {
		t.Fatalf("Upload() error = %v (messages %q)", err, rec.Messages())
	}
	if task.Status != models.StatusSucceeded {
		t.Fatalf("upload task status = %s", task.Status)
	}

	if err := view.Refresh(ctx, ""); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	rows := view.Rows()
	if len(rows) != 1 || rows[0].TableID != "sales_q1" || rows[0].OriginalFilename != "Sales Q1.xlsx" {
		t.Fatalf("rows = %+v", rows)
	}

	answer, err := runner.Ask(ctx, models.ChatQuery{Question: "total revenue?"}, nil)
	if err != nil || !strings.Contains(answer, "sales_q1") {
		t.Errorf("Ask() = %q, %v", answer, err)
	}

	if _, err := rows[0].Cleanup(ctx, nil); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if view.State() != tableview.StateEmpty {
		t.Errorf("state after cleanup = %s, want no tables", view.State())
	}
}
