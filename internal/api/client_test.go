package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.APIBaseURL = server.URL + "/"
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

// TestNewClientRejectsEmptyBaseURL verifies that NewClient fails with a clear error
// when APIBaseURL is empty, instead of creating a broken client that produces
// "unsupported protocol scheme" errors on every request.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.APIBaseURL = ""

	_, err := NewClient(cfg, nil)
	if err == nil {
		t.Fatal("NewClient() should return error for empty APIBaseURL")
	}

	if !strings.Contains(err.Error(), "API base URL is empty") {
		t.Errorf("NewClient() error = %q, want error containing 'API base URL is empty'", err.Error())
	}
}

// TestNewClientAcceptsValidBaseURL verifies NewClient works with a valid config.
func TestNewClientAcceptsValidBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.APIBaseURL = "http://127.0.0.1:8000/"

	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v, want nil", err)
	}
	if client.BaseURL() != "http://127.0.0.1:8000" {
		t.Errorf("BaseURL() = %q, trailing slash not trimmed", client.BaseURL())
	}
}

func TestGetTaskDecodesPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/cleanup/tasks/abc" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"task_id":"abc","status":"running","result":null,"error":null,"created_at":1.5,"started_at":2,"ended_at":null}`)
	})

	task, err := client.GetTask(context.Background(), models.KindCleanup, "abc")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Kind != models.KindCleanup || task.ID != "abc" || task.Status != models.StatusRunning {
		t.Errorf("unexpected task %+v", task)
	}
	if task.HasResult() {
		t.Error("null result should not count as a result")
	}
	if task.Payload["created_at"] != 1.5 {
		t.Errorf("payload created_at = %v, want 1.5", task.Payload["created_at"])
	}
	if _, ok := task.Payload["ended_at"]; !ok {
		t.Error("payload should keep null fields")
	}
}

func TestGetTaskEscapesID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawPath != "/data/tasks/a%2Fb" {
			t.Errorf("raw path = %q", r.URL.RawPath)
		}
		io.WriteString(w, `{"task_id":"a/b","status":"queued"}`)
	})

	if _, err := client.GetTask(context.Background(), models.KindData, "a/b"); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"task not found"}`)
	})

	_, err := client.GetTask(context.Background(), models.KindData, "missing")
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound(%v) = false", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || !strings.Contains(te.Body, "task not found") {
		t.Errorf("TransportError body = %+v", te)
	}
}

func TestGetTaskRejectsBadIdentity(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	if _, err := client.GetTask(context.Background(), models.KindData, ""); err == nil {
		t.Error("empty id should be rejected")
	}
	if _, err := client.GetTask(context.Background(), models.Kind("jobs"), "x"); err == nil {
		t.Error("unknown kind should be rejected")
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestGetTaskRetryAfterSetsCooldown(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetTask(context.Background(), models.KindData, "t1")
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (err %v)", StatusCode(err), err)
	}
	if d := client.StatusLimiter().CooldownRemaining(); d < time.Second {
		t.Errorf("cooldown = %v, want ~2s", d)
	}
}

func TestUploadFileMultipart(t *testing.T) {
	tests := []struct {
		name     string
		excelDir string
	}{
		{"without excel dir", ""},
		{"with excel dir", "/srv/excel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/data/upload" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("ParseMultipartForm: %v", err)
					return
				}
				f, hdr, err := r.FormFile("file")
				if err != nil {
					t.Errorf("FormFile: %v", err)
					return
				}
				data, _ := io.ReadAll(f)
				if hdr.Filename != "sales.xlsx" || string(data) != "xlsx-bytes" {
					t.Errorf("file = %s %q", hdr.Filename, data)
				}
				values, present := r.MultipartForm.Value["excel_dir"]
				if tt.excelDir == "" && present {
					t.Errorf("excel_dir should be omitted, got %v", values)
				}
				if tt.excelDir != "" && (len(values) != 1 || values[0] != tt.excelDir) {
					t.Errorf("excel_dir = %v, want %s", values, tt.excelDir)
				}
				io.WriteString(w, `{"task_id":"t1","status":"queued","saved_path":"/srv/excel/sales.xlsx"}`)
			})

			resp, err := client.UploadFile(context.Background(), FilePart{
				Name:   "/home/me/sales.xlsx",
				Reader: strings.NewReader("xlsx-bytes"),
				Size:   10,
			}, tt.excelDir)
			if err != nil {
				t.Fatalf("UploadFile() error = %v", err)
			}
			if resp.TaskID != "t1" || resp.SavedPath == "" {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestUploadFilesRepeatedField(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/upload_many" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := len(r.MultipartForm.File["files"]); got != 2 {
			t.Errorf("files parts = %d, want 2", got)
		}
		io.WriteString(w, `{"task_id":"t2","status":"queued","saved_paths":["a","b"]}`)
	})

	resp, err := client.UploadFiles(context.Background(), []FilePart{
		{Name: "a.xlsx", Reader: strings.NewReader("a"), Size: 1},
		{Name: "b.xls", Reader: strings.NewReader("b"), Size: 1},
	}, "")
	if err != nil {
		t.Fatalf("UploadFiles() error = %v", err)
	}
	if len(resp.SavedPaths) != 2 {
		t.Errorf("saved paths = %v", resp.SavedPaths)
	}
}

func TestUploadAndRebuildFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/upload_and_rebuild" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		form := r.MultipartForm.Value
		if strings.Join(form["policy"], ",") != "build_if_missing" || strings.Join(form["doc_dir"], ",") != "/docs" {
			t.Errorf("form values = %v", form)
		}
		for _, absent := range []string{"save_path", "bge_dir", "excel_dir"} {
			if _, ok := form[absent]; ok {
				t.Errorf("%s should be omitted", absent)
			}
		}
		io.WriteString(w, `{"task_id":"t3","status":"queued"}`)
	})

	_, err := client.UploadAndRebuild(context.Background(),
		[]FilePart{{Name: "a.xlsx", Reader: strings.NewReader("a"), Size: 1}},
		"",
		models.RebuildOptions{Policy: models.PolicyBuildIfMissing, DocDir: "/docs"})
	if err != nil {
		t.Fatalf("UploadAndRebuild() error = %v", err)
	}
}

func TestSubmitCleanupBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cleanup" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"targets":["f.xlsx"],"yes":true,"dry_run":false}` {
			t.Errorf("body = %s", body)
		}
		io.WriteString(w, `{"task_id":"c1","status":"queued"}`)
	})

	resp, err := client.SubmitCleanup(context.Background(), models.NewConfirmedCleanup("f.xlsx"))
	if err != nil {
		t.Fatalf("SubmitCleanup() error = %v", err)
	}
	if resp.TaskID != "c1" {
		t.Errorf("task id = %q", resp.TaskID)
	}
}

func TestSubmitNeverRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.APIBaseURL = server.URL
	cfg.MaxRetries = 3
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.SubmitImport(context.Background(), models.ImportRequest{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusInternalServerError || te.Body != "boom" {
		t.Errorf("unexpected TransportError %+v", te)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestSubmitMissingTaskID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"queued"}`)
	})

	_, err := client.BuildEmbeddings(context.Background(), models.EmbeddingsRequest{Policy: models.PolicyRebuild})
	if !errors.Is(err, ErrMissingTaskID) {
		t.Errorf("error = %v, want ErrMissingTaskID", err)
	}
}

func TestAskOmitsOptionalFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if len(body) != 3 || body["backbone"] != "qwen" || body["table_id"] != "auto" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"answer":"42"}`)
	})

	q := models.ChatQuery{Question: "how many?", Backbone: "qwen"}.Normalize()
	answer, err := client.Ask(context.Background(), q)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Answer != "42" {
		t.Errorf("answer = %q", answer.Answer)
	}
}

func TestListTablesQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("include_meta") != "true" || q.Get("doc_dir") != "/docs" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"tables":["t1"],"count":1,"meta":[{"table":"t1","table_name":null,"original_filename":"f.xlsx"}]}`)
	})

	resp, err := client.ListTables(context.Background(), "/docs", true)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	rows := resp.Rows()
	if len(rows) != 1 || rows[0].TableID != "t1" || rows[0].OriginalFilename != "f.xlsx" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestGetDirsSendsOverrides(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("save_path") != "emb.pkl" || q.Has("doc_dir") {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"excel_dir":"/x","doc_dir":"/d","bge_dir":"/b","embedding_save_path":"emb.pkl"}`)
	})

	dirs, err := client.GetDirs(context.Background(), models.Dirs{EmbeddingSavePath: "emb.pkl"})
	if err != nil {
		t.Fatalf("GetDirs() error = %v", err)
	}
	if dirs.ExcelDir != "/x" {
		t.Errorf("dirs = %+v", dirs)
	}
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.Health(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if te.StatusCode != 0 || te.Err == nil {
		t.Errorf("unexpected TransportError %+v", te)
	}
}

func TestLogUsageSummarisesCallsByPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok","version":"1"}`)
	}))
	t.Cleanup(server.Close)

	logging.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { logging.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	cfg := config.Default()
	cfg.APIBaseURL = server.URL
	client, err := NewClient(cfg, logging.NewLogger(&buf))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	client.LogUsage()
	if buf.Len() != 0 {
		t.Errorf("summary logged before any request: %s", buf.String())
	}

	for i := 0; i < 2; i++ {
		if _, err := client.Health(context.Background()); err != nil {
			t.Fatalf("Health() error = %v", err)
		}
	}
	client.LogUsage()

	out := buf.String()
	if !strings.Contains(out, "API usage summary") || !strings.Contains(out, "/health") {
		t.Errorf("unexpected log output %q", out)
	}
}
