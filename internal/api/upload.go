package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"path/filepath"

	"github.com/tablerag/tablerag-client/internal/models"
)

// FilePart is one spreadsheet sent as a multipart file field.
type FilePart struct {
	Name   string // sent as the part filename; only the base name is used
	Reader io.Reader
	Size   int64 // -1 when unknown
}

type formField struct {
	name  string
	value string
}

// UploadFile uploads a single spreadsheet: POST /data/upload, field "file".
func (c *Client) UploadFile(ctx context.Context, file FilePart, excelDir string) (*models.SubmitResponse, error) {
	return c.postMultipart(ctx, "/data/upload", "file", []FilePart{file}, []formField{{"excel_dir", excelDir}})
}

// UploadFiles uploads several spreadsheets in one request: POST /data/upload_many,
// repeated field "files".
func (c *Client) UploadFiles(ctx context.Context, files []FilePart, excelDir string) (*models.SubmitResponse, error) {
	return c.postMultipart(ctx, "/data/upload_many", "files", files, []formField{{"excel_dir", excelDir}})
}

// UploadAndRebuild uploads spreadsheets and rebuilds embeddings in one server task.
// A single file goes to /data/upload_and_rebuild, several to /data/upload_and_rebuild_many.
func (c *Client) UploadAndRebuild(ctx context.Context, files []FilePart, excelDir string, opts models.RebuildOptions) (*models.SubmitResponse, error) {
	fields := []formField{
		{"excel_dir", excelDir},
		{"policy", string(opts.Policy)},
		{"save_path", opts.SavePath},
		{"doc_dir", opts.DocDir},
		{"bge_dir", opts.BgeDir},
	}
	if len(files) == 1 {
		return c.postMultipart(ctx, "/data/upload_and_rebuild", "file", files, fields)
	}
	return c.postMultipart(ctx, "/data/upload_and_rebuild_many", "files", files, fields)
}

// postMultipart streams a multipart body through a pipe so large spreadsheets are
// never buffered in memory. Empty form fields are omitted. Never retried.
func (c *Client) postMultipart(ctx context.Context, path, fileField string, files []FilePart, fields []formField) (*models.SubmitResponse, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("POST %s: no files to upload", path)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fileField, files, fields))
	}()
	defer pr.Close()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.track(path)
	c.logger.Debug().Str("path", path).Int("files", len(files)).Msg("uploading")

	resp, err := c.submitClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: nethttp.MethodPost, Path: path, Err: err}
	}

	var out models.SubmitResponse
	if err := readResponse(resp, nethttp.MethodPost, path, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, fmt.Errorf("POST %s: %w", path, ErrMissingTaskID)
	}
	return &out, nil
}

func writeMultipart(mw *multipart.Writer, fileField string, files []FilePart, fields []formField) error {
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	for _, file := range files {
		part, err := mw.CreateFormFile(fileField, filepath.Base(file.Name))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file.Reader); err != nil {
			return fmt.Errorf("failed to read %s: %w", file.Name, err)
		}
	}
	return mw.Close()
}
