package workflow

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tablerag/tablerag-client/internal/api"
	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/progress"
	"github.com/tablerag/tablerag-client/internal/source"
)

// UploadRequest selects spreadsheets to upload. Files are local paths, s3:// URLs
// or Azure blob SAS URLs.
type UploadRequest struct {
	Files    []string
	ExcelDir string

	// Rebuild, when set, uploads through /data/upload_and_rebuild so the server
	// also rebuilds embeddings in the same task.
	Rebuild *models.RebuildOptions
}

// SupportedExtension reports whether name is a spreadsheet the server accepts.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
		return true
	}
	return false
}

// Upload sends the selected spreadsheets, then polls the resulting data task.
func (r *Runner) Upload(ctx context.Context, req UploadRequest, sink progress.Sink) (*models.Task, error) {
	sink = progress.OrDiscard(sink)

	if err := validateUpload(req); err != nil {
		sink.SetStatus(uploadValidationMessage(err))
		return nil, err
	}

	files, closeAll, err := r.openAll(ctx, req.Files)
	if err != nil {
		sink.SetStatus("upload failed")
		return nil, err
	}
	defer closeAll()

	if len(files) == 1 {
		sink.SetStatus("uploading...")
	} else {
		sink.SetStatus(fmt.Sprintf("uploading %d files...", len(files)))
	}

	var tracker progress.ByteTracker
	if r.newTracker != nil {
		tracker = r.newTracker(len(files))
		for i := range files {
			files[i].Reader = tracker.Track(files[i].Name, files[i].Size, files[i].Reader)
		}
	}

	resp, err := r.send(ctx, req, files)
	if tracker != nil {
		tracker.Finish(err)
	}
	if err != nil {
		r.logger.Debug().Err(err).Int("files", len(files)).Msg("upload rejected")
		sink.SetStatus("upload failed")
		return nil, err
	}

	return r.track(ctx, models.KindData, "import", resp, sink)
}

func (r *Runner) send(ctx context.Context, req UploadRequest, files []api.FilePart) (*models.SubmitResponse, error) {
	switch {
	case req.Rebuild != nil:
		return r.api.UploadAndRebuild(ctx, files, req.ExcelDir, *req.Rebuild)
	case len(files) == 1:
		return r.api.UploadFile(ctx, files[0], req.ExcelDir)
	default:
		return r.api.UploadFiles(ctx, files, req.ExcelDir)
	}
}

func validateUpload(req UploadRequest) error {
	if len(req.Files) == 0 {
		return &ValidationError{Err: ErrNoFileSelected}
	}
	for _, ref := range req.Files {
		if !SupportedExtension(source.Name(ref)) {
			return &ValidationError{Err: ErrUnsupportedFile, Detail: ref}
		}
	}
	if req.Rebuild != nil && !req.Rebuild.Policy.Valid() {
		return &ValidationError{Err: ErrInvalidPolicy, Detail: string(req.Rebuild.Policy)}
	}
	return nil
}

func uploadValidationMessage(err error) string {
	ve, ok := err.(*ValidationError)
	if ok && ve.Err == ErrNoFileSelected {
		return "select a file"
	}
	return err.Error()
}

// openAll opens every reference. On error the files opened so far are closed.
func (r *Runner) openAll(ctx context.Context, refs []string) ([]api.FilePart, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	parts := make([]api.FilePart, 0, len(refs))
	for _, ref := range refs {
		f, err := r.sources.Open(ctx, ref)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, f)
		parts = append(parts, api.FilePart{Name: f.Name, Reader: f, Size: f.Size})
	}
	return parts, closeAll, nil
}
