package models

import "github.com/tablerag/tablerag-client/internal/util/sanitize"

// CleanupRequest is the body of POST /cleanup.
type CleanupRequest struct {
	Targets   []string `json:"targets"`
	Confirmed bool     `json:"yes"`
	DryRun    bool     `json:"dry_run"`
}

// NewConfirmedCleanup builds the request issued from a table row: confirmed, never a dry run.
func NewConfirmedCleanup(filename string) CleanupRequest {
	return CleanupRequest{Targets: []string{filename}, Confirmed: true, DryRun: false}
}

// DefaultTableID lets the server pick the table for a chat question.
const DefaultTableID = "auto"

// ChatQuery is the body of POST /chat/ask. Empty optional fields are omitted.
type ChatQuery struct {
	Question        string `json:"question"`
	TableID         string `json:"table_id"`
	Backbone        string `json:"backbone,omitempty"`
	EmbeddingPolicy string `json:"embedding_policy,omitempty"`
	DocDir          string `json:"doc_dir,omitempty"`
	ExcelDir        string `json:"excel_dir,omitempty"`
	BgeDir          string `json:"bge_dir,omitempty"`
}

// Normalize cleans every field and fills the default table id. Blank
// optional fields become empty so they are left out of the body.
func (q ChatQuery) Normalize() ChatQuery {
	q.Question = sanitize.Text(q.Question)
	q.TableID = sanitize.Field(q.TableID)
	q.Backbone = sanitize.Field(q.Backbone)
	q.EmbeddingPolicy = sanitize.Field(q.EmbeddingPolicy)
	q.DocDir = sanitize.Field(q.DocDir)
	q.ExcelDir = sanitize.Field(q.ExcelDir)
	q.BgeDir = sanitize.Field(q.BgeDir)
	if q.TableID == "" {
		q.TableID = DefaultTableID
	}
	return q
}

// ChatAnswer is the body returned by POST /chat/ask.
type ChatAnswer struct {
	Answer string `json:"answer"`
}

// EmbeddingPolicy controls how the server treats an existing embedding store.
type EmbeddingPolicy string

const (
	PolicyRebuild        EmbeddingPolicy = "rebuild"
	PolicyBuildIfMissing EmbeddingPolicy = "build_if_missing"
	PolicyLoadOnly       EmbeddingPolicy = "load_only"
)

// Valid reports whether p is empty (server default) or a known policy.
func (p EmbeddingPolicy) Valid() bool {
	switch p {
	case "", PolicyRebuild, PolicyBuildIfMissing, PolicyLoadOnly:
		return true
	}
	return false
}

// ImportRequest is the body of POST /data/import.
type ImportRequest struct {
	ExcelDir string `json:"excel_dir,omitempty"`
}

// EmbeddingsRequest is the body of POST /embeddings/build.
type EmbeddingsRequest struct {
	DocDir   string          `json:"doc_dir,omitempty"`
	ExcelDir string          `json:"excel_dir,omitempty"`
	BgeDir   string          `json:"bge_dir,omitempty"`
	SavePath string          `json:"save_path,omitempty"`
	Policy   EmbeddingPolicy `json:"policy,omitempty"`
}

// RebuildOptions are the extra form fields of /data/upload_and_rebuild[_many].
type RebuildOptions struct {
	Policy   EmbeddingPolicy
	SavePath string
	DocDir   string
	BgeDir   string
}

// Dirs is the body of GET /data/dirs.
type Dirs struct {
	ExcelDir          string `json:"excel_dir" yaml:"excel_dir"`
	DocDir            string `json:"doc_dir" yaml:"doc_dir"`
	BgeDir            string `json:"bge_dir" yaml:"bge_dir"`
	EmbeddingSavePath string `json:"embedding_save_path" yaml:"embedding_save_path"`
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status" yaml:"status"`
	Version string `json:"version" yaml:"version"`
}
