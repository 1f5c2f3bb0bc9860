package devserver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tablerag/tablerag-client/internal/models"
)

// Store keeps uploaded spreadsheets and the table schemas derived from them.
type Store struct {
	mu sync.Mutex

	// excel dir -> file name -> content hash
	uploads map[string]map[string]string

	// doc dir -> table -> meta
	tables map[string]map[string]models.TableMeta

	// save path -> policy of the last build
	embeddings map[string]models.EmbeddingPolicy
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		uploads:    make(map[string]map[string]string),
		tables:     make(map[string]map[string]models.TableMeta),
		embeddings: make(map[string]models.EmbeddingPolicy),
	}
}

// SaveUpload records a spreadsheet in excelDir and returns its saved path.
func (s *Store) SaveUpload(excelDir, name string, data []byte) string {
	sum := sha256.Sum256(data)
	name = path.Base(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads[excelDir] == nil {
		s.uploads[excelDir] = make(map[string]string)
	}
	s.uploads[excelDir][name] = hex.EncodeToString(sum[:])
	return path.Join(excelDir, name)
}

// Import creates a table for every spreadsheet in excelDir that has no table yet.
func (s *Store) Import(excelDir, docDir string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.uploads[excelDir]
	if len(files) == 0 {
		return nil, fmt.Errorf("no spreadsheets found in %s", excelDir)
	}
	if s.tables[docDir] == nil {
		s.tables[docDir] = make(map[string]models.TableMeta)
	}

	imported := 0
	for name, hash := range files {
		table := tableName(name)
		if existing, ok := s.tables[docDir][table]; ok && existing.SourceFileHash == hash {
			continue
		}
		s.tables[docDir][table] = models.TableMeta{
			Table:            table,
			TableName:        table,
			OriginalFilename: name,
			SourceFileHash:   hash,
		}
		imported++
	}
	return map[string]interface{}{"imported": imported, "excel_dir": excelDir}, nil
}

// Cleanup drops every table imported from one of targets, and the uploads
// themselves. With dryRun nothing is removed.
func (s *Store) Cleanup(docDir string, targets []string, dryRun bool) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[path.Base(t)] = true
	}

	removed := 0
	for table, meta := range s.tables[docDir] {
		if !wanted[meta.OriginalFilename] {
			continue
		}
		removed++
		if !dryRun {
			delete(s.tables[docDir], table)
		}
	}
	if !dryRun {
		for _, files := range s.uploads {
			for name := range wanted {
				delete(files, name)
			}
		}
	}

	exitCode := 0
	if removed == 0 {
		exitCode = 1
	}
	return map[string]interface{}{"exit_code": exitCode, "removed": removed, "dry_run": dryRun}
}

// Tables lists the tables of docDir sorted by table id.
func (s *Store) Tables(docDir string) []models.TableMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]models.TableMeta, 0, len(s.tables[docDir]))
	for _, m := range s.tables[docDir] {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Table < metas[j].Table })
	return metas
}

// BuildEmbeddings records an embedding build. load_only fails when nothing was
// built at savePath before.
func (s *Store) BuildEmbeddings(savePath string, policy models.EmbeddingPolicy) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.embeddings[savePath]
	switch policy {
	case models.PolicyLoadOnly:
		if !exists {
			return nil, fmt.Errorf("no embedding store at %s", savePath)
		}
	case models.PolicyBuildIfMissing:
		if !exists {
			s.embeddings[savePath] = policy
		}
	default:
		s.embeddings[savePath] = policy
	}
	return map[string]interface{}{"save_path": savePath, "policy": policy}, nil
}

// tableName derives a table id from a spreadsheet name: lower case stem with
// anything but letters and digits replaced by underscores.
func tableName(filename string) string {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
