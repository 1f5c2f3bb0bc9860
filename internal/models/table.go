package models

// TableMeta is one entry of the meta array returned by GET /tables?include_meta=true.
// table_name and original_filename may be null on the wire.
type TableMeta struct {
	Table            string `json:"table"`
	TableName        string `json:"table_name,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	SourceFileHash   string `json:"source_file_hash,omitempty"`
}

// TablesResponse is the body of GET /tables.
type TablesResponse struct {
	Tables    []string    `json:"tables"`
	Count     int         `json:"count"`
	SchemaDir string      `json:"schema_dir,omitempty"`
	Meta      []TableMeta `json:"meta,omitempty"`
}

// MetadataRow is the display record for one registered table.
type MetadataRow struct {
	TableID          string `json:"table_id" yaml:"table_id"`
	OriginalFilename string `json:"original_filename" yaml:"original_filename"`
}

// Row converts the wire entry into a display row, preferring table over table_name.
func (m TableMeta) Row() MetadataRow {
	id := m.Table
	if id == "" {
		id = m.TableName
	}
	return MetadataRow{TableID: id, OriginalFilename: m.OriginalFilename}
}

// Rows converts every meta entry, preserving order.
func (r *TablesResponse) Rows() []MetadataRow {
	rows := make([]MetadataRow, 0, len(r.Meta))
	for _, m := range r.Meta {
		rows = append(rows, m.Row())
	}
	return rows
}

// Filenames returns the distinct original filenames in listing order.
func (r *TablesResponse) Filenames() []string {
	seen := make(map[string]bool, len(r.Meta))
	var names []string
	for _, m := range r.Meta {
		if m.OriginalFilename == "" || seen[m.OriginalFilename] {
			continue
		}
		seen[m.OriginalFilename] = true
		names = append(names, m.OriginalFilename)
	}
	return names
}
