package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/tag"
)

// DB wraps a SQLite database connection. The database is a query cache;
// it can always be rebuilt from the JSONL files.
type DB struct {
	db *sql.DB
}

// Entry is a reference as stored in the cache.
type Entry struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Authors    string            `json:"authors,omitempty"`
	Journal    string            `json:"journal,omitempty"`
	Year       int               `json:"year,omitempty"`
	PubDate    string            `json:"pub_date,omitempty"`
	EPubDate   string            `json:"epub_date,omitempty"`
	InsertDate string            `json:"insert_date,omitempty"`
	Abstract   string            `json:"abstract,omitempty"`
	Comment    string            `json:"comment,omitempty"`
	LastStatus string            `json:"last_status,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// HistoryEntry is one row of a reference's review history.
type HistoryEntry struct {
	Date   string `json:"date"`
	User   string `json:"user"`
	Status string `json:"status"`
}

// TagUsage counts the references attached to a tag or its descendants.
type TagUsage struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Depth         int    `json:"depth"`
	Category      string `json:"category,omitempty"`
	CategoryValue string `json:"category_value,omitempty"`
	Exclusive     bool   `json:"exclusive,omitempty"`
	References    int    `json:"references"`
}

// selectEntryFields contains the standard field list for SELECT queries.
const selectEntryFields = `id, title, authors, journal, pub_year,
	pub_date, epub_date, insert_date, abstract, comment,
	last_status, extra_json`

// Metadata keys in the _meta table.
const (
	metaSnapshotID = "snapshot_id"
	metaRebuiltAt  = "rebuilt_at"
	metaBaseName   = "base_name"
)

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- One row per reference, in base order
		CREATE TABLE IF NOT EXISTS refs (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			title TEXT,
			authors TEXT,
			journal TEXT,
			pub_year INTEGER,
			pub_date TEXT,
			epub_date TEXT,
			insert_date TEXT,
			abstract TEXT,
			comment TEXT,
			last_status TEXT,
			extra_json TEXT
		);

		-- Tag tree; path is the chain of ids from the root, e.g. /1/4/
		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY,
			parent_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			category TEXT,
			category_value TEXT,
			exclusive INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);

		CREATE TABLE IF NOT EXISTS ref_tags (
			ref_id TEXT NOT NULL,
			tag_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			tag_order INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (ref_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_ref_tags_tag ON ref_tags(tag_id);

		CREATE TABLE IF NOT EXISTS reviews (
			ref_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			reviewed_at TEXT NOT NULL,
			user TEXT,
			status TEXT NOT NULL,
			PRIMARY KEY (ref_id, seq)
		);

		-- Full-text search virtual table (standalone, not external content)
		CREATE VIRTUAL TABLE IF NOT EXISTS refs_fts USING fts5(
			id,
			title,
			abstract,
			authors
		);

		CREATE TABLE IF NOT EXISTS _meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// RebuildFromFiles clears the database and rebuilds it from saved JSONL files.
func (d *DB) RebuildFromFiles(files Files) (int, error) {
	s, err := ReadSnapshot(files)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot: %w", err)
	}
	return d.RebuildFromSnapshot(s)
}

// RebuildFromBase clears the database and fills it from an in-memory base.
func (d *DB) RebuildFromBase(b *base.Base) (int, error) {
	return d.RebuildFromSnapshot(NewSnapshot(b))
}

// RebuildFromSnapshot clears the database and fills it from records. Stored
// reference IDs are kept as they are.
func (d *DB) RebuildFromSnapshot(s Snapshot) (int, error) {
	return d.rebuild(s.Base, s.Tags, s.Refs)
}

func (d *DB) rebuild(meta BaseRecord, tags []TagRecord, refs []RefRecord) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"refs", "refs_fts", "tags", "ref_tags", "reviews", "_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("clearing %s table: %w", table, err)
		}
	}

	if err := insertTags(tx, tags); err != nil {
		return 0, err
	}
	if err := insertRefs(tx, refs); err != nil {
		return 0, err
	}

	snapshot := ulid.Make().String()
	for key, value := range map[string]string{
		metaSnapshotID: snapshot,
		metaRebuiltAt:  time.Now().UTC().Format(time.RFC3339),
		metaBaseName:   meta.Name,
	} {
		if _, err := tx.Exec(`INSERT INTO _meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return 0, fmt.Errorf("writing %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(refs), nil
}

func insertTags(tx *sql.Tx, tags []TagRecord) error {
	stmt, err := tx.Prepare(`
		INSERT INTO tags (id, parent_id, name, category, category_value, exclusive, path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing tags insert: %w", err)
	}
	defer stmt.Close()

	paths := map[int]string{0: "/"}
	for _, t := range tags {
		parentPath, ok := paths[t.Parent]
		if !ok {
			return fmt.Errorf("tag %d (%s): unknown parent %d", t.ID, t.Name, t.Parent)
		}
		path := parentPath + strconv.Itoa(t.ID) + "/"
		paths[t.ID] = path

		var value sql.NullString
		if t.CategoryValue != nil {
			value = sql.NullString{String: *t.CategoryValue, Valid: true}
		}
		exclusive := 0
		if t.Exclusive {
			exclusive = 1
		}
		_, err := stmt.Exec(t.ID, t.Parent, t.Name, nullableStringValue(t.Category), value, exclusive, path)
		if err != nil {
			return fmt.Errorf("inserting tag %s: %w", t.Name, err)
		}
	}
	return nil
}

func insertRefs(tx *sql.Tx, refs []RefRecord) error {
	refsStmt, err := tx.Prepare(`
		INSERT INTO refs (
			id, position, title, authors, journal, pub_year,
			pub_date, epub_date, insert_date, abstract, comment,
			last_status, extra_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing refs insert: %w", err)
	}
	defer refsStmt.Close()

	ftsStmt, err := tx.Prepare(`INSERT INTO refs_fts (id, title, abstract, authors) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	tagStmt, err := tx.Prepare(`INSERT OR REPLACE INTO ref_tags (ref_id, tag_id, seq, tag_order) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing ref_tags insert: %w", err)
	}
	defer tagStmt.Close()

	reviewStmt, err := tx.Prepare(`INSERT INTO reviews (ref_id, seq, reviewed_at, user, status) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing reviews insert: %w", err)
	}
	defer reviewStmt.Close()

	for pos, ref := range refs {
		var extraJSON []byte
		if len(ref.Extra) > 0 {
			extraJSON, err = json.Marshal(ref.Extra)
			if err != nil {
				return fmt.Errorf("marshaling extra for %s: %w", ref.ID, err)
			}
		}
		var lastStatus string
		if n := len(ref.Reviews); n > 0 {
			lastStatus = ref.Reviews[n-1].Status
		}
		title := ref.Extra["title"]

		_, err = refsStmt.Exec(
			ref.ID, pos, nullableStringValue(title), nullableStringValue(ref.Authors),
			nullableStringValue(ref.Extra["journal"]), recordYear(ref),
			nullableStringValue(ref.PubDate), nullableStringValue(ref.EPubDate), nullableStringValue(ref.InsertDate),
			nullableStringValue(ref.Abstract), nullableStringValue(ref.Comment),
			nullableStringValue(lastStatus), nullableString(extraJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting ref %s: %w", ref.ID, err)
		}

		if _, err := ftsStmt.Exec(ref.ID, title, ref.Abstract, ref.Authors); err != nil {
			return fmt.Errorf("inserting fts for %s: %w", ref.ID, err)
		}

		for i, link := range ref.Tags {
			if _, err := tagStmt.Exec(ref.ID, link.ID, i, link.Order); err != nil {
				return fmt.Errorf("inserting tag %s for %s: %w", link.Name, ref.ID, err)
			}
		}
		for i, r := range ref.Reviews {
			if _, err := reviewStmt.Exec(ref.ID, i, r.Date, nullableStringValue(r.User), r.Status); err != nil {
				return fmt.Errorf("inserting review for %s: %w", ref.ID, err)
			}
		}
	}
	return nil
}

// recordYear mirrors reference.Reference.Year for a stored record.
func recordYear(ref RefRecord) sql.NullInt64 {
	if d, err := reference.ParseDate(ref.PubDate); err == nil {
		return sql.NullInt64{Int64: int64(d.Year), Valid: true}
	}
	if y, err := strconv.Atoi(ref.Extra["year"]); err == nil {
		return sql.NullInt64{Int64: int64(y), Valid: true}
	}
	return sql.NullInt64{}
}

// GetByID retrieves a reference by its ID. It returns nil if not found.
func (d *DB) GetByID(id string) (*Entry, error) {
	row := d.db.QueryRow(`SELECT `+selectEntryFields+` FROM refs WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil || entry == nil {
		return nil, err
	}
	if err := d.attachTags([]*Entry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// sqlLimit maps a limit of 0 or less to SQLite's unbounded LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// Search performs a full-text search over ids, titles, abstracts and authors.
func (d *DB) Search(query string, limit int) ([]*Entry, error) {
	ftsQuery := prepareFTSQuery(query)

	rows, err := d.db.Query(`
		SELECT `+selectEntryFields+`
		FROM refs
		WHERE id IN (SELECT id FROM refs_fts WHERE refs_fts MATCH ?)
		ORDER BY position
		LIMIT ?`, ftsQuery, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	return d.scanEntries(rows)
}

// ListByTag returns the references carrying the named tag or any tag below
// it, up to limit (0 for no limit). When a name was declared twice the last declaration is used.
func (d *DB) ListByTag(name string, limit int) ([]*Entry, error) {
	var path string
	err := d.db.QueryRow(`SELECT path FROM tags WHERE name = ? ORDER BY id DESC LIMIT 1`, name).Scan(&path)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", tag.ErrUnknownTag, name)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up tag %s: %w", name, err)
	}

	rows, err := d.db.Query(`
		SELECT `+selectEntryFields+`
		FROM refs
		WHERE id IN (
			SELECT rt.ref_id FROM ref_tags rt JOIN tags t ON t.id = rt.tag_id
			WHERE substr(t.path, 1, length(?1)) = ?1
		)
		ORDER BY position
		LIMIT ?2`, path, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing tag %s: %w", name, err)
	}
	defer rows.Close()

	return d.scanEntries(rows)
}

// ListAll returns all references in base order, up to limit (0 for no limit).
func (d *DB) ListAll(limit int) ([]*Entry, error) {
	query := `SELECT ` + selectEntryFields + ` FROM refs ORDER BY position`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing refs: %w", err)
	}
	defer rows.Close()

	return d.scanEntries(rows)
}

// History returns the review history of a reference, oldest first.
func (d *DB) History(id string) ([]HistoryEntry, error) {
	rows, err := d.db.Query(`
		SELECT reviewed_at, COALESCE(user, ''), status
		FROM reviews WHERE ref_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.Date, &h.User, &h.Status); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// TagUsage returns every tag in tree order with the number of references
// attached to it or its descendants.
func (d *DB) TagUsage() ([]TagUsage, error) {
	rows, err := d.db.Query(`
		SELECT t.id, t.name, t.path, COALESCE(t.category, ''), COALESCE(t.category_value, ''), t.exclusive,
			(SELECT COUNT(DISTINCT rt.ref_id) FROM ref_tags rt JOIN tags c ON c.id = rt.tag_id
			 WHERE substr(c.path, 1, length(t.path)) = t.path)
		FROM tags t ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("querying tag usage: %w", err)
	}
	defer rows.Close()

	var usage []TagUsage
	for rows.Next() {
		var u TagUsage
		var path string
		if err := rows.Scan(&u.ID, &u.Name, &path, &u.Category, &u.CategoryValue, &u.Exclusive, &u.References); err != nil {
			return nil, err
		}
		u.Depth = strings.Count(path, "/") - 1
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// SnapshotID returns the identifier of the last rebuild, or "" if the cache
// has never been built.
func (d *DB) SnapshotID() (string, error) {
	return d.meta(metaSnapshotID)
}

// RebuiltAt returns when the cache was last rebuilt.
func (d *DB) RebuiltAt() (time.Time, error) {
	v, err := d.meta(metaRebuiltAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

func (d *DB) meta(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Count returns the total number of references in the database.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM refs").Scan(&count)
	return count, err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var title, authors, journal, pubDate, epubDate, insertDate sql.NullString
	var abstract, comment, lastStatus, extraJSON sql.NullString
	var year sql.NullInt64

	err := s.Scan(
		&e.ID, &title, &authors, &journal, &year,
		&pubDate, &epubDate, &insertDate, &abstract, &comment,
		&lastStatus, &extraJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	e.Title = title.String
	e.Authors = authors.String
	e.Journal = journal.String
	e.Year = int(year.Int64)
	e.PubDate = pubDate.String
	e.EPubDate = epubDate.String
	e.InsertDate = insertDate.String
	e.Abstract = abstract.String
	e.Comment = comment.String
	e.LastStatus = lastStatus.String

	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &e.Extra); err != nil {
			return nil, fmt.Errorf("parsing extra JSON for %s: %w", e.ID, err)
		}
	}

	return &e, nil
}

func (d *DB) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := d.attachTags(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// attachTags fills in tag names in attachment order.
func (d *DB) attachTags(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	rows, err := d.db.Query(`
		SELECT rt.ref_id, t.name FROM ref_tags rt JOIN tags t ON t.id = rt.tag_id
		ORDER BY rt.ref_id, rt.seq`)
	if err != nil {
		return fmt.Errorf("querying ref tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var refID, name string
		if err := rows.Scan(&refID, &name); err != nil {
			return err
		}
		if e, ok := byID[refID]; ok {
			e.Tags = append(e.Tags, name)
		}
	}
	return rows.Err()
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	// FTS5 uses double quotes for phrase matching
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// If query contains special chars, quote it
	if strings.ContainsAny(query, "\"*+-:(){}[]^~.,") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}
