// Package workspace stores the datasets produced and consumed by a run in a
// single SQLite file inside the workspace directory. Every dataset is one
// table; writing a dataset replaces any earlier dataset with the same name.
package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// DefaultName is the workspace database file created inside the workspace directory.
const DefaultName = "wildfire_output.db"

// Reserved columns present in every dataset table.
const (
	fidColumn   = "_fid"
	shapeColumn = "_shape"
)

// ErrNotFound is returned when a named dataset does not exist.
var ErrNotFound = eris.New("workspace: dataset not found")

// DatasetInfo is the catalog entry of a stored dataset.
type DatasetInfo struct {
	Name         string            `json:"name"`
	Kind         model.DatasetKind `json:"kind"`
	GeometryType string            `json:"geometry_type"`
	Fields       []model.Field     `json:"fields"`
	Rows         int               `json:"rows"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store is a directory-backed dataset container.
type Store struct {
	db   *sql.DB
	dir  string
	path string
}

// Open creates dir if needed, opens (or creates) the workspace database
// inside it, and migrates the catalog tables.
func Open(ctx context.Context, dir, name string) (*Store, error) {
	if name == "" {
		name = DefaultName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "workspace: create dir %s", dir)
	}

	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "workspace: exec %s", pragma)
		}
	}

	s := &Store{db: db, dir: dir, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const catalogMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	name          TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	geometry_type TEXT NOT NULL DEFAULT '',
	fields        TEXT NOT NULL,
	row_count     INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL
);

`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, catalogMigration)
	return eris.Wrap(err, "workspace: migrate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the workspace directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the workspace database file path.
func (s *Store) Path() string { return s.path }

// Put writes ds under ds.Name, replacing any dataset with that name. The
// replacement is atomic: readers see either the old or the new dataset.
func (s *Store) Put(ctx context.Context, ds *model.Dataset) error {
	if !ValidName(ds.Name) {
		return eris.Errorf("workspace: invalid dataset name %q", ds.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin")
	}
	defer func() { _ = tx.Rollback() }()

	table := tableName(ds.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return eris.Wrapf(err, "workspace: drop %s", ds.Name)
	}

	cols := []string{fidColumn + " INTEGER PRIMARY KEY", shapeColumn + " BLOB"}
	names := []string{fidColumn, shapeColumn}
	for _, f := range ds.Fields {
		cols = append(cols, quoteIdent(f.Name)+" "+sqlType(f.Type))
		names = append(names, quoteIdent(f.Name))
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+table+" ("+strings.Join(cols, ", ")+")"); err != nil {
		return eris.Wrapf(err, "workspace: create %s", ds.Name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(names, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return eris.Wrapf(err, "workspace: prepare insert %s", ds.Name)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(names))
	for _, feat := range ds.Features {
		args[0] = feat.FID
		args[1] = nil
		if feat.Geometry != nil {
			blob, err := ewkb.Marshal(feat.Geometry, ewkb.NDR)
			if err != nil {
				return eris.Wrapf(err, "workspace: encode geometry %s/%d", ds.Name, feat.FID)
			}
			args[1] = blob
		}
		for i, f := range ds.Fields {
			args[i+2] = feat.Value(f.Name)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "workspace: insert %s/%d", ds.Name, feat.FID)
		}
	}

	fieldsJSON, err := json.Marshal(ds.Fields)
	if err != nil {
		return eris.Wrap(err, "workspace: marshal fields")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (name, kind, geometry_type, fields, row_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			geometry_type = excluded.geometry_type,
			fields = excluded.fields,
			row_count = excluded.row_count,
			updated_at = excluded.updated_at`,
		ds.Name, string(ds.Kind), ds.GeometryType(), string(fieldsJSON), ds.Len(), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "workspace: catalog %s", ds.Name)
	}

	return eris.Wrap(tx.Commit(), "workspace: commit")
}

// Info returns the catalog entry for name.
func (s *Store) Info(ctx context.Context, name string) (*DatasetInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, kind, geometry_type, fields, row_count, updated_at FROM datasets WHERE name = ?`, name)
	info, err := scanInfo(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "%s", name)
		}
		return nil, err
	}
	return info, nil
}

// Exists reports whether a dataset named name is stored.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Info(ctx, name)
	if err == nil {
		return true, nil
	}
	if eris.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// List returns every catalog entry ordered by name.
func (s *Store) List(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, geometry_type, fields, row_count, updated_at FROM datasets ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: list")
	}
	defer rows.Close() //nolint:errcheck

	var out []DatasetInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, eris.Wrap(rows.Err(), "workspace: iterate list")
}

// Get reads the full dataset named name, features ordered by FID.
func (s *Store) Get(ctx context.Context, name string) (*model.Dataset, error) {
	info, err := s.Info(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, info, "", nil)
}

// GetFIDs reads only the features of name whose FID is in fids.
func (s *Store) GetFIDs(ctx context.Context, name string, fids []int64) (*model.Dataset, error) {
	info, err := s.Info(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(fids) == 0 {
		return &model.Dataset{Name: info.Name, Kind: info.Kind, Fields: info.Fields}, nil
	}
	args := make([]any, len(fids))
	for i, fid := range fids {
		args[i] = fid
	}
	where := fidColumn + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(fids)), ", ") + ")"
	return s.read(ctx, info, where, args)
}

func (s *Store) read(ctx context.Context, info *DatasetInfo, where string, args []any) (*model.Dataset, error) {
	cols := []string{fidColumn, shapeColumn}
	for _, f := range info.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + tableName(info.Name)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + fidColumn

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: read %s", info.Name)
	}
	defer rows.Close() //nolint:errcheck

	ds := &model.Dataset{Name: info.Name, Kind: info.Kind, Fields: info.Fields}
	for rows.Next() {
		var fid int64
		var shape []byte
		vals := make([]any, len(info.Fields))
		dest := make([]any, 0, len(cols))
		dest = append(dest, &fid, &shape)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "workspace: scan %s", info.Name)
		}

		feat := model.Feature{FID: fid, Attributes: make(map[string]any, len(info.Fields))}
		if len(shape) > 0 {
			g, err := ewkb.Unmarshal(shape)
			if err != nil {
				return nil, eris.Wrapf(err, "workspace: decode geometry %s/%d", info.Name, fid)
			}
			feat.Geometry = g
		}
		for i, f := range info.Fields {
			feat.Attributes[f.Name] = normalizeValue(vals[i], f.Type)
		}
		ds.Features = append(ds.Features, feat)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "workspace: iterate %s", info.Name)
	}
	return ds, nil
}

// Drop removes the dataset named name. Dropping a missing dataset is a no-op.
func (s *Store) Drop(ctx context.Context, name string) error {
	if !ValidName(name) {
		return eris.Errorf("workspace: invalid dataset name %q", name)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName(name)); err != nil {
		return eris.Wrapf(err, "workspace: drop %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return eris.Wrapf(err, "workspace: uncatalog %s", name)
	}
	return eris.Wrap(tx.Commit(), "workspace: commit")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(sc scanner) (*DatasetInfo, error) {
	var info DatasetInfo
	var kind, fieldsJSON string
	if err := sc.Scan(&info.Name, &kind, &info.GeometryType, &fieldsJSON, &info.Rows, &info.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "workspace: scan catalog")
	}
	info.Kind = model.DatasetKind(kind)
	if err := json.Unmarshal([]byte(fieldsJSON), &info.Fields); err != nil {
		return nil, eris.Wrapf(err, "workspace: decode fields of %s", info.Name)
	}
	return &info, nil
}

func sqlType(t model.FieldType) string {
	switch t {
	case model.FieldInteger:
		return "INTEGER"
	case model.FieldReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// normalizeValue maps driver values onto the attribute types used by model.
func normalizeValue(v any, t model.FieldType) any {
	switch n := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(n)
	case int64:
		if t == model.FieldReal {
			return float64(n)
		}
		return n
	case float64:
		if t == model.FieldInteger && n == float64(int64(n)) {
			return int64(n)
		}
		return n
	default:
		return n
	}
}
