package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// PredicateError reports an attribute predicate the workspace could not
// evaluate against a dataset: a syntax error, an unknown field, or a
// statement separator.
type PredicateError struct {
	Dataset   string
	Predicate string
	Err       error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("workspace: invalid predicate %q on %s: %v", e.Predicate, e.Dataset, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }

// SelectFIDs returns the FIDs of the features of name that satisfy where, an
// SQL boolean expression over the dataset's fields. An empty where selects
// every feature. FIDs are returned in ascending order.
func (s *Store) SelectFIDs(ctx context.Context, name, where string) ([]int64, error) {
	info, err := s.Info(ctx, name)
	if err != nil {
		return nil, err
	}

	where = strings.TrimSpace(where)
	if strings.Contains(where, ";") {
		return nil, &PredicateError{Dataset: name, Predicate: where, Err: eris.New("statement separators are not allowed")}
	}
	// SQLite reads an unknown double-quoted identifier as a string literal.
	idents, err := quotedIdents(where)
	if err != nil {
		return nil, &PredicateError{Dataset: name, Predicate: where, Err: err}
	}
	for _, id := range idents {
		if !hasColumn(info, id) {
			return nil, &PredicateError{Dataset: name, Predicate: where, Err: eris.Errorf("unknown field %q", id)}
		}
	}

	query := "SELECT " + fidColumn + " FROM " + tableName(name)
	if where != "" {
		query += " WHERE (" + where + ")"
	}
	query += " ORDER BY " + fidColumn

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &PredicateError{Dataset: name, Predicate: where, Err: err}
	}
	defer rows.Close() //nolint:errcheck

	fids := []int64{}
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			return nil, eris.Wrapf(err, "workspace: scan fid %s", name)
		}
		fids = append(fids, fid)
	}
	if err := rows.Err(); err != nil {
		return nil, &PredicateError{Dataset: name, Predicate: where, Err: err}
	}
	return fids, nil
}

// quotedIdents returns the double-quoted identifiers in where, skipping
// single-quoted string literals. Doubled quotes escape inside either form.
func quotedIdents(where string) ([]string, error) {
	var idents []string
	for i := 0; i < len(where); i++ {
		q := where[i]
		if q != '\'' && q != '"' {
			continue
		}
		var b strings.Builder
		closed := false
		for i++; i < len(where); i++ {
			if where[i] != q {
				b.WriteByte(where[i])
				continue
			}
			if i+1 < len(where) && where[i+1] == q {
				b.WriteByte(q)
				i++
				continue
			}
			closed = true
			break
		}
		if !closed {
			return nil, eris.Errorf("unterminated %c quote", q)
		}
		if q == '"' {
			idents = append(idents, b.String())
		}
	}
	return idents, nil
}

func hasColumn(info *DatasetInfo, name string) bool {
	if strings.EqualFold(name, fidColumn) {
		return true
	}
	for _, f := range info.Fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Count returns the number of features in name.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	if _, err := s.Info(ctx, name); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName(name)).Scan(&n)
	return n, eris.Wrapf(err, "workspace: count %s", name)
}
