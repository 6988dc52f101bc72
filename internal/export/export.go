// Package export writes workspace datasets to flat files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
)

// FIDColumn is the preferred name of the leading column of tabular exports.
const FIDColumn = "FID"

// ParseFormat validates a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatGeoJSON:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// FileName returns the export file name for a dataset.
func FileName(dataset string, f Format) string {
	return dataset + f.Ext()
}

// Write exports ds to path in format f. The file appears atomically: a
// failed export leaves no partial file at path.
func Write(ds *model.Dataset, path string, f Format) error {
	switch f {
	case FormatCSV:
		return writeAtomic(path, func(file *os.File) error { return writeCSV(file, ds) })
	case FormatXLSX:
		return writeAtomic(path, func(file *os.File) error { return writeXLSX(file, ds) })
	case FormatGeoJSON:
		return writeAtomic(path, func(file *os.File) error { return writeGeoJSON(file, ds) })
	default:
		return eris.Errorf("export: unknown format %q", f)
	}
}

func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := write(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close temp file")
	}
	return eris.Wrapf(os.Rename(tmpName, path), "export: rename to %s", path)
}

// header returns the tabular column names: a leading row-id column, then
// every dataset field. The row-id column is FID unless the dataset already
// has such a field, in which case it takes the first free FID_<n>.
func header(ds *model.Dataset) []string {
	cols := make([]string, 0, len(ds.Fields)+1)
	cols = append(cols, ds.UniqueName(FIDColumn))
	return append(cols, ds.FieldNames()...)
}

// formatValue renders an attribute value as text. Nil is the empty string.
func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprint(n)
	}
}
