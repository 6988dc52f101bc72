package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

func writeXLSX(w io.Writer, ds *model.Dataset) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName(ds.Name))
	if err != nil {
		return eris.Wrap(err, "xlsx export: add sheet")
	}

	cols := header(ds)
	hdr := sheet.AddRow()
	for _, c := range cols {
		hdr.AddCell().SetString(c)
	}

	for _, feat := range ds.Features {
		row := sheet.AddRow()
		row.AddCell().SetInt64(feat.FID)
		for _, field := range ds.Fields {
			cell := row.AddCell()
			switch v := feat.Value(field.Name).(type) {
			case nil:
				cell.SetString("")
			case int64:
				cell.SetInt64(v)
			case float64:
				cell.SetFloat(v)
			default:
				cell.SetString(formatValue(v))
			}
		}
	}

	return eris.Wrap(f.Write(w), "xlsx export: write")
}

func sheetName(name string) string {
	if name == "" {
		return "Sheet1"
	}
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}
