package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/model"
)

func writeCSV(w io.Writer, ds *model.Dataset) error {
	cw := csv.NewWriter(w)

	cols := header(ds)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "csv export: write header")
	}

	row := make([]string, len(cols))
	for _, feat := range ds.Features {
		row[0] = strconv.FormatInt(feat.FID, 10)
		for i, f := range ds.Fields {
			row[i+1] = formatValue(feat.Value(f.Name))
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "csv export: write row %d", feat.FID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "csv export: flush")
}
