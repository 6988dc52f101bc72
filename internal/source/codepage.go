package source

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// cpgAliases maps code page identifiers written by desktop GIS tools to
// names understood by the WHATWG encoding index.
var cpgAliases = map[string]string{
	"88591":  "iso-8859-1",
	"8859_1": "iso-8859-1",
	"1252":   "windows-1252",
	"ansi":   "windows-1252",
	"65001":  "utf-8",
	"utf8":   "utf-8",
}

// codePageDecoder returns the decoder declared by the .cpg sidecar next to
// shpPath, or nil when the sidecar is absent or declares UTF-8.
func codePageDecoder(shpPath string) (*encoding.Decoder, error) {
	cpgPath := strings.TrimSuffix(shpPath, ".shp") + ".cpg"
	data, err := os.ReadFile(cpgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "source: read code page %s", cpgPath)
	}
	return decoderFor(string(data))
}

func decoderFor(name string) (*encoding.Decoder, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, nil
	}
	if alias, ok := cpgAliases[key]; ok {
		key = alias
	}
	if key == "utf-8" {
		return nil, nil
	}

	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, eris.Wrapf(err, "source: unknown code page %q", name)
	}
	return enc.NewDecoder(), nil
}
