package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks a dataset archive into destDir and returns the paths
// of the extracted files. Finder metadata entries (__MACOSX/, ._*) that
// often ride along in shapefile archives are skipped.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || isFinderMetadata(f.Name) {
			continue
		}
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, path)
	}
	return extracted, nil
}

func isFinderMetadata(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(filepath.Base(name), "._")
}

// FindDataset returns the single dataset file (.shp, .geojson, or .json)
// among paths. Shapefiles win over GeoJSON; more than one candidate of the
// winning kind is an error.
func FindDataset(paths []string) (string, error) {
	var shps, jsons []string
	for _, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".shp":
			shps = append(shps, p)
		case ".geojson", ".json":
			jsons = append(jsons, p)
		}
	}
	candidates := shps
	if len(candidates) == 0 {
		candidates = jsons
	}
	switch len(candidates) {
	case 0:
		return "", eris.New("zip: no shapefile or geojson in archive")
	case 1:
		return candidates[0], nil
	default:
		return "", eris.Errorf("zip: %d datasets in archive, expected one", len(candidates))
	}
}

// extractZIPEntry writes one archive file below destDir, rejecting entries
// that would land outside it.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: entry %q escapes the extraction directory", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeFile(destPath, rc); err != nil {
		return "", eris.Wrapf(err, "zip: extract %s", f.Name)
	}
	return destPath, nil
}
