package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolver turns a dataset reference (local path, zip, or URL) into the
// path of a local .shp or .geojson file.
type Resolver struct {
	cacheDir string
	http     Fetcher
	ftp      Fetcher
}

// NewResolver creates a Resolver that downloads into cacheDir.
func NewResolver(cacheDir string, httpFetcher, ftpFetcher Fetcher) *Resolver {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "wildfire-cache")
	}
	return &Resolver{cacheDir: cacheDir, http: httpFetcher, ftp: ftpFetcher}
}

// IsRemote reports whether ref is an http(s) or ftp URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "ftp://")
}

// Resolve returns a local dataset path for ref. Remote files already in
// the cache with content are not downloaded again. Zip archives are
// extracted next to the cached copy.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", eris.New("fetcher: empty dataset reference")
	}

	local := ref
	if IsRemote(ref) {
		var err error
		local, err = r.download(ctx, ref)
		if err != nil {
			return "", err
		}
	} else if _, err := os.Stat(ref); err != nil {
		return "", eris.Wrapf(err, "fetcher: dataset %s", ref)
	}

	if strings.EqualFold(filepath.Ext(local), ".zip") {
		return r.unzip(local)
	}
	return local, nil
}

func (r *Resolver) download(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse %s", ref)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", eris.Errorf("fetcher: no file name in %s", ref)
	}
	dest := filepath.Join(r.cacheDir, sanitizeHost(u.Host), name)

	log := zap.L().With(zap.String("url", ref), zap.String("path", dest))
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		log.Debug("fetcher: using cached download")
		return dest, nil
	}

	f := r.http
	if strings.EqualFold(u.Scheme, "ftp") {
		f = r.ftp
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
	}

	n, err := f.DownloadToFile(ctx, ref, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", ref)
	}
	log.Info("fetcher: downloaded", zap.Int64("bytes", n))
	return dest, nil
}

func (r *Resolver) unzip(zipPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	dest := filepath.Join(r.cacheDir, "unzipped", base)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create %s", dest)
	}
	files, err := ExtractZIP(zipPath, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: extract %s", zipPath)
	}
	found, err := FindDataset(files)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: %s", zipPath)
	}
	zap.L().Debug("fetcher: extracted", zap.String("zip", zipPath), zap.String("dataset", found))
	return found, nil
}

func sanitizeHost(host string) string {
	if host == "" {
		return "local"
	}
	return strings.NewReplacer(":", "_", "/", "_").Replace(host)
}
