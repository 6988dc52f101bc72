package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultFTPPort    = "21"
	anonymousUser     = "anonymous"
	anonymousPassword = "anonymous@"
)

// FTPOptions configures the FTP fetcher. User and Password apply to every
// server unless the URL carries its own credentials.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
}

// FTPFetcher downloads datasets published on FTP servers, such as the
// PAD-US and ecoregion archives.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher. Without credentials it logs in
// anonymously.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User, opts.Password = anonymousUser, anonymousPassword
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is a parsed ftp:// dataset reference.
type ftpTarget struct {
	addr     string
	path     string
	user     string
	password string
}

// parseFTPTarget splits an ftp:// URL into a dial address (port 21 unless
// given), the remote path, and any credentials embedded in the URL.
func parseFTPTarget(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.Errorf("ftp: no file path in %q", rawURL)
	}

	t := ftpTarget{addr: u.Host, path: u.Path}
	if _, _, err := net.SplitHostPort(t.addr); err != nil {
		t.addr = net.JoinHostPort(u.Hostname(), defaultFTPPort)
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ftpFile streams one retrieved file and releases its control connection
// on Close.
type ftpFile struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (f *ftpFile) Read(p []byte) (int, error) {
	return f.resp.Read(p)
}

func (f *ftpFile) Close() error {
	respErr := f.resp.Close()
	quitErr := f.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close transfer")
	}
	return eris.Wrap(quitErr, "ftp: quit")
}

// Download logs in, starts retrieving the file, and returns a reader over
// it. Closing the reader ends the FTP session.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	target, err := parseFTPTarget(ftpURL)
	if err != nil {
		return nil, err
	}
	user, password := f.opts.User, f.opts.Password
	if target.user != "" {
		user, password = target.user, target.password
	}

	log := zap.L().With(zap.String("component", "fetcher.ftp"), zap.String("addr", target.addr), zap.String("path", target.path))
	log.Debug("ftp: connecting")

	conn, err := ftp.Dial(target.addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", target.addr)
	}
	if err := conn.Login(user, password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: login %s as %s", target.addr, user)
	}

	if size, err := conn.FileSize(target.path); err == nil {
		log.Debug("ftp: remote file size", zap.Int64("bytes", size))
	}

	resp, err := conn.Retr(target.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", target.path)
	}
	return &ftpFile{resp: resp, conn: conn}, nil
}

// DownloadToFile retrieves ftpURL into path and returns the bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	n, err := writeFile(path, rc)
	if err != nil {
		return n, eris.Wrapf(err, "ftp: save %s", ftpURL)
	}
	return n, nil
}
