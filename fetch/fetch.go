// Package fetch makes the dataset available locally before a run. It is the
// only package that performs network I/O.
package fetch

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// Downloader is the subset of *s3manager.Downloader used here.
type Downloader interface {
	DownloadWithContext(ctx aws.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*s3manager.Downloader)) (int64, error)
}

// Fetcher copies a dataset from its source to a local path once.
type Fetcher struct {
	fs         afero.Fs
	region     string
	downloader Downloader
	logger     log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDownloader sets the S3 downloader. By default one is created from the
// environment's AWS session on first use.
func WithDownloader(d Downloader) Option {
	return func(f *Fetcher) { f.downloader = d }
}

// WithRegion sets the region of the default downloader.
func WithRegion(region string) Option {
	return func(f *Fetcher) { f.region = region }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New creates a Fetcher writing to fs.
func New(fs afero.Fs, opts ...Option) *Fetcher {
	f := &Fetcher{
		fs:     fs,
		logger: log.GetLoggerWithName("fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ensure makes localPath exist. An existing file is kept as is. Otherwise
// source is copied there: an s3://bucket/key object is downloaded and a
// plain path is copied. The file appears only once it is complete.
func (f *Fetcher) Ensure(ctx context.Context, source, localPath string) error {
	exists, err := afero.Exists(f.fs, localPath)
	if err != nil {
		return errors.Wrapf(err, "stat %s", localPath)
	}
	if exists {
		f.logger.Info("Dataset already present, skipping download", log.OutputKey, localPath)
		return nil
	}
	if source == "" || source == localPath {
		return errors.NewDataError(localPath, "dataset not found and no source configured")
	}

	u, err := url.Parse(source)
	if err != nil {
		return errors.NewDataError(source, "invalid dataset source: "+err.Error())
	}

	start := time.Now()
	var written int64
	switch u.Scheme {
	case "s3":
		written, err = f.install(localPath, func(w tempFile) (int64, error) {
			return f.download(ctx, u, w)
		})
	case "", "file":
		written, err = f.install(localPath, func(w tempFile) (int64, error) {
			return f.copyLocal(u.Path, w)
		})
	default:
		return errors.NewDataError(source, "unsupported dataset source scheme "+u.Scheme)
	}
	if err != nil {
		return err
	}

	f.logger.Info("Dataset fetched",
		log.SourceKey, source,
		log.OutputKey, localPath,
		"size", humanize.IBytes(uint64(written)),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

type tempFile interface {
	io.Writer
	io.WriterAt
}

// install writes through fill into a temporary file next to localPath and
// renames it into place.
func (f *Fetcher) install(localPath string, fill func(w tempFile) (int64, error)) (int64, error) {
	dir := filepath.Dir(localPath)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(localPath)+".part-*")
	if err != nil {
		return 0, errors.Wrapf(err, "create temporary file in %s", dir)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = f.fs.Remove(tmp.Name())
	}

	n, err := fill(tmp)
	if err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmp.Name())
		return 0, errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := f.fs.Rename(tmp.Name(), localPath); err != nil {
		_ = f.fs.Remove(tmp.Name())
		return 0, errors.Wrapf(err, "rename into %s", localPath)
	}
	return n, nil
}

func (f *Fetcher) download(ctx context.Context, u *url.URL, w io.WriterAt) (int64, error) {
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return 0, errors.NewDataError(u.String(), "s3 source must be s3://bucket/key")
	}
	d, err := f.s3Downloader()
	if err != nil {
		return 0, err
	}
	n, err := d.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "download %s", u)
	}
	return n, nil
}

func (f *Fetcher) s3Downloader() (Downloader, error) {
	if f.downloader != nil {
		return f.downloader, nil
	}
	cfg := aws.NewConfig()
	if f.region != "" {
		cfg = cfg.WithRegion(f.region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create AWS session")
	}
	f.downloader = s3manager.NewDownloader(sess)
	return f.downloader, nil
}

func (f *Fetcher) copyLocal(path string, w io.Writer) (int64, error) {
	src, err := f.fs.Open(path)
	if err != nil {
		return 0, errors.NewDataError(path, "dataset source not readable: "+err.Error())
	}
	defer src.Close()

	n, err := io.Copy(w, src)
	if err != nil {
		return 0, errors.Wrapf(err, "copy %s", path)
	}
	return n, nil
}
