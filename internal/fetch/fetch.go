package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Kind classifies fetch failures.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindIO       Kind = "io"
	KindChecksum Kind = "checksum"
)

// partPattern names in-flight transfers; each gets its own file so concurrent
// fetches of one destination never share a temp file.
const partPattern = ".*.part"

// Error describes a failed fetch.
type Error struct {
	Kind Kind
	URL  string
	Dest string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a fetch Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// Artifact is a single file to make present on disk.
type Artifact struct {
	URL  string
	Dest string
	// SHA1 and Size are verified when non-zero.
	SHA1 string
	Size int64
}

// Fetcher downloads artifacts.
type Fetcher struct {
	client   *http.Client
	log      func(string)
	timeout  time.Duration
	parallel int
}

// Option customizes a Fetcher during construction.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLogger sets the sink that receives progress lines.
func WithLogger(log func(string)) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

// WithTimeout bounds a single transfer. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithParallel caps how many transfers EnsureAll runs at once.
func WithParallel(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.parallel = n
		}
	}
}

// New builds a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		parallel: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.log != nil {
		f.log(fmt.Sprintf(format, args...))
	}
}

// Ensure makes a.Dest exist. Missing parent directories are created. An
// existing file is kept unless the artifact declares a size it does not
// match.
func (f *Fetcher) Ensure(ctx context.Context, a Artifact) error {
	if err := os.MkdirAll(filepath.Dir(a.Dest), 0o755); err != nil {
		return &Error{Kind: KindIO, URL: a.URL, Dest: a.Dest, Err: err}
	}
	info, err := os.Stat(a.Dest)
	switch {
	case err == nil && info.IsDir():
		return &Error{Kind: KindIO, URL: a.URL, Dest: a.Dest, Err: fmt.Errorf("%s is a directory", a.Dest)}
	case err == nil && a.Size > 0 && info.Size() != a.Size:
		f.logf("[Warn] Size mismatch, refetching: %s", a.Dest)
	case err == nil:
		f.logf("[Skip] %s", a.Dest)
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: KindIO, URL: a.URL, Dest: a.Dest, Err: err}
	}

	f.logf("[Download] %s", a.URL)
	n, err := f.download(ctx, a)
	if err != nil {
		return err
	}
	f.logf("[Done] %s (%s)", filepath.Base(a.Dest), humanize.Bytes(uint64(n)))
	return nil
}

func (f *Fetcher) download(ctx context.Context, a Artifact) (int64, error) {
	fail := func(kind Kind, err error) (int64, error) {
		return 0, &Error{Kind: kind, URL: a.URL, Dest: a.Dest, Err: err}
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fail(KindNetwork, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fail(KindNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(KindNetwork, fmt.Errorf("unexpected status %s", resp.Status))
	}

	out, err := os.CreateTemp(filepath.Dir(a.Dest), filepath.Base(a.Dest)+partPattern)
	if err != nil {
		return fail(KindIO, err)
	}
	tmp := out.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	hasher := sha1.New()
	n, copyErr := io.Copy(io.MultiWriter(out, hasher), resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return fail(KindNetwork, copyErr)
	}
	if closeErr != nil {
		return fail(KindIO, closeErr)
	}
	if a.Size > 0 && n != a.Size {
		return fail(KindChecksum, fmt.Errorf("size %d, want %d", n, a.Size))
	}
	if want := strings.ToLower(a.SHA1); want != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != want {
			return fail(KindChecksum, fmt.Errorf("sha1 %s, want %s", got, want))
		}
	}
	if err := os.Rename(tmp, a.Dest); err != nil {
		return fail(KindIO, err)
	}
	committed = true
	return n, nil
}

// EnsureAll fetches every artifact, at most WithParallel at a time. A failed
// artifact is logged and does not stop the others; the failures are returned
// once the whole batch has settled.
func (f *Fetcher) EnsureAll(ctx context.Context, artifacts []Artifact) []error {
	errs := make([]error, len(artifacts))
	var g errgroup.Group
	g.SetLimit(f.parallel)
	for i, a := range artifacts {
		i, a := i, a
		g.Go(func() error {
			if err := f.Ensure(ctx, a); err != nil {
				f.logf("[Error] Downloading failed: %v", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}
