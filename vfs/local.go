// File: vfs/local.go
// Author: momentics <momentics@gmail.com>
//
// Resolver for the local filesystem.

package vfs

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/stream"
	"golang.org/x/sys/unix"
)

const schemeFile = "file"

// Local resolves paths and file:// URIs. The zero value is ready to use.
type Local struct{}

var _ api.Resolver = Local{}

// File is a local filesystem handle. The file need not exist.
type File struct {
	path string
}

var _ api.File = (*File)(nil)

// FileForPath returns a handle for path, made absolute against the working
// directory.
func (Local) FileForPath(path string) (api.File, error) {
	f, err := newFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FileForURI maps a file:// URI to a handle. URIs with any other scheme, or
// with a non-local host, return api.ErrNotFound.
func (Local) FileForURI(uri string) (api.File, error) {
	path, err := pathFromURI(uri)
	if err != nil {
		return nil, err
	}
	return newFile(path)
}

// ParseName accepts a "file:" URI (scheme matched case-insensitively) or a
// plain path.
func (l Local) ParseName(name string) (api.File, error) {
	if len(name) >= 5 && strings.EqualFold(name[:5], "file:") {
		return l.FileForURI(name)
	}
	return l.FileForPath(name)
}

func newFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("vfs: empty path: %w", api.ErrNotFound)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("vfs: resolve %q: %w", path, err)
	}
	return &File{path: abs}, nil
}

func pathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("vfs: parse %q: %w", uri, api.ErrNotFound)
	}
	if !strings.EqualFold(u.Scheme, schemeFile) {
		return "", fmt.Errorf("vfs: scheme %q: %w", u.Scheme, api.ErrNotFound)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("vfs: remote host %q: %w", u.Host, api.ErrNotFound)
	}
	if u.Path == "" || !filepath.IsAbs(u.Path) {
		return "", fmt.Errorf("vfs: relative file URI %q: %w", uri, api.ErrNotFound)
	}
	return u.Path, nil
}

// Path implements api.File.
func (f *File) Path() string { return f.path }

// URI implements api.File.
func (f *File) URI() string {
	u := url.URL{Scheme: schemeFile, Path: f.path}
	return u.String()
}

func (f *File) String() string { return f.path }

// Create truncates or creates the file and returns an owning stream over it.
func (f *File) Create(opts ...stream.Option) (*stream.Stream, error) {
	return f.open(unix.O_CREAT|unix.O_TRUNC, opts)
}

// Append opens the file for appending, creating it if needed.
func (f *File) Append(opts ...stream.Option) (*stream.Stream, error) {
	return f.open(unix.O_CREAT|unix.O_APPEND, opts)
}

func (f *File) open(flags int, opts []stream.Option) (*stream.Stream, error) {
	for {
		fd, err := unix.Open(f.path, flags|unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0o666)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, api.NewIOError("open", err)
		}
		return stream.New(fd, true, opts...), nil
	}
}
