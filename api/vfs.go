// File: api/vfs.go
// Author: momentics <momentics@gmail.com>
//
// Path/URI resolution collaborator. Streams are built from the handles it
// returns; the stream core never calls it.

package api

// File is a resolved file handle.
type File interface {
	// Path returns the local filesystem path.
	Path() string
	// URI returns the file:// form of Path.
	URI() string
}

// Resolver maps paths and URIs to file handles.
type Resolver interface {
	// FileForPath never fails for a non-empty path; the file need not exist.
	FileForPath(path string) (File, error)
	// FileForURI returns ErrNotFound for URIs it cannot map to a local path.
	FileForURI(uri string) (File, error)
	// ParseName accepts either a URI or a user-visible path.
	ParseName(name string) (File, error)
}
