// Package fs defines the contract implemented by file system nodes and the
// tree of mounted file systems used to resolve paths.
package fs

// INode is implemented by every node of a file system. Operations that make
// no sense for a node kind fail with an error instead of being omitted.
type INode interface {
	// Metadata describes the node.
	Metadata() (Metadata, error)

	// ReadAt fills buf with the contents starting at offset and returns
	// the number of bytes read. Reading past the end returns 0.
	ReadAt(offset uint64, buf []byte) (int, error)

	// WriteAt stores buf at offset, growing the node as needed.
	WriteAt(offset uint64, buf []byte) (int, error)

	// Open looks up the child called name. With OpenCreate a new empty
	// file is created instead.
	Open(name string, flags OpenFlags) (INode, error)

	Mkdir(name string) (INode, error)
	Rmdir(name string) error
	Remove(name string) error

	// ReadDir lists the direct children of the node.
	ReadDir() ([]DirEntry, error)

	Ioctl(cmd, arg uintptr) (uintptr, error)
	Truncate(size uint64) error
	Flush() error

	// ResolveLink returns the path a link node points to.
	ResolveLink() (string, error)

	// Link and Symlink create an entry called name that refers to src.
	Link(name, src string) error
	Symlink(name, src string) error
	Unlink(name string) error

	Stat(st *Stat) error
	StatFS(st *StatFS) error

	// Utimes updates the access and modification times from times[0]
	// and times[1].
	Utimes(times []TimeSpec) error

	Poll(events PollEvent) (PollEvent, error)
}

// Unsupported implements every INode operation by failing with EACCES.
// Nodes embed it and override the operations they support.
type Unsupported struct{}

func (Unsupported) Metadata() (Metadata, error)               { return Metadata{}, EACCES }
func (Unsupported) ReadAt(_ uint64, _ []byte) (int, error)    { return 0, EACCES }
func (Unsupported) WriteAt(_ uint64, _ []byte) (int, error)   { return 0, EACCES }
func (Unsupported) Open(_ string, _ OpenFlags) (INode, error) { return nil, EACCES }
func (Unsupported) Mkdir(_ string) (INode, error)             { return nil, EACCES }
func (Unsupported) Rmdir(_ string) error                      { return EACCES }
func (Unsupported) Remove(_ string) error                     { return EACCES }
func (Unsupported) ReadDir() ([]DirEntry, error)              { return nil, EACCES }
func (Unsupported) Ioctl(_, _ uintptr) (uintptr, error)       { return 0, EACCES }
func (Unsupported) Truncate(_ uint64) error                   { return EACCES }
func (Unsupported) Flush() error                              { return EACCES }
func (Unsupported) ResolveLink() (string, error)              { return "", EACCES }
func (Unsupported) Link(_, _ string) error                    { return EACCES }
func (Unsupported) Symlink(_, _ string) error                 { return EACCES }
func (Unsupported) Unlink(_ string) error                     { return EACCES }
func (Unsupported) Stat(_ *Stat) error                        { return EACCES }
func (Unsupported) StatFS(_ *StatFS) error                    { return EACCES }
func (Unsupported) Utimes(_ []TimeSpec) error                 { return EACCES }
func (Unsupported) Poll(_ PollEvent) (PollEvent, error)       { return 0, EACCES }

// FileSystem is a mountable file system.
type FileSystem interface {
	// Root returns the root directory of the file system.
	Root() INode

	// Name returns the file system type name.
	Name() string

	// Flush writes back any cached state.
	Flush() error
}
