package fs

import (
	"path"
	"strings"
	"weak"

	"quados/kernel/sync"
)

// Dentry caches the result of resolving a name. Children are indexed by
// name; every name holds a list of dentries where the last one shadows the
// others. Parents are referenced weakly so that the tree owns dentries only
// from the top down.
type Dentry struct {
	node   INode
	parent weak.Pointer[Dentry]

	lock     sync.Spinlock
	children map[string][]*Dentry
}

func newDentry(node INode, parent *Dentry) *Dentry {
	d := &Dentry{node: node, children: make(map[string][]*Dentry)}
	if parent != nil {
		d.parent = weak.Make(parent)
	}

	return d
}

// Node returns the file system node behind the dentry.
func (d *Dentry) Node() INode { return d.node }

// Parent returns the parent dentry or nil for a tree root.
func (d *Dentry) Parent() *Dentry { return d.parent.Value() }

// lookup resolves a single path component. Names missing from the cache
// are resolved by the node and cached for good.
func (d *Dentry) lookup(name string, flags OpenFlags) (*Dentry, error) {
	switch name {
	case "..":
		parent := d.parent.Value()
		if parent == nil {
			return nil, ENOENT
		}
		return parent, nil
	case ".":
		return d, nil
	}

	d.lock.Acquire()
	defer d.lock.Release()

	if list := d.children[name]; len(list) != 0 {
		if flags.Has(OpenCreate) {
			return nil, EEXIST
		}

		child := list[len(list)-1]
		if flags.Has(OpenDirectory) {
			meta, err := child.node.Metadata()
			if err != nil {
				return nil, err
			}
			if meta.Type != TypeDirectory {
				return nil, ENOTDIR
			}
		}
		return child, nil
	}

	node, err := d.node.Open(name, flags)
	if err != nil {
		return nil, err
	}

	child := newDentry(node, d)
	d.children[name] = append(d.children[name], child)
	return child, nil
}

// forget applies remove to name and drops the cached dentry on success.
// Names with a file system mounted on top cannot be removed.
func (d *Dentry) forget(name string, remove func(string) error) error {
	d.lock.Acquire()
	defer d.lock.Release()

	if len(d.children[name]) > 1 {
		return EBUSY
	}

	if err := remove(name); err != nil {
		return err
	}

	delete(d.children, name)
	return nil
}

// stack pushes a dentry for node on top of the entries cached for name.
func (d *Dentry) stack(name string, node INode) {
	d.lock.Acquire()
	d.children[name] = append(d.children[name], newDentry(node, d))
	d.lock.Release()
}

// Mount records a file system mounted into a FileTree.
type Mount struct {
	Path string
	FS   FileSystem
}

// FileTree is the tree of mounted file systems.
type FileTree struct {
	lock   sync.Spinlock
	mounts []Mount
	roots  []*Dentry
}

// NewFileTree returns an empty tree. A file system must be mounted at "/"
// before any path can be resolved.
func NewFileTree() *FileTree {
	return &FileTree{}
}

func isRootPath(p string) bool {
	return p == "/" || p == "" || p == "."
}

// Mount attaches fsys at mountPoint. Mounting at the root pushes a new tree
// root which shadows the previous ones. Any other mount point must be an
// existing directory; the root of fsys is stacked on top of it.
func (t *FileTree) Mount(mountPoint string, fsys FileSystem) error {
	if isRootPath(mountPoint) {
		t.lock.Acquire()
		t.mounts = append(t.mounts, Mount{Path: "/", FS: fsys})
		t.roots = append(t.roots, newDentry(fsys.Root(), nil))
		t.lock.Release()
		return nil
	}

	target, err := t.Root().Open(mountPoint, OpenDirectory)
	if err != nil {
		return err
	}

	parent := target.dentry.Parent()
	if parent == nil {
		return EBUSY
	}
	parent.stack(path.Base(path.Clean(mountPoint)), fsys.Root())

	t.lock.Acquire()
	t.mounts = append(t.mounts, Mount{Path: target.Path(), FS: fsys})
	t.lock.Release()
	return nil
}

// Mounts returns the mounted file systems in mount order.
func (t *FileTree) Mounts() []Mount {
	t.lock.Acquire()
	defer t.lock.Release()

	return append([]Mount(nil), t.mounts...)
}

func (t *FileTree) rootDentry() *Dentry {
	t.lock.Acquire()
	defer t.lock.Release()

	if len(t.roots) == 0 {
		panic("fs: no file system mounted at /")
	}
	return t.roots[len(t.roots)-1]
}

// Root returns the root directory of the most recent file system mounted
// at "/". It panics if nothing is mounted there.
func (t *FileTree) Root() *DentryFile {
	return &DentryFile{dentry: t.rootDentry(), path: "/", tree: t}
}

// Open resolves name relative to the tree root.
func (t *FileTree) Open(name string, flags OpenFlags) (*DentryFile, error) {
	return t.Root().Open(name, flags)
}

// MkdirAll creates the directory called name along with any missing
// parents.
func (t *FileTree) MkdirAll(name string) error {
	dir := t.Root()
	for _, component := range splitPath(name) {
		next, err := dir.Open(component, OpenDirectory)
		if err == ENOENT {
			if _, err = dir.Mkdir(component); err == nil {
				next, err = dir.Open(component, OpenDirectory)
			}
		}
		if err != nil {
			return err
		}
		dir = next
	}

	return nil
}

// DentryFile is a resolved node together with the path used to reach it.
type DentryFile struct {
	dentry *Dentry
	path   string
	tree   *FileTree
}

// Open resolves name relative to f. Absolute names restart at the tree
// root. Every component but the last is opened as a directory; flags only
// apply to the last one.
func (f *DentryFile) Open(name string, flags OpenFlags) (*DentryFile, error) {
	dentry, base := f.dentry, f.path
	if strings.HasPrefix(name, "/") {
		dentry, base = f.tree.rootDentry(), "/"
	}

	components := splitPath(name)
	for i, component := range components {
		componentFlags := OpenDirectory
		if i == len(components)-1 {
			componentFlags = flags
		}

		var err error
		if dentry, err = dentry.lookup(component, componentFlags); err != nil {
			return nil, err
		}
	}

	return &DentryFile{dentry: dentry, path: path.Join(base, name), tree: f.tree}, nil
}

func splitPath(name string) []string {
	var out []string
	for _, component := range strings.Split(name, "/") {
		if component != "" {
			out = append(out, component)
		}
	}

	return out
}

// Path returns the cleaned path f was opened with.
func (f *DentryFile) Path() string { return f.path }

// Node returns the file system node behind f.
func (f *DentryFile) Node() INode { return f.dentry.node }

func (f *DentryFile) Metadata() (Metadata, error)                    { return f.dentry.node.Metadata() }
func (f *DentryFile) ReadAt(offset uint64, buf []byte) (int, error)  { return f.dentry.node.ReadAt(offset, buf) }
func (f *DentryFile) WriteAt(offset uint64, buf []byte) (int, error) { return f.dentry.node.WriteAt(offset, buf) }
func (f *DentryFile) Mkdir(name string) (INode, error)               { return f.dentry.node.Mkdir(name) }
func (f *DentryFile) ReadDir() ([]DirEntry, error)                   { return f.dentry.node.ReadDir() }
func (f *DentryFile) Ioctl(cmd, arg uintptr) (uintptr, error)        { return f.dentry.node.Ioctl(cmd, arg) }
func (f *DentryFile) Truncate(size uint64) error                     { return f.dentry.node.Truncate(size) }
func (f *DentryFile) Flush() error                                   { return f.dentry.node.Flush() }
func (f *DentryFile) ResolveLink() (string, error)                   { return f.dentry.node.ResolveLink() }
func (f *DentryFile) Link(name, src string) error                    { return f.dentry.node.Link(name, src) }
func (f *DentryFile) Symlink(name, src string) error                 { return f.dentry.node.Symlink(name, src) }
func (f *DentryFile) Stat(st *Stat) error                            { return f.dentry.node.Stat(st) }
func (f *DentryFile) StatFS(st *StatFS) error                        { return f.dentry.node.StatFS(st) }
func (f *DentryFile) Utimes(times []TimeSpec) error                  { return f.dentry.node.Utimes(times) }
func (f *DentryFile) Poll(events PollEvent) (PollEvent, error)       { return f.dentry.node.Poll(events) }

// Rmdir removes the directory called name.
func (f *DentryFile) Rmdir(name string) error { return f.dentry.forget(name, f.dentry.node.Rmdir) }

// Remove removes the file or link called name.
func (f *DentryFile) Remove(name string) error { return f.dentry.forget(name, f.dentry.node.Remove) }

// Unlink removes the link called name.
func (f *DentryFile) Unlink(name string) error { return f.dentry.forget(name, f.dentry.node.Unlink) }
