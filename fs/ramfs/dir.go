package ramfs

import (
	"quados/fs"
	"quados/kernel/sync"
)

// dir is a directory. Children keep their creation order.
type dir struct {
	attrs

	lock     sync.Spinlock
	children []node
}

func (fsys *FS) newDir(name string) *dir {
	return &dir{attrs: fsys.newAttrs(name)}
}

func (d *dir) entry() fs.DirEntry {
	return fs.DirEntry{Name: d.name, Type: fs.TypeDirectory}
}

// find returns the index of the child called name or -1. The caller must
// hold d.lock.
func (d *dir) find(name string) int {
	for i, child := range d.children {
		if child.entryName() == name {
			return i
		}
	}

	return -1
}

// add inserts child unless its name is taken.
func (d *dir) add(child node) error {
	if len(child.entryName()) > maxNameLen {
		return fs.ENAMETOOLONG
	}

	d.lock.Acquire()
	defer d.lock.Release()

	if d.find(child.entryName()) != -1 {
		return fs.EEXIST
	}

	d.children = append(d.children, child)
	return nil
}

// Metadata implements fs.INode.
func (d *dir) Metadata() (fs.Metadata, error) {
	d.lock.Acquire()
	children := len(d.children)
	d.lock.Release()

	return fs.Metadata{Name: d.name, Inode: d.inode, Type: fs.TypeDirectory, Children: children}, nil
}

// Open implements fs.INode.
func (d *dir) Open(name string, flags fs.OpenFlags) (fs.INode, error) {
	if flags.Has(fs.OpenCreate) {
		file := d.fsys.newFile(name)
		if err := d.add(file); err != nil {
			return nil, err
		}
		return file, nil
	}

	d.lock.Acquire()
	defer d.lock.Release()

	index := d.find(name)
	if index == -1 {
		return nil, fs.ENOENT
	}

	child := d.children[index]
	if _, isDir := child.(*dir); !isDir && flags.Has(fs.OpenDirectory) {
		return nil, fs.ENOTDIR
	}
	return child, nil
}

// Mkdir implements fs.INode.
func (d *dir) Mkdir(name string) (fs.INode, error) {
	child := d.fsys.newDir(name)
	if err := d.add(child); err != nil {
		return nil, err
	}

	return child, nil
}

// Link implements fs.INode.
func (d *dir) Link(name, src string) error {
	return d.add(d.fsys.newLink(name, src))
}

// Symlink implements fs.INode.
func (d *dir) Symlink(name, src string) error {
	return d.add(d.fsys.newLink(name, src))
}

// Rmdir implements fs.INode. Only empty directories can be removed.
func (d *dir) Rmdir(name string) error {
	return d.removeIf(name, func(child node) error {
		sub, isDir := child.(*dir)
		if !isDir {
			return fs.ENOTDIR
		}

		sub.lock.Acquire()
		defer sub.lock.Release()
		if len(sub.children) != 0 {
			return fs.ENOTEMPTY
		}
		return nil
	})
}

// Remove implements fs.INode. Files and links can be removed.
func (d *dir) Remove(name string) error {
	return d.removeIf(name, func(child node) error {
		if _, isDir := child.(*dir); isDir {
			return fs.EISDIR
		}
		return nil
	})
}

// Unlink implements fs.INode.
func (d *dir) Unlink(name string) error { return d.Remove(name) }

// removeIf drops every child called name accepted by check. It fails with
// ENOENT if nothing was removed.
func (d *dir) removeIf(name string, check func(node) error) error {
	d.lock.Acquire()
	defer d.lock.Release()

	var (
		kept    = d.children[:0]
		removed = 0
		err     = error(fs.ENOENT)
	)
	for _, child := range d.children {
		if child.entryName() == name {
			if err = check(child); err == nil {
				removed++
				continue
			}
		}
		kept = append(kept, child)
	}

	for i := len(kept); i < len(d.children); i++ {
		d.children[i] = nil
	}
	d.children = kept

	if removed == 0 {
		return err
	}
	return nil
}

// ReadDir implements fs.INode.
func (d *dir) ReadDir() ([]fs.DirEntry, error) {
	d.lock.Acquire()
	defer d.lock.Release()

	entries := make([]fs.DirEntry, 0, len(d.children))
	for _, child := range d.children {
		entries = append(entries, child.entry())
	}

	return entries, nil
}

// Stat implements fs.INode.
func (d *dir) Stat(st *fs.Stat) error {
	d.fillStat(st, fs.ModeDir|0o755, 0)
	return nil
}

// Poll implements fs.INode.
func (*dir) Poll(_ fs.PollEvent) (fs.PollEvent, error) { return 0, fs.EISDIR }

func (*dir) ReadAt(_ uint64, _ []byte) (int, error)  { return 0, fs.EISDIR }
func (*dir) WriteAt(_ uint64, _ []byte) (int, error) { return 0, fs.EISDIR }
func (*dir) Truncate(_ uint64) error                 { return fs.EISDIR }
