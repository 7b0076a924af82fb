package ramfs

import (
	"runtime"

	"quados/fs"
	"quados/kernel/sync"
)

// content holds the pages of a file. Its length is tracked separately from
// the page count; bytes past the length are always zero.
type content struct {
	fsys *FS

	lock   sync.Spinlock
	length uint64
	pages  []*fs.Pages
}

// release returns every page to the allocator.
func (c *content) release() {
	c.lock.Acquire()
	pages := c.pages
	c.pages = nil
	c.lock.Release()

	c.fsys.releasePages(pages)
}

// grow appends pages until there are count of them. If a page cannot be
// obtained the pages added by this call are released again. The caller
// must hold c.lock.
func (c *content) grow(count uint64) error {
	before := len(c.pages)
	for uint64(len(c.pages)) < count {
		page, err := c.fsys.allocPage()
		if err != nil {
			added := c.pages[before:]
			c.fsys.releasePages(added)
			clear(added)
			c.pages = c.pages[:before]
			return err
		}
		c.pages = append(c.pages, page)
	}

	return nil
}

// leaf implements the directory operations of nodes that have no
// children.
type leaf struct {
	attrs
}

func (*leaf) Open(_ string, _ fs.OpenFlags) (fs.INode, error) { return nil, fs.ENOTDIR }
func (*leaf) Mkdir(_ string) (fs.INode, error)                { return nil, fs.ENOTDIR }
func (*leaf) ReadDir() ([]fs.DirEntry, error)                 { return nil, fs.ENOTDIR }
func (*leaf) Rmdir(_ string) error                            { return fs.ENOTDIR }
func (*leaf) Remove(_ string) error                           { return fs.ENOTDIR }
func (*leaf) Unlink(_ string) error                           { return fs.ENOTDIR }
func (*leaf) Link(_, _ string) error                          { return fs.ENOTDIR }
func (*leaf) Symlink(_, _ string) error                       { return fs.ENOTDIR }

// file is a regular file.
type file struct {
	leaf

	data *content
}

func (fsys *FS) newFile(name string) *file {
	f := &file{leaf: leaf{attrs: fsys.newAttrs(name)}, data: &content{fsys: fsys}}

	// The pages go back to the allocator once nothing references the file.
	runtime.AddCleanup(f, (*content).release, f.data)
	return f
}

func pagesFor(size uint64) uint64 { return (size + fs.PageSize - 1) / fs.PageSize }

func (f *file) size() uint64 {
	f.data.lock.Acquire()
	defer f.data.lock.Release()

	return f.data.length
}

func (f *file) entry() fs.DirEntry {
	return fs.DirEntry{Name: f.name, Size: f.size(), Type: fs.TypeFile}
}

// Metadata implements fs.INode.
func (f *file) Metadata() (fs.Metadata, error) {
	return fs.Metadata{Name: f.name, Inode: f.inode, Type: fs.TypeFile, Size: f.size()}, nil
}

// ReadAt implements fs.INode. Only the part of buf overlapping the file is
// filled; reads at or past the end return 0.
func (f *file) ReadAt(offset uint64, buf []byte) (int, error) {
	c := f.data
	c.lock.Acquire()
	defer c.lock.Release()

	if offset >= c.length {
		return 0, nil
	}

	readLen := min(uint64(len(buf)), c.length-offset)
	for done := uint64(0); done < readLen; {
		pageOffset := offset % fs.PageSize
		chunk := min(fs.PageSize-pageOffset, readLen-done)
		page := c.pages[offset/fs.PageSize].Buffer()
		copy(buf[done:done+chunk], page[pageOffset:pageOffset+chunk])

		offset += chunk
		done += chunk
	}

	return int(readLen), nil
}

// WriteAt implements fs.INode. The file grows to cover the end of the write
// but never shrinks. Writes ending past MaxFileSize fail with EFBIG. If a
// page cannot be obtained the write fails with ENOSPC and nothing is written.
func (f *file) WriteAt(offset uint64, buf []byte) (int, error) {
	end := offset + uint64(len(buf))
	if end < offset || end > MaxFileSize {
		return 0, fs.EFBIG
	}

	c := f.data
	c.lock.Acquire()
	defer c.lock.Release()

	if err := c.grow(pagesFor(end)); err != nil {
		return 0, err
	}

	for done := uint64(0); done < uint64(len(buf)); {
		pageOffset := offset % fs.PageSize
		chunk := min(fs.PageSize-pageOffset, uint64(len(buf))-done)
		page := c.pages[offset/fs.PageSize].Buffer()
		copy(page[pageOffset:pageOffset+chunk], buf[done:done+chunk])

		offset += chunk
		done += chunk
	}

	if end > c.length {
		c.length = end
	}

	return len(buf), nil
}

// Truncate implements fs.INode. Shrinking drops the pages past the new size
// and clears the tail of the new last page; growing allocates the missing
// pages. Sizes past MaxFileSize fail with EFBIG.
func (f *file) Truncate(size uint64) error {
	if size > MaxFileSize {
		return fs.EFBIG
	}

	c := f.data
	c.lock.Acquire()

	target := pagesFor(size)
	if target > uint64(len(c.pages)) {
		err := c.grow(target)
		if err == nil {
			c.length = size
		}
		c.lock.Release()
		return err
	}

	dropped := append([]*fs.Pages(nil), c.pages[target:]...)
	for i := target; i < uint64(len(c.pages)); i++ {
		c.pages[i] = nil
	}
	c.pages = c.pages[:target]

	if tail := size % fs.PageSize; tail != 0 {
		clear(c.pages[target-1].Buffer()[tail:])
	}
	c.length = size
	c.lock.Release()

	f.fsys.releasePages(dropped)
	return nil
}

// Stat implements fs.INode.
func (f *file) Stat(st *fs.Stat) error {
	f.fillStat(st, fs.ModeFile|0o644, f.size())
	return nil
}

// Poll implements fs.INode. Regular files are always ready.
func (*file) Poll(events fs.PollEvent) (fs.PollEvent, error) {
	return events & (fs.PollIn | fs.PollOut | fs.PollRdNorm | fs.PollWrNorm), nil
}

// link is a link to another path.
type link struct {
	leaf

	target string
}

func (fsys *FS) newLink(name, target string) *link {
	return &link{leaf: leaf{attrs: fsys.newAttrs(name)}, target: target}
}

func (l *link) entry() fs.DirEntry {
	return fs.DirEntry{Name: l.name, Size: uint64(len(l.target)), Type: fs.TypeLink}
}

// Metadata implements fs.INode.
func (l *link) Metadata() (fs.Metadata, error) {
	return fs.Metadata{Name: l.name, Inode: l.inode, Type: fs.TypeLink, Size: uint64(len(l.target))}, nil
}

// ResolveLink implements fs.INode.
func (l *link) ResolveLink() (string, error) { return l.target, nil }

// Stat implements fs.INode.
func (l *link) Stat(st *fs.Stat) error {
	l.fillStat(st, fs.ModeLink|0o777, uint64(len(l.target)))
	return nil
}

func (*link) ReadAt(_ uint64, _ []byte) (int, error)  { return 0, fs.EBADF }
func (*link) WriteAt(_ uint64, _ []byte) (int, error) { return 0, fs.EBADF }
func (*link) Truncate(_ uint64) error                 { return fs.EBADF }
