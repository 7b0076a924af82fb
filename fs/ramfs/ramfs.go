// Package ramfs implements a file system that keeps its contents in pages
// obtained from a fs.PageAllocator.
package ramfs

import (
	"sync/atomic"
	"time"

	"quados/fs"
	"quados/kernel/kfmt"
	"quados/kernel/sync"
)

const (
	// Magic is the file system type reported by StatFS.
	Magic = 0x858458f6

	// MaxFileSize is the largest size a file can grow to.
	MaxFileSize = 1 << 40

	maxNameLen = 255
)

var (
	log = kfmt.Logger{Module: "ramfs"}

	// nowFn is mocked by tests.
	nowFn = time.Now
)

// FS is an in-memory file system.
type FS struct {
	alloc fs.PageAllocator
	root  *dir

	nextInode atomic.Uint64
	pagesUsed atomic.Int64
}

// New returns an empty file system that stores file contents in pages
// obtained from alloc.
func New(alloc fs.PageAllocator) *FS {
	fsys := &FS{alloc: alloc}
	fsys.root = fsys.newDir("")
	return fsys
}

// Root implements fs.FileSystem.
func (fsys *FS) Root() fs.INode { return fsys.root }

// Name implements fs.FileSystem.
func (*FS) Name() string { return "ramfs" }

// Flush implements fs.FileSystem. Nothing is ever cached.
func (*FS) Flush() error { return nil }

// PagesUsed returns the number of pages currently holding file contents.
func (fsys *FS) PagesUsed() int64 { return fsys.pagesUsed.Load() }

func (fsys *FS) allocPage() (*fs.Pages, error) {
	page, err := fs.AllocPages(fsys.alloc, 1)
	if err != nil {
		return nil, err
	}

	fsys.pagesUsed.Add(1)
	return page, nil
}

func (fsys *FS) releasePages(pages []*fs.Pages) {
	for _, page := range pages {
		if err := page.Release(); err != nil {
			log.Errorf("unable to release page at 0x%x: %s", page.Address(), err.Error())
			continue
		}
		fsys.pagesUsed.Add(-1)
	}
}

func (fsys *FS) newAttrs(name string) attrs {
	now := timeSpecFrom(nowFn())
	return attrs{
		fsys:  fsys,
		name:  name,
		inode: fsys.nextInode.Add(1),
		times: [3]fs.TimeSpec{now, now, now},
	}
}

func timeSpecFrom(t time.Time) fs.TimeSpec {
	return fs.TimeSpec{Sec: uint64(t.Unix()), Nsec: uint64(t.Nanosecond())}
}

// attrs holds the state shared by every node kind. Operations no node
// kind overrides fail with EACCES.
type attrs struct {
	fs.Unsupported

	fsys  *FS
	name  string
	inode uint64

	timeLock sync.Spinlock
	// ctime, atime, mtime
	times [3]fs.TimeSpec
}

func (a *attrs) entryName() string { return a.name }

// Utimes implements fs.INode.
func (a *attrs) Utimes(times []fs.TimeSpec) error {
	if len(times) < 2 {
		return fs.EINVAL
	}

	now := timeSpecFrom(nowFn())
	a.timeLock.Acquire()
	defer a.timeLock.Release()

	for i, slot := range []int{1, 2} {
		switch times[i].Nsec {
		case fs.UtimeOmit:
		case fs.UtimeNow:
			a.times[slot] = now
		default:
			a.times[slot] = times[i]
		}
	}
	a.times[0] = now

	return nil
}

// fillStat populates the fields of st common to all node kinds.
func (a *attrs) fillStat(st *fs.Stat, mode fs.StatMode, size uint64) {
	a.timeLock.Acquire()
	times := a.times
	a.timeLock.Release()

	*st = fs.Stat{
		Ino:     a.inode,
		Nlink:   1,
		Mode:    mode,
		Size:    size,
		Blksize: 512,
		Blocks:  (size + 511) / 512,
		Ctime:   times[0],
		Atime:   times[1],
		Mtime:   times[2],
	}
}

// StatFS implements fs.INode.
func (a *attrs) StatFS(st *fs.StatFS) error {
	*st = fs.StatFS{
		Type:      Magic,
		BlockSize: fs.PageSize,
		Blocks:    uint64(a.fsys.pagesUsed.Load()),
		Files:     a.fsys.nextInode.Load(),
		NameLen:   maxNameLen,
	}
	return nil
}

// Flush implements fs.INode.
func (*attrs) Flush() error { return nil }

// node is implemented by the entries of a directory.
type node interface {
	fs.INode
	entryName() string
	entry() fs.DirEntry
}
