//go:build linux

// Package fusefs exports a file tree to the host through FUSE.
package fusefs

import (
	"context"
	"errors"
	"os"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"quados/fs"
	"quados/kernel/kfmt"
)

var (
	log = kfmt.Logger{Module: "fusefs"}

	// mountFn, unmountFn and serveFn are mocked by tests.
	mountFn   = fuse.Mount
	unmountFn = fuse.Unmount
	serveFn   = func(conn *fuse.Conn, fsys fusefs.FS) error { return fusefs.Serve(conn, fsys) }
)

var (
	_ fusefs.FS                 = (*FS)(nil)
	_ fusefs.FSStatfser         = (*FS)(nil)
	_ fusefs.Node               = (*Node)(nil)
	_ fusefs.NodeStringLookuper = (*Node)(nil)
	_ fusefs.HandleReadDirAller = (*Node)(nil)
	_ fusefs.HandleReader       = (*Node)(nil)
	_ fusefs.HandleWriter       = (*Node)(nil)
	_ fusefs.NodeCreater        = (*Node)(nil)
	_ fusefs.NodeMkdirer        = (*Node)(nil)
	_ fusefs.NodeRemover        = (*Node)(nil)
	_ fusefs.NodeSymlinker      = (*Node)(nil)
	_ fusefs.NodeReadlinker     = (*Node)(nil)
	_ fusefs.NodeSetattrer      = (*Node)(nil)
	_ fusefs.NodeFsyncer        = (*Node)(nil)
)

// attrValidity is how long the host may cache attributes.
const attrValidity = time.Second

var errnos = map[fs.Errno]unix.Errno{
	fs.EPERM:        unix.EPERM,
	fs.ENOENT:       unix.ENOENT,
	fs.EIO:          unix.EIO,
	fs.EBADF:        unix.EBADF,
	fs.EAGAIN:       unix.EAGAIN,
	fs.ENOMEM:       unix.ENOMEM,
	fs.EACCES:       unix.EACCES,
	fs.EFAULT:       unix.EFAULT,
	fs.EBUSY:        unix.EBUSY,
	fs.EEXIST:       unix.EEXIST,
	fs.ENOTDIR:      unix.ENOTDIR,
	fs.EISDIR:       unix.EISDIR,
	fs.EINVAL:       unix.EINVAL,
	fs.ENOTTY:       unix.ENOTTY,
	fs.EFBIG:        unix.EFBIG,
	fs.ENOSPC:       unix.ENOSPC,
	fs.ESPIPE:       unix.ESPIPE,
	fs.EROFS:        unix.EROFS,
	fs.ERANGE:       unix.ERANGE,
	fs.ENAMETOOLONG: unix.ENAMETOOLONG,
	fs.ENOSYS:       unix.ENOSYS,
	fs.ENOTEMPTY:    unix.ENOTEMPTY,
	fs.ELOOP:        unix.ELOOP,
}

// toFuseError converts a file system error into the errno reported to the
// host.
func toFuseError(err error) error {
	if err == nil {
		return nil
	}

	var errno fs.Errno
	if !errors.As(err, &errno) {
		return err
	}

	if hostErrno, ok := errnos[errno]; ok {
		return fuse.Errno(hostErrno)
	}
	return fuse.Errno(unix.EIO)
}

// Serve mounts tree at mountPoint and serves requests until the file system
// is unmounted or ctx is cancelled.
func Serve(ctx context.Context, tree *fs.FileTree, mountPoint string) error {
	conn, err := mountFn(mountPoint, fuse.FSName("quados"), fuse.Subtype("quadfs"))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := unmountFn(mountPoint); err != nil {
				log.Warnf("unable to unmount %s: %s", mountPoint, err.Error())
			}
		case <-done:
		}
	}()

	log.Infof("serving file tree at %s", mountPoint)
	return serveFn(conn, New(tree))
}

// FS adapts a file tree to the bazil.org/fuse server.
type FS struct {
	tree *fs.FileTree
}

// New returns a FUSE file system serving tree.
func New(tree *fs.FileTree) *FS {
	return &FS{tree: tree}
}

// Root implements fusefs.FS.
func (f *FS) Root() (fusefs.Node, error) {
	return &Node{file: f.tree.Root()}, nil
}

// Statfs implements fusefs.FSStatfser.
func (f *FS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	var st fs.StatFS
	if err := f.tree.Root().StatFS(&st); err != nil {
		return toFuseError(err)
	}

	resp.Blocks = st.Blocks
	resp.Bfree = st.BlocksFree
	resp.Bavail = st.BlocksAvail
	resp.Files = st.Files
	resp.Ffree = st.FilesFree
	resp.Bsize = uint32(st.BlockSize)
	resp.Frsize = uint32(st.BlockSize)
	resp.Namelen = uint32(st.NameLen)
	return nil
}

// Node is a file tree entry exposed through FUSE. It also serves as the
// handle of its open files.
type Node struct {
	file *fs.DentryFile
}

// Attr implements fusefs.Node.
func (n *Node) Attr(_ context.Context, a *fuse.Attr) error {
	md, err := n.file.Metadata()
	if err != nil {
		return toFuseError(err)
	}

	var st fs.Stat
	if err = n.file.Stat(&st); err != nil {
		st = fs.Stat{Ino: md.Inode, Size: md.Size, Nlink: 1, Mode: md.Type.Mode() | 0o644}
	}

	a.Valid = attrValidity
	a.Inode = st.Ino
	a.Size = st.Size
	a.Blocks = st.Blocks
	a.BlockSize = st.Blksize
	a.Nlink = uint32(st.Nlink)
	a.Uid = st.UID
	a.Gid = st.GID
	a.Atime = toTime(st.Atime)
	a.Mtime = toTime(st.Mtime)
	a.Ctime = toTime(st.Ctime)
	a.Mode = toFileMode(md.Type, st.Mode)
	return nil
}

func toTime(ts fs.TimeSpec) time.Time {
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}

func toFileMode(fileType fs.FileType, mode fs.StatMode) os.FileMode {
	perm := os.FileMode(mode.Perm()) & os.ModePerm
	switch fileType {
	case fs.TypeDirectory:
		return os.ModeDir | perm
	case fs.TypeLink:
		return os.ModeSymlink | perm
	case fs.TypeDevice:
		return os.ModeDevice | os.ModeCharDevice | perm
	case fs.TypeSocket:
		return os.ModeSocket | perm
	default:
		return perm
	}
}

func direntType(fileType fs.FileType) fuse.DirentType {
	switch fileType {
	case fs.TypeDirectory:
		return fuse.DT_Dir
	case fs.TypeLink:
		return fuse.DT_Link
	case fs.TypeDevice:
		return fuse.DT_Char
	case fs.TypeSocket:
		return fuse.DT_Socket
	default:
		return fuse.DT_File
	}
}

func (n *Node) open(name string, flags fs.OpenFlags) (*Node, error) {
	child, err := n.file.Open(name, flags)
	if err != nil {
		return nil, toFuseError(err)
	}

	return &Node{file: child}, nil
}

// Lookup implements fusefs.NodeStringLookuper.
func (n *Node) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	child, err := n.open(name, fs.OpenReadOnly)
	if err != nil {
		return nil, err
	}

	return child, nil
}

// ReadDirAll implements fusefs.HandleReadDirAller.
func (n *Node) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	entries, err := n.file.ReadDir()
	if err != nil {
		return nil, toFuseError(err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, entry := range entries {
		dirents = append(dirents, fuse.Dirent{Name: entry.Name, Type: direntType(entry.Type)})
	}

	return dirents, nil
}

// Read implements fusefs.HandleReader.
func (n *Node) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	count, err := n.file.ReadAt(uint64(req.Offset), buf)
	if err != nil {
		return toFuseError(err)
	}

	resp.Data = buf[:count]
	return nil
}

// Write implements fusefs.HandleWriter.
func (n *Node) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	count, err := n.file.WriteAt(uint64(req.Offset), req.Data)
	if err != nil {
		return toFuseError(err)
	}

	resp.Size = count
	return nil
}

// Create implements fusefs.NodeCreater.
func (n *Node) Create(_ context.Context, req *fuse.CreateRequest, _ *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	child, err := n.open(req.Name, fs.OpenCreate|fs.OpenReadWrite)
	if err != nil {
		return nil, nil, err
	}

	return child, child, nil
}

// Mkdir implements fusefs.NodeMkdirer.
func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	if _, err := n.file.Mkdir(req.Name); err != nil {
		return nil, toFuseError(err)
	}

	return n.Lookup(ctx, req.Name)
}

// Remove implements fusefs.NodeRemover.
func (n *Node) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return toFuseError(n.file.Rmdir(req.Name))
	}

	return toFuseError(n.file.Remove(req.Name))
}

// Symlink implements fusefs.NodeSymlinker.
func (n *Node) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	if err := n.file.Symlink(req.NewName, req.Target); err != nil {
		return nil, toFuseError(err)
	}

	return n.Lookup(ctx, req.NewName)
}

// Readlink implements fusefs.NodeReadlinker.
func (n *Node) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	target, err := n.file.ResolveLink()
	return target, toFuseError(err)
}

// Setattr implements fusefs.NodeSetattrer. Size and time changes are
// supported.
func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if err := n.file.Truncate(req.Size); err != nil {
			return toFuseError(err)
		}
	}

	if req.Valid.Atime() || req.Valid.Mtime() {
		times := []fs.TimeSpec{{Nsec: fs.UtimeOmit}, {Nsec: fs.UtimeOmit}}
		if req.Valid.Atime() {
			times[0] = fromTime(req.Atime)
		}
		if req.Valid.Mtime() {
			times[1] = fromTime(req.Mtime)
		}

		if err := n.file.Utimes(times); err != nil {
			return toFuseError(err)
		}
	}

	return n.Attr(ctx, &resp.Attr)
}

func fromTime(t time.Time) fs.TimeSpec {
	return fs.TimeSpec{Sec: uint64(t.Unix()), Nsec: uint64(t.Nanosecond())}
}

// Fsync implements fusefs.NodeFsyncer.
func (n *Node) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	return toFuseError(n.file.Flush())
}
