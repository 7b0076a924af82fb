package fs

import (
	"testing"

	"quados/kernel"
)

// fakeDir is a directory whose children are created on first lookup.
type fakeDir struct {
	Unsupported

	name   string
	opened map[string]int
}

func newFakeDir(name string) *fakeDir {
	return &fakeDir{name: name, opened: make(map[string]int)}
}

func (d *fakeDir) Open(name string, _ OpenFlags) (INode, error) {
	switch name {
	case "missing":
		return nil, ENOENT
	case "file":
		d.opened[name]++
		return &fakeFile{}, nil
	}

	d.opened[name]++
	return newFakeDir(name), nil
}

func (d *fakeDir) Metadata() (Metadata, error) {
	return Metadata{Name: d.name, Type: TypeDirectory}, nil
}

type fakeFile struct{ Unsupported }

func (*fakeFile) Metadata() (Metadata, error) {
	return Metadata{Name: "file", Type: TypeFile}, nil
}

type fakeFS struct{ root *fakeDir }

func (f *fakeFS) Root() INode  { return f.root }
func (f *fakeFS) Name() string { return "fake" }
func (f *fakeFS) Flush() error { return nil }

func TestErrno(t *testing.T) {
	specs := []struct {
		errno Errno
		exp   string
	}{
		{ENOENT, "no such file or directory"},
		{ENOTEMPTY, "directory not empty"},
		{Errno(200), "errno 200"},
	}

	for specIndex, spec := range specs {
		if got := spec.errno.Error(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestFlagsAndModes(t *testing.T) {
	flags := OpenCreate | OpenReadWrite
	if !flags.Has(OpenCreate) || flags.Has(OpenDirectory) || flags.Access() != OpenReadWrite {
		t.Errorf("unexpected flag decoding for 0o%o", flags)
	}

	mode := ModeDir | 0o755
	if mode.Type() != ModeDir || mode.Perm() != 0o755 {
		t.Errorf("unexpected mode decoding for 0o%o", mode)
	}

	specs := []struct {
		fileType FileType
		expName  string
		expMode  StatMode
	}{
		{TypeFile, "file", ModeFile},
		{TypeDirectory, "directory", ModeDir},
		{TypeLink, "link", ModeLink},
		{TypeSocket, "socket", ModeSocket},
		{FileType(42), "unknown", ModeFile},
	}

	for specIndex, spec := range specs {
		if spec.fileType.String() != spec.expName || spec.fileType.Mode() != spec.expMode {
			t.Errorf("[spec %d] expected %s/0o%o; got %s/0o%o", specIndex, spec.expName, spec.expMode, spec.fileType, spec.fileType.Mode())
		}
	}

	if ns := (TimeSpec{Sec: 2, Nsec: 5}).Nanoseconds(); ns != 2_000_000_005 {
		t.Errorf("expected 2000000005ns; got %d", ns)
	}
}

func TestSeekFromResolve(t *testing.T) {
	specs := []struct {
		seek   SeekFrom
		expPos uint64
		expErr error
	}{
		{SeekFrom{SeekSet, 10}, 10, nil},
		{SeekFrom{SeekCurrent, -5}, 15, nil},
		{SeekFrom{SeekEnd, 0}, 100, nil},
		{SeekFrom{SeekCurrent, -21}, 0, EINVAL},
		{SeekFrom{Whence(9), 0}, 0, EINVAL},
	}

	for specIndex, spec := range specs {
		pos, err := spec.seek.Resolve(20, 100)
		if pos != spec.expPos || err != spec.expErr {
			t.Errorf("[spec %d] expected %d, %v; got %d, %v", specIndex, spec.expPos, spec.expErr, pos, err)
		}
	}
}

func TestUnsupported(t *testing.T) {
	var node INode = Unsupported{}

	if _, err := node.ReadAt(0, nil); err != EACCES {
		t.Errorf("expected EACCES; got %v", err)
	}
	if err := node.Utimes(nil); err != EACCES {
		t.Errorf("expected EACCES; got %v", err)
	}
	if _, err := node.Poll(PollIn); err != EACCES {
		t.Errorf("expected EACCES; got %v", err)
	}
}

func TestDentryCache(t *testing.T) {
	root := newFakeDir("")
	tree := NewFileTree()
	if err := tree.Mount("/", &fakeFS{root: root}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		file, err := tree.Open("/a/b", OpenReadOnly)
		if err != nil {
			t.Fatal(err)
		}
		if file.Path() != "/a/b" {
			t.Errorf("expected path /a/b; got %q", file.Path())
		}
	}

	if root.opened["a"] != 1 {
		t.Errorf("expected the node to be asked for a once; got %d lookups", root.opened["a"])
	}

	a, err := tree.Open("a", OpenDirectory)
	if err != nil {
		t.Fatal(err)
	}
	if a.dentry.Parent() != tree.rootDentry() {
		t.Error("expected the parent of a to be the tree root")
	}

	up, err := a.Open("b/../..", OpenDirectory)
	if err != nil {
		t.Fatal(err)
	}
	if up.dentry != tree.rootDentry() || up.Path() != "/" {
		t.Errorf("expected b/../.. to lead back to the root; got %q", up.Path())
	}

	if _, err = tree.Open("/a", OpenCreate); err != EEXIST {
		t.Errorf("expected creating a cached name to fail with EEXIST; got %v", err)
	}

	if _, err = tree.Open("/missing/x", OpenReadOnly); err != ENOENT {
		t.Errorf("expected ENOENT; got %v", err)
	}

	if root := tree.Root(); root.Path() != "/" || root.Node() != INode(tree.roots[0].node) {
		t.Error("expected Root to return the mounted root directory")
	}
}

func TestCachedFileIsNotADirectory(t *testing.T) {
	root := newFakeDir("")
	tree := NewFileTree()
	if err := tree.Mount("/", &fakeFS{root: root}); err != nil {
		t.Fatal(err)
	}

	if _, err := tree.Open("/file", OpenReadOnly); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		name   string
		flags  OpenFlags
		expErr error
	}{
		{"/file", OpenDirectory, ENOTDIR},
		{"/file/x", OpenReadOnly, ENOTDIR},
		{"/file", OpenReadOnly, nil},
	}

	for specIndex, spec := range specs {
		if _, err := tree.Open(spec.name, spec.flags); err != spec.expErr {
			t.Errorf("[spec %d] expected Open(%q) to return %v; got %v", specIndex, spec.name, spec.expErr, err)
		}
	}

	if err := tree.Mount("/file", &fakeFS{root: newFakeDir("")}); err != ENOTDIR {
		t.Errorf("expected mounting onto a file to fail with ENOTDIR; got %v", err)
	}

	if len(tree.Mounts()) != 1 {
		t.Errorf("expected a single mount; got %d", len(tree.Mounts()))
	}

	if root.opened["file"] != 1 {
		t.Errorf("expected the node to be asked for file once; got %d lookups", root.opened["file"])
	}
}

func TestRootWithoutMount(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Root to panic when nothing is mounted")
		}
	}()

	NewFileTree().Root()
}

type pageSource struct {
	released []uintptr
	err      *kernel.Error
	data     []byte
}

func (p *pageSource) AllocPages(count uintptr) (uintptr, *kernel.Error) {
	if p.err != nil {
		return 0, p.err
	}
	p.data = make([]byte, count*PageSize)
	return 0x4000, nil
}

func (p *pageSource) DeallocPages(addr, _ uintptr) *kernel.Error {
	p.released = append(p.released, addr)
	return nil
}

func (p *pageSource) PhysToVirt(addr uintptr) uintptr { return addr + 0x1000 }
func (p *pageSource) VirtToPhys(addr uintptr) uintptr { return addr - 0x1000 }
func (p *pageSource) Bytes(addr, size uintptr) []byte {
	if addr != 0x5000 {
		return nil
	}
	return p.data[:size]
}

func TestPages(t *testing.T) {
	src := &pageSource{}
	pages, err := AllocPages(src, 2)
	if err != nil {
		t.Fatal(err)
	}

	if pages.Address() != 0x4000 || pages.Count() != 2 || len(pages.Buffer()) != 2*PageSize {
		t.Fatalf("unexpected page run: 0x%x/%d/%d", pages.Address(), pages.Count(), len(pages.Buffer()))
	}

	if err = pages.Release(); err != nil {
		t.Fatal(err)
	}
	if err = pages.Release(); err != nil {
		t.Fatal(err)
	}
	if len(src.released) != 1 {
		t.Errorf("expected the run to be returned once; got %d releases", len(src.released))
	}

	src.err = &kernel.Error{Module: "test", Message: "out of memory"}
	if _, err = AllocPages(src, 1); err != ENOSPC {
		t.Errorf("expected ENOSPC; got %v", err)
	}
}
