package fs

// OpenFlags controls how a node is opened. The values match the Linux
// O_* flags.
type OpenFlags uint32

// The supported open flags. The lowest two bits hold the access mode.
const (
	OpenReadOnly    OpenFlags = 0
	OpenWriteOnly   OpenFlags = 0o1
	OpenReadWrite   OpenFlags = 0o2
	OpenAccessMode  OpenFlags = 0o3
	OpenCreate      OpenFlags = 0o100
	OpenExclusive   OpenFlags = 0o200
	OpenNoCTTY      OpenFlags = 0o400
	OpenTruncate    OpenFlags = 0o1000
	OpenAppend      OpenFlags = 0o2000
	OpenNonBlock    OpenFlags = 0o4000
	OpenDSync       OpenFlags = 0o10000
	OpenAsync       OpenFlags = 0o20000
	OpenDirect      OpenFlags = 0o40000
	OpenLargeFile   OpenFlags = 0o100000
	OpenDirectory   OpenFlags = 0o200000
	OpenNoFollow    OpenFlags = 0o400000
	OpenNoAtime     OpenFlags = 0o1000000
	OpenCloseOnExec OpenFlags = 0o2000000
	OpenSync        OpenFlags = 0o4010000
	OpenRSync       OpenFlags = 0o4010000
	OpenPath        OpenFlags = 0o10000000
	OpenTmpFile     OpenFlags = 0o20200000
)

// Has returns true if all bits of flag are set.
func (f OpenFlags) Has(flag OpenFlags) bool { return f&flag == flag }

// Access returns the access mode bits.
func (f OpenFlags) Access() OpenFlags { return f & OpenAccessMode }

// StatMode holds the file type and permission bits reported by Stat.
type StatMode uint32

// File type bits.
const (
	ModeTypeMask StatMode = 0o170000
	ModeFIFO     StatMode = 0o010000
	ModeChar     StatMode = 0o020000
	ModeDir      StatMode = 0o040000
	ModeBlock    StatMode = 0o060000
	ModeFile     StatMode = 0o100000
	ModeLink     StatMode = 0o120000
	ModeSocket   StatMode = 0o140000
)

// Permission bits.
const (
	ModeSetUID     StatMode = 0o4000
	ModeSetGID     StatMode = 0o2000
	ModeOwnerMask  StatMode = 0o700
	ModeOwnerRead  StatMode = 0o400
	ModeOwnerWrite StatMode = 0o200
	ModeOwnerExec  StatMode = 0o100
	ModeGroupMask  StatMode = 0o70
	ModeGroupRead  StatMode = 0o40
	ModeGroupWrite StatMode = 0o20
	ModeGroupExec  StatMode = 0o10
	ModeOtherMask  StatMode = 0o7
	ModeOtherRead  StatMode = 0o4
	ModeOtherWrite StatMode = 0o2
	ModeOtherExec  StatMode = 0o1
)

// Type returns the file type bits of m.
func (m StatMode) Type() StatMode { return m & ModeTypeMask }

// Perm returns the permission bits of m.
func (m StatMode) Perm() StatMode { return m &^ ModeTypeMask }

// PollEvent is a set of poll(2) events.
type PollEvent uint16

// The poll events.
const (
	PollIn     PollEvent = 0x001
	PollPri    PollEvent = 0x002
	PollOut    PollEvent = 0x004
	PollErr    PollEvent = 0x008
	PollHup    PollEvent = 0x010
	PollNval   PollEvent = 0x020
	PollRdNorm PollEvent = 0x040
	PollRdBand PollEvent = 0x080
	PollWrNorm PollEvent = 0x100
	PollWrBand PollEvent = 0x200
	PollMsg    PollEvent = 0x400
	PollRemove PollEvent = 0x1000
	PollRdHup  PollEvent = 0x2000
)

// FileType is the kind of a node.
type FileType uint8

// The supported node kinds.
const (
	TypeFile FileType = iota
	TypeDirectory
	TypeDevice
	TypeSocket
	TypeLink
)

var fileTypeNames = [...]string{"file", "directory", "device", "socket", "link"}

// String implements fmt.Stringer.
func (t FileType) String() string {
	if int(t) < len(fileTypeNames) {
		return fileTypeNames[t]
	}

	return "unknown"
}

// Mode returns the StatMode file type bits for t.
func (t FileType) Mode() StatMode {
	switch t {
	case TypeDirectory:
		return ModeDir
	case TypeDevice:
		return ModeChar
	case TypeSocket:
		return ModeSocket
	case TypeLink:
		return ModeLink
	default:
		return ModeFile
	}
}

// Whence selects the origin of a seek.
type Whence uint8

// The seek origins.
const (
	SeekSet Whence = iota
	SeekCurrent
	SeekEnd
)

// SeekFrom describes a seek request.
type SeekFrom struct {
	Whence Whence
	Offset int64
}

// Resolve returns the absolute position a seek from cur in a file of the
// given size lands on.
func (s SeekFrom) Resolve(cur, size uint64) (uint64, error) {
	var base int64
	switch s.Whence {
	case SeekSet:
	case SeekCurrent:
		base = int64(cur)
	case SeekEnd:
		base = int64(size)
	default:
		return 0, EINVAL
	}

	pos := base + s.Offset
	if pos < 0 {
		return 0, EINVAL
	}

	return uint64(pos), nil
}

// Metadata describes a node.
type Metadata struct {
	Name     string
	Inode    uint64
	Type     FileType
	Size     uint64
	Children int
}

// DirEntry is an entry returned by ReadDir.
type DirEntry struct {
	Name string
	Size uint64
	Type FileType
}

// Special TimeSpec.Nsec values accepted by Utimes.
const (
	// UtimeNow sets the time to the current time.
	UtimeNow = 0x3fffffff

	// UtimeOmit leaves the time unchanged.
	UtimeOmit = 0x3ffffffe
)

// TimeSpec is a point in time with nanosecond resolution.
type TimeSpec struct {
	Sec  uint64
	Nsec uint64
}

// Nanoseconds returns t in nanoseconds.
func (t TimeSpec) Nanoseconds() uint64 { return t.Sec*1_000_000_000 + t.Nsec }

// Stat mirrors the layout of struct stat on x86-64 Linux.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Mode    StatMode
	UID     uint32
	GID     uint32
	_       uint32
	Rdev    uint64
	Size    uint64
	Blksize uint32
	_       uint32
	Blocks  uint64
	Atime   TimeSpec
	Mtime   TimeSpec
	Ctime   TimeSpec
}

// StatFS mirrors struct statfs.
type StatFS struct {
	Type        uint64
	BlockSize   uint64
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
	Files       uint64
	FilesFree   uint64
	FSID        uint64
	NameLen     uint64
}
