package fs

import "io"

// Handle is an open file with a current position. It implements io.Reader,
// io.Writer and io.Seeker on top of a DentryFile.
type Handle struct {
	file   *DentryFile
	flags  OpenFlags
	offset uint64
}

// OpenHandle opens name and returns a handle positioned at its start.
// OpenTruncate empties the file and OpenAppend moves every write to the end
// of the file.
func (t *FileTree) OpenHandle(name string, flags OpenFlags) (*Handle, error) {
	file, err := t.Open(name, flags)
	if err != nil {
		return nil, err
	}

	if flags.Has(OpenTruncate) && flags.Access() != OpenReadOnly {
		if err = file.Truncate(0); err != nil {
			return nil, err
		}
	}

	return &Handle{file: file, flags: flags}, nil
}

// File returns the file behind h.
func (h *Handle) File() *DentryFile { return h.file }

// Read implements io.Reader.
func (h *Handle) Read(p []byte) (int, error) {
	if h.flags.Access() == OpenWriteOnly {
		return 0, EBADF
	}

	n, err := h.file.ReadAt(h.offset, p)
	h.offset += uint64(n)
	if err == nil && n == 0 && len(p) != 0 {
		err = io.EOF
	}

	return n, err
}

// Write implements io.Writer.
func (h *Handle) Write(p []byte) (int, error) {
	if h.flags.Access() == OpenReadOnly {
		return 0, EBADF
	}

	if h.flags.Has(OpenAppend) {
		size, err := h.size()
		if err != nil {
			return 0, err
		}
		h.offset = size
	}

	n, err := h.file.WriteAt(h.offset, p)
	h.offset += uint64(n)
	return n, err
}

// Seek implements io.Seeker.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	return h.SeekFrom(SeekFrom{Whence: Whence(whence), Offset: offset})
}

// SeekFrom moves the position of h.
func (h *Handle) SeekFrom(s SeekFrom) (int64, error) {
	var size uint64
	if s.Whence == SeekEnd {
		var err error
		if size, err = h.size(); err != nil {
			return 0, err
		}
	}

	pos, err := s.Resolve(h.offset, size)
	if err != nil {
		return 0, err
	}

	h.offset = pos
	return int64(pos), nil
}

func (h *Handle) size() (uint64, error) {
	md, err := h.file.Metadata()
	if err != nil {
		return 0, err
	}

	return md.Size, nil
}
