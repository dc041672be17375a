package urlfile

import "fmt"

// Mode declares how a Stream interacts with its URL: the access pattern
// (read, write or append) and the framing (text or binary). It is fixed
// when the Stream is opened and drives fetch, upload and iteration
// behavior for the Stream's whole lifetime.
type Mode int

const (
	// ReadBinary fetches the remote body lazily and reads raw bytes.
	ReadBinary Mode = iota + 1
	// ReadText fetches the remote body lazily and decodes it to UTF-8.
	ReadText
	// WriteBinary starts from an empty buffer and uploads raw bytes on Close.
	WriteBinary
	// WriteText starts from an empty buffer and uploads encoded text on Close.
	WriteText
	// AppendBinary fetches the remote body eagerly and uploads the extended
	// bytes on Close.
	AppendBinary
	// AppendText is AppendBinary with text decoding and encoding.
	AppendText
)

// ParseMode converts a conventional open-mode string into a Mode. Accepted
// forms are "r", "w" and "a", optionally combined with "b" or "t" in either
// order ("rb", "br", "wt", ...). A bare access letter implies text.
func ParseMode(s string) (Mode, error) {
	var access, framing byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 'r', 'w', 'a':
			if access != 0 {
				return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
			}
			access = c
		case 'b', 't':
			if framing != 0 {
				return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
			}
			framing = c
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
		}
	}
	if access == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}

	binary := framing == 'b'
	switch access {
	case 'r':
		if binary {
			return ReadBinary, nil
		}
		return ReadText, nil
	case 'w':
		if binary {
			return WriteBinary, nil
		}
		return WriteText, nil
	default:
		if binary {
			return AppendBinary, nil
		}
		return AppendText, nil
	}
}

// String returns the conventional open-mode string ("rb", "wt", ...).
func (m Mode) String() string {
	switch m {
	case ReadBinary:
		return "rb"
	case ReadText:
		return "rt"
	case WriteBinary:
		return "wb"
	case WriteText:
		return "wt"
	case AppendBinary:
		return "ab"
	case AppendText:
		return "at"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Text reports whether the mode decodes and encodes text.
func (m Mode) Text() bool {
	switch m {
	case ReadText, WriteText, AppendText:
		return true
	}
	return false
}

// Binary reports whether the mode carries raw bytes.
func (m Mode) Binary() bool {
	switch m {
	case ReadBinary, WriteBinary, AppendBinary:
		return true
	}
	return false
}

// Writable reports whether the mode accepts writes and commits an upload
// on Close.
func (m Mode) Writable() bool {
	switch m {
	case WriteBinary, WriteText, AppendBinary, AppendText:
		return true
	}
	return false
}

// Appends reports whether the mode extends the current remote content.
func (m Mode) Appends() bool {
	switch m {
	case AppendBinary, AppendText:
		return true
	}
	return false
}

func (m Mode) valid() bool {
	return m >= ReadBinary && m <= AppendText
}
