package preview

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// tagICCProfile is the TIFF tag carrying an embedded ICC profile.
const tagICCProfile = 34675

// maxIFDEntries bounds the entry count read from a single directory.
const maxIFDEntries = 4096

var errNotTIFF = errors.New("not a TIFF file")

// HasICCProfile reports whether the first image directory of the TIFF at
// path carries an ICC profile tag.
func HasICCProfile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	return hasICCProfile(f)
}

func hasICCProfile(r io.ReadSeeker) (bool, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return false, fmt.Errorf("failed to read TIFF header: %w", err)
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return false, errNotTIFF
	}

	switch order.Uint16(header[2:4]) {
	case 42:
		return scanClassicIFD(r, order, int64(order.Uint32(header[4:8])))
	case 43:
		// BigTIFF: 2 bytes offset size, 2 bytes padding, then an 8-byte IFD offset.
		var off [8]byte
		if _, err := io.ReadFull(r, off[:]); err != nil {
			return false, fmt.Errorf("failed to read BigTIFF header: %w", err)
		}
		return scanBigIFD(r, order, int64(order.Uint64(off[:])))
	default:
		return false, errNotTIFF
	}
}

func scanClassicIFD(r io.ReadSeeker, order binary.ByteOrder, offset int64) (bool, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return false, err
	}
	br := bufio.NewReader(r)

	var count uint16
	if err := binary.Read(br, order, &count); err != nil {
		return false, fmt.Errorf("failed to read IFD entry count: %w", err)
	}
	if count > maxIFDEntries {
		return false, fmt.Errorf("implausible IFD entry count %d", count)
	}

	entry := make([]byte, 12)
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(br, entry); err != nil {
			return false, fmt.Errorf("failed to read IFD entry: %w", err)
		}
		if order.Uint16(entry[:2]) == tagICCProfile {
			return true, nil
		}
	}
	return false, nil
}

func scanBigIFD(r io.ReadSeeker, order binary.ByteOrder, offset int64) (bool, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return false, err
	}
	br := bufio.NewReader(r)

	var count uint64
	if err := binary.Read(br, order, &count); err != nil {
		return false, fmt.Errorf("failed to read IFD entry count: %w", err)
	}
	if count > maxIFDEntries {
		return false, fmt.Errorf("implausible IFD entry count %d", count)
	}

	entry := make([]byte, 20)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(br, entry); err != nil {
			return false, fmt.Errorf("failed to read IFD entry: %w", err)
		}
		if order.Uint16(entry[:2]) == tagICCProfile {
			return true, nil
		}
	}
	return false, nil
}
