package wvrboot

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// EMMCImage reads sectors from a raw eMMC dump or block device.
type EMMCImage struct {
	f       *os.File
	sectors int
}

// OpenEMMCImage opens the image or device at path for reading.
func OpenEMMCImage(path string) (*EMMCImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open eMMC image")
	}
	// Seeking to the end also works for block devices, whose Stat size is 0.
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to size %s", path)
	}
	return &EMMCImage{f: f, sectors: int(size / SectorSize)}, nil
}

// Sectors returns the number of whole sectors on the device.
func (e *EMMCImage) Sectors() int {
	return e.sectors
}

// ReadSectors fills dst with count sectors starting at start.
func (e *EMMCImage) ReadSectors(dst []byte, start, count int) error {
	if len(dst) != count*SectorSize {
		return &StorageError{Sector: start, Count: count,
			Err: errors.Errorf("buffer of %d bytes for %d sectors", len(dst), count)}
	}
	if start < 0 || count < 0 || start+count > e.sectors {
		return &StorageError{Sector: start, Count: count,
			Err: errors.Errorf("outside device of %d sectors", e.sectors)}
	}
	if e.f == nil {
		return &StorageError{Sector: start, Count: count, Err: errors.New("image closed")}
	}
	if _, err := e.f.ReadAt(dst, int64(start)*SectorSize); err != nil {
		return &StorageError{Sector: start, Count: count, Err: err}
	}
	return nil
}

// Close releases the device. Closing an already closed image does nothing.
func (e *EMMCImage) Close() error {
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	return err
}
