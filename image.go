package wvrboot

import (
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// ImageFormat identifies the encoding of a firmware image file.
type ImageFormat int

const (
	FormatBinary ImageFormat = iota
	FormatIntelHex
)

// FormatFromName guesses the image format from a file name.
func FormatFromName(name string) ImageFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hex", ".ihex":
		return FormatIntelHex
	default:
		return FormatBinary
	}
}

// LoadImage reads a firmware image. Intel HEX images are flattened starting at
// their lowest address with gaps filled with 0xFF, the erased flash value.
func LoadImage(r io.Reader, format ImageFormat) ([]byte, error) {
	if format == FormatBinary {
		data, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read image")
		}
		return data, nil
	}

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, "failed to parse hex image")
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, errors.New("hex image contains no data")
	}
	start := segments[0].Address
	end := start
	for _, segment := range segments {
		if segment.Address < start {
			start = segment.Address
		}
		if e := segment.Address + uint32(len(segment.Data)); e > end {
			end = e
		}
		pkgLog.Debugf("loaded segment at %X length %v", segment.Address, len(segment.Data))
	}
	return mem.ToBinary(start, end-start, 0xFF), nil
}

type slotError struct {
	Slot Slot
	Err  error
}

func (e *slotError) Error() string {
	return fmt.Sprintf("slot at block %d: %v", e.Slot.StartBlock, e.Err)
}

func (e *slotError) Unwrap() error { return e.Err }

// ProvisionSlot writes image into block storage at the slot's start block.
// limit is the number of sectors reserved for the slot; zero disables the
// check. The returned slot records the image length.
func ProvisionSlot(w io.WriterAt, startBlock, limit int, image []byte) (Slot, error) {
	slot := Slot{StartBlock: startBlock, Length: len(image)}
	if len(image) == 0 {
		return Slot{}, &slotError{Slot: slot, Err: errors.New("empty image")}
	}
	if limit > 0 && slot.Sectors() > limit {
		return Slot{}, &slotError{Slot: slot,
			Err: errors.Errorf("image of %d sectors exceeds %d reserved sectors", slot.Sectors(), limit)}
	}

	// Pad to a whole sector so the tail of the last sector is deterministic.
	padded := make([]byte, slot.Sectors()*SectorSize)
	copy(padded, image)
	for i := len(image); i < len(padded); i++ {
		padded[i] = 0xFF
	}
	if _, err := w.WriteAt(padded, int64(startBlock)*SectorSize); err != nil {
		return Slot{}, &slotError{Slot: slot, Err: err}
	}
	pkgLog.Infof("provisioned %d bytes at block %d", len(image), startBlock)
	return slot, nil
}
