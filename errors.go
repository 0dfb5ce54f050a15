package wvrboot

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInsufficientSpace is returned when the flash programmer rejects an image
// because it does not fit in the spare partition.
var ErrInsufficientSpace = errors.New("not enough space in flash for this firmware")

// StorageError reports a failed block storage read.
type StorageError struct {
	Sector int
	Count  int
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage read of %d sector(s) at %d failed: %v", e.Count, e.Sector, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ShortWriteError reports that the flash programmer accepted fewer bytes than
// were offered. The write session has been aborted when this is returned.
type ShortWriteError struct {
	Sector   int
	Expected int
	Written  int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("short write of sector %d: wrote %d of %d bytes", e.Sector, e.Written, e.Expected)
}

// FinalizeError reports that the flash session could not be closed or the
// image was incomplete. The previously active firmware is still in use.
type FinalizeError struct {
	Ended    bool
	Finished bool
}

func (e *FinalizeError) Error() string {
	if !e.Ended {
		return "finalize failed: end of flash session reported failure"
	}
	return "finalize failed: image not finished"
}

// PreconditionError reports a caller bug such as an unknown slot index or an
// unmapped strapping pin.
type PreconditionError struct {
	What string
}

func (e *PreconditionError) Error() string {
	return "precondition violated: " + e.What
}

func preconditionf(format string, args ...interface{}) error {
	return &PreconditionError{What: fmt.Sprintf(format, args...)}
}
