// Package wvrboot implements firmware slot selection and installation for the
// WVR audio board.
//
// The board keeps a number of firmware images ("slots") in raw eMMC sectors and
// a single executable A/B flash partition pair. Installing a slot copies the
// image sector by sector from eMMC into the inactive flash partition, finalises
// the flash session, records the new slot in the metadata record and restarts
// the device. A distinguished recovery slot is installed instead when the
// recovery strapping pin is held at boot.
//
// The package is built around small interfaces so that the same orchestration
// code drives the real hardware, host-side disk images and test doubles:
// BlockReader reads eMMC sectors, FlashProgrammer commits an image to flash,
// MetadataStore persists the metadata record and PinReader samples GPIOs.
//
// A command line tool, found in the cmd/wvrboot directory, exercises the library
// against eMMC dumps, partition directories and serially attached devices.
package wvrboot

// SectorSize is the size in bytes of one eMMC sector.
const SectorSize = 512

// RecoveryIndex is the slot index of the recovery image.
const RecoveryIndex = -1

// Slot describes where a firmware image lives in block storage.
type Slot struct {
	StartBlock int `yaml:"start_block"`
	// Length of the image in bytes.
	Length int `yaml:"length"`
}

// Sectors returns the number of sectors spanned by the slot.
func (s Slot) Sectors() int {
	return (s.Length + SectorSize - 1) / SectorSize
}

// BlockReader reads whole sectors from block storage.
// dst must be exactly count*SectorSize bytes long. A read either fills the
// whole range or fails.
type BlockReader interface {
	ReadSectors(dst []byte, start, count int) error
}

// FlashProgrammer writes an executable image to the inactive flash partition.
// The partitions are swapped only when End succeeds.
type FlashProgrammer interface {
	// Begin starts a write session for an image of the given size. It returns
	// false if the image does not fit.
	Begin(size int) bool
	// Write returns the number of bytes accepted.
	Write(p []byte) int
	Abort()
	End() bool
	IsFinished() bool
}

// Watchdog is fed during long running operations.
type Watchdog interface {
	Feed()
}

// Restarter resets the device.
type Restarter interface {
	Restart()
}

// WatchdogFunc adapts a function to the Watchdog interface.
type WatchdogFunc func()

// Feed calls f.
func (f WatchdogFunc) Feed() { f() }

// RestarterFunc adapts a function to the Restarter interface.
type RestarterFunc func()

// Restart calls f.
func (f RestarterFunc) Restart() { f() }

type nopWatchdog struct{}

func (nopWatchdog) Feed() {}
