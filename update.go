package wvrboot

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// UpdatePlan selects the slot to install and the side effects of a successful
// installation.
type UpdatePlan struct {
	TargetIndex int
	// UpdateWebsiteIndex also points the configuration website at the new slot.
	UpdateWebsiteIndex bool
	// TeardownStorageBeforeRestart closes the block storage session before the
	// device is restarted.
	TeardownStorageBeforeRestart bool
}

// NormalUpdate returns the plan used to install a numbered firmware slot.
func NormalUpdate(index int) UpdatePlan {
	return UpdatePlan{
		TargetIndex:                  index,
		UpdateWebsiteIndex:           true,
		TeardownStorageBeforeRestart: true,
	}
}

// RecoveryUpdate returns the plan used to install the recovery image. The
// website index is left pointing at the last installed bundle and storage is
// not torn down.
func RecoveryUpdate() UpdatePlan {
	return UpdatePlan{TargetIndex: RecoveryIndex}
}

// Updater copies firmware images from block storage into flash.
type Updater struct {
	Storage    BlockReader
	Programmer FlashProgrammer
	Store      MetadataStore
	Restarter  Restarter
	// Watchdog is fed once per sector. Optional.
	Watchdog Watchdog
	// TotalSectors bounds slot lookups. Zero disables the check.
	TotalSectors int
	// Progress is called after every sector written. Optional.
	Progress func(written, total int)
}

var sectorPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, SectorSize)
		return &b
	},
}

// Run installs the slot named by plan. On success the metadata record is
// updated and the device restarted; Run then returns nil. On failure the
// metadata record is left untouched and the error describes the failure.
func (u *Updater) Run(plan UpdatePlan) error {
	wdt := u.Watchdog
	if wdt == nil {
		wdt = nopWatchdog{}
	}

	m, err := u.Store.Metadata()
	if err != nil {
		return err
	}
	slot, err := NewSlotDirectory(m, u.TotalSectors).Slot(plan.TargetIndex)
	if err != nil {
		return err
	}
	pkgLog.Infof("booting firmware index %d, length %d, start_block %d", plan.TargetIndex, slot.Length, slot.StartBlock)

	if err := u.copySlot(slot, wdt); err != nil {
		pkgLog.Errorf("update of slot %d failed: %v", plan.TargetIndex, err)
		return err
	}
	pkgLog.Infof("firmware index %d written to flash", plan.TargetIndex)

	// The record is re-read so that only the fields owned here change.
	m, err = u.Store.Metadata()
	if err != nil {
		return err
	}
	m.CurrentFirmwareIndex = plan.TargetIndex
	if plan.UpdateWebsiteIndex {
		m.CurrentWebsiteIndex = plan.TargetIndex
	}
	if err := u.Store.WriteMetadata(m); err != nil {
		return errors.Wrap(err, "failed to record new firmware")
	}

	if plan.TeardownStorageBeforeRestart {
		if c, ok := u.Storage.(io.Closer); ok {
			if err := c.Close(); err != nil {
				pkgLog.Warnf("failed to close block storage: %v", err)
			}
		}
	}
	wdt.Feed()
	pkgLog.Infof("restarting")
	u.Restarter.Restart()
	return nil
}

// copySlot streams the slot into the flash programmer and finalizes the session.
func (u *Updater) copySlot(slot Slot, wdt Watchdog) error {
	if !u.Programmer.Begin(slot.Length) {
		return ErrInsufficientSpace
	}

	bufp := sectorPool.Get().(*[]byte)
	defer sectorPool.Put(bufp)
	buf := *bufp

	fullSectors := slot.Length / SectorSize
	remainder := slot.Length % SectorSize
	sector := slot.StartBlock
	total := slot.Sectors()

	pkgLog.Debugf("starting update: %d full sectors, %d byte remainder", fullSectors, remainder)
	for i := 0; i < fullSectors; i++ {
		wdt.Feed()
		if err := u.writeSector(buf, sector, SectorSize); err != nil {
			return err
		}
		sector++
		if u.Progress != nil {
			u.Progress(i+1, total)
		}
	}

	// An aborted session is not resumed, so the remainder is only copied when
	// every full sector made it into flash.
	if remainder > 0 {
		if err := u.writeSector(buf, sector, remainder); err != nil {
			return err
		}
		if u.Progress != nil {
			u.Progress(total, total)
		}
	}
	pkgLog.Debugf("done writing")

	wdt.Feed()
	ended := u.Programmer.End()
	finished := ended && u.Programmer.IsFinished()
	if !ended || !finished {
		return &FinalizeError{Ended: ended, Finished: finished}
	}
	return nil
}

// writeSector reads one sector and passes the first n bytes to the programmer,
// aborting the session on any failure.
func (u *Updater) writeSector(buf []byte, sector, n int) error {
	if err := u.Storage.ReadSectors(buf, sector, 1); err != nil {
		u.Programmer.Abort()
		var serr *StorageError
		if errors.As(err, &serr) {
			return err
		}
		return &StorageError{Sector: sector, Count: 1, Err: err}
	}
	if written := u.Programmer.Write(buf[:n]); written != n {
		u.Programmer.Abort()
		return &ShortWriteError{Sector: sector, Expected: n, Written: written}
	}
	return nil
}
