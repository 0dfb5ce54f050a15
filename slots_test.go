package wvrboot

import (
	"errors"
	"testing"
)

func TestSlotDirectory(t *testing.T) {
	m := Metadata{
		FirmwareSlots: []Slot{
			{StartBlock: 2048, Length: 1 << 20},
			{},
			{StartBlock: 8192, Length: 1000},
		},
		RecoverySlot: Slot{StartBlock: 64, Length: 500},
	}
	dir := NewSlotDirectory(m, 10000)

	for _, index := range dir.Indices() {
		s, err := dir.Slot(index)
		if err != nil {
			t.Fatalf("slot %d: %v", index, err)
		}
		if s.Length <= 0 || s.StartBlock+s.Sectors() > 10000 {
			t.Errorf("slot %d out of range: %+v", index, s)
		}
	}
	if got := dir.Indices(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("unexpected indices %v", got)
	}

	s, err := dir.Slot(RecoveryIndex)
	if err != nil || s != m.RecoverySlot {
		t.Errorf("recovery slot: %+v, %v", s, err)
	}

	for _, index := range []int{-2, 1, 3, 100} {
		var perr *PreconditionError
		if _, err := dir.Slot(index); !errors.As(err, &perr) {
			t.Errorf("slot %d: expected PreconditionError, got %v", index, err)
		}
	}
}

func TestSlotDirectoryCopiesTable(t *testing.T) {
	m := Metadata{FirmwareSlots: []Slot{{StartBlock: 1, Length: 1}}}
	dir := NewSlotDirectory(m, 0)
	m.FirmwareSlots[0].Length = 0
	if _, err := dir.Slot(0); err != nil {
		t.Errorf("directory affected by later metadata change: %v", err)
	}
}

func TestSlotRangeCheck(t *testing.T) {
	m := Metadata{FirmwareSlots: []Slot{{StartBlock: 99, Length: SectorSize + 1}}}
	if _, err := NewSlotDirectory(m, 101).Slot(0); err != nil {
		t.Errorf("slot ending on the last sector rejected: %v", err)
	}
	if _, err := NewSlotDirectory(m, 100).Slot(0); err == nil {
		t.Error("slot past the end of the device accepted")
	}
}

func TestSlotSectors(t *testing.T) {
	tests := map[int]int{1: 1, SectorSize: 1, SectorSize + 1: 2, 4096: 8, 4100: 9}
	for length, sectors := range tests {
		if got := (Slot{Length: length}).Sectors(); got != sectors {
			t.Errorf("length %d: got %d sectors, expected %d", length, got, sectors)
		}
	}
}
