package wvrboot

// SlotDirectory resolves slot indices to block storage geometry.
type SlotDirectory struct {
	slots        []Slot
	recovery     Slot
	totalSectors int
}

// NewSlotDirectory builds a directory from the slot table held in the metadata
// record. totalSectors is the size of the block device; zero disables the range
// check.
func NewSlotDirectory(m Metadata, totalSectors int) *SlotDirectory {
	d := &SlotDirectory{
		slots:        make([]Slot, len(m.FirmwareSlots)),
		recovery:     m.RecoverySlot,
		totalSectors: totalSectors,
	}
	copy(d.slots, m.FirmwareSlots)
	return d
}

// Slot returns the slot with the given index. RecoveryIndex returns the
// recovery slot. Unknown indices and slots that do not fit on the device are
// precondition violations.
func (d *SlotDirectory) Slot(index int) (Slot, error) {
	var s Slot
	switch {
	case index == RecoveryIndex:
		s = d.recovery
	case index >= 0 && index < len(d.slots):
		s = d.slots[index]
	default:
		return Slot{}, preconditionf("unknown firmware slot %d", index)
	}

	if s.Length <= 0 {
		return Slot{}, preconditionf("firmware slot %d is empty", index)
	}
	if s.StartBlock < 0 {
		return Slot{}, preconditionf("firmware slot %d starts at negative block %d", index, s.StartBlock)
	}
	if d.totalSectors > 0 && s.StartBlock+s.Sectors() > d.totalSectors {
		return Slot{}, preconditionf("firmware slot %d (blocks %d-%d) exceeds device size of %d sectors",
			index, s.StartBlock, s.StartBlock+s.Sectors()-1, d.totalSectors)
	}
	return s, nil
}

// Indices returns the numbered slot indices that hold an image.
func (d *SlotDirectory) Indices() []int {
	var idx []int
	for i, s := range d.slots {
		if s.Length > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}
