package wvrboot

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

// recordingPins counts pin accesses.
type recordingPins struct {
	StaticPins
	configured []int
	reads      int
}

func (p *recordingPins) ConfigurePullUpInput(gpio int) error {
	p.configured = append(p.configured, gpio)
	return nil
}

func (p *recordingPins) Read(gpio int) (int, error) {
	p.reads++
	return p.StaticPins.Read(gpio)
}

func TestDecideWithoutStrappingPin(t *testing.T) {
	for _, level := range []int{0, 1} {
		pins := &recordingPins{StaticPins: StaticPins{WVRPins[3]: level}}
		store := NewMemoryMetadataStore(Metadata{RecoveryModeStrappingPin: 3})
		mode, err := Decide(store, pins, WVRPins)
		if err != nil {
			t.Fatal(err)
		}
		if mode != NormalBoot {
			t.Errorf("level %d: got %v", level, mode)
		}
		if pins.reads != 0 || len(pins.configured) != 0 {
			t.Errorf("pins accessed although the check is disabled")
		}
	}
}

func TestDecideStrappingPin(t *testing.T) {
	tests := []struct {
		level int
		mode  BootMode
	}{
		{0, RecoveryBoot},
		{1, NormalBoot},
	}
	for _, tt := range tests {
		pins := &recordingPins{StaticPins: StaticPins{WVRPins[5]: tt.level}}
		store := NewMemoryMetadataStore(Metadata{ShouldCheckStrappingPin: true, RecoveryModeStrappingPin: 5})
		mode, err := Decide(store, pins, WVRPins)
		if err != nil {
			t.Fatal(err)
		}
		if mode != tt.mode {
			t.Errorf("level %d: got %v, expected %v", tt.level, mode, tt.mode)
		}
		if len(pins.configured) != 1 || pins.configured[0] != WVRPins[5] {
			t.Errorf("configured pins %v, expected [%d]", pins.configured, WVRPins[5])
		}
		if pins.reads != 1 {
			t.Errorf("pin read %d times", pins.reads)
		}
	}
}

func TestDecideUnmappedPin(t *testing.T) {
	store := NewMemoryMetadataStore(Metadata{ShouldCheckStrappingPin: true, RecoveryModeStrappingPin: len(WVRPins)})
	var perr *PreconditionError
	if _, err := Decide(store, StaticPins{}, WVRPins); !errors.As(err, &perr) {
		t.Errorf("expected PreconditionError, got %v", err)
	}
}

func TestSysfsPins(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "gpio27")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "value"), []byte("0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pins := SysfsPins{Root: root}
	if err := pins.ConfigurePullUpInput(27); err != nil {
		t.Fatal(err)
	}
	direction, err := ioutil.ReadFile(filepath.Join(dir, "direction"))
	if err != nil || string(direction) != "in" {
		t.Errorf("direction %q, %v", direction, err)
	}
	level, err := pins.Read(27)
	if err != nil || level != 0 {
		t.Errorf("read %d, %v", level, err)
	}
}

func TestBootModeString(t *testing.T) {
	if NormalBoot.String() != "normal" || RecoveryBoot.String() != "recovery" {
		t.Errorf("unexpected names %v %v", NormalBoot, RecoveryBoot)
	}
}
