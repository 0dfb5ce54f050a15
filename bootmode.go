package wvrboot

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BootMode is the outcome of the boot mode decision.
type BootMode int

const (
	NormalBoot BootMode = iota
	RecoveryBoot
)

func (b BootMode) String() string {
	switch b {
	case NormalBoot:
		return "normal"
	case RecoveryBoot:
		return "recovery"
	default:
		return fmt.Sprintf("BootMode(%d)", int(b))
	}
}

// PinReader configures and samples GPIOs by their physical number.
type PinReader interface {
	// ConfigurePullUpInput resets the pin and configures it as a pulled-up
	// digital input.
	ConfigurePullUpInput(gpio int) error
	// Read returns the level of the pin, 0 or 1.
	Read(gpio int) (int, error)
}

// PinMap translates board pin indices into physical GPIO numbers.
type PinMap []int

// WVRPins is the pin table of the WVR board.
var WVRPins = PinMap{36, 39, 34, 35, 32, 33, 25, 26, 27, 14, 12, 13, 15, 2, 4}

// GPIO returns the physical GPIO for a board pin index.
func (p PinMap) GPIO(index int) (int, error) {
	if index < 0 || index >= len(p) {
		return 0, preconditionf("strapping pin index %d outside pin map of %d pins", index, len(p))
	}
	return p[index], nil
}

// Decide chooses between a normal and a recovery boot. The strapping pin is
// only consulted when the metadata record asks for it; a low level on the pin
// selects recovery.
func Decide(store MetadataStore, pins PinReader, pinMap PinMap) (BootMode, error) {
	m, err := store.Metadata()
	if err != nil {
		return NormalBoot, err
	}
	if !m.ShouldCheckStrappingPin {
		return NormalBoot, nil
	}

	gpio, err := pinMap.GPIO(m.RecoveryModeStrappingPin)
	if err != nil {
		return NormalBoot, err
	}
	if err := pins.ConfigurePullUpInput(gpio); err != nil {
		return NormalBoot, errors.Wrapf(err, "failed to configure strapping pin %d", m.RecoveryModeStrappingPin)
	}
	level, err := pins.Read(gpio)
	if err != nil {
		return NormalBoot, errors.Wrapf(err, "failed to read strapping pin %d", m.RecoveryModeStrappingPin)
	}
	pkgLog.Infof("strapping pin %d reads %d", m.RecoveryModeStrappingPin, level)

	if level == 0 {
		return RecoveryBoot, nil
	}
	return NormalBoot, nil
}

// StaticPins is a PinReader returning fixed levels. Pins without an entry read
// high, as a pulled-up input with nothing attached would.
type StaticPins map[int]int

// ConfigurePullUpInput does nothing.
func (StaticPins) ConfigurePullUpInput(gpio int) error { return nil }

// Read returns the configured level of the pin.
func (p StaticPins) Read(gpio int) (int, error) {
	if level, ok := p[gpio]; ok {
		return level, nil
	}
	return 1, nil
}

// SysfsPins samples GPIOs through the Linux sysfs GPIO interface. It is used on
// host test rigs that wire the board's strapping pin to a GPIO expander. The
// kernel interface cannot enable pull-ups, so the rig must provide them.
type SysfsPins struct {
	// Root defaults to /sys/class/gpio.
	Root string
}

func (s SysfsPins) root() string {
	if s.Root == "" {
		return "/sys/class/gpio"
	}
	return s.Root
}

// ConfigurePullUpInput exports the pin if necessary and sets it as an input.
func (s SysfsPins) ConfigurePullUpInput(gpio int) error {
	dir := filepath.Join(s.root(), fmt.Sprintf("gpio%d", gpio))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := ioutil.WriteFile(filepath.Join(s.root(), "export"), []byte(strconv.Itoa(gpio)), 0200); err != nil {
			return errors.Wrapf(err, "failed to export gpio %d", gpio)
		}
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0644); err != nil {
		return errors.Wrapf(err, "failed to set gpio %d direction", gpio)
	}
	return nil
}

// Read returns the level of the pin.
func (s SysfsPins) Read(gpio int) (int, error) {
	data, err := ioutil.ReadFile(filepath.Join(s.root(), fmt.Sprintf("gpio%d", gpio), "value"))
	if err != nil {
		return 0, err
	}
	switch strings.TrimSpace(string(data)) {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	default:
		return 0, fmt.Errorf("unexpected value %q for gpio %d", data, gpio)
	}
}
