package wvrboot

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// AppImageMagic is the first byte of every ESP32 application image.
const AppImageMagic = 0xE9

const otadataFile = "otadata.yaml"

type otadata struct {
	Active   int `yaml:"active"`
	Sequence int `yaml:"sequence"`
}

// PartitionProgrammer implements FlashProgrammer on a directory holding the two
// application partitions (app0.bin, app1.bin) and the otadata record selecting
// the active one. It mirrors the OTA partition scheme of the ESP32 so that
// update flows can be exercised on a host.
type PartitionProgrammer struct {
	Dir           string
	PartitionSize int

	f       *os.File
	target  int
	size    int
	written int
	magic   byte
}

// NewPartitionProgrammer returns a programmer for the partition set in dir.
func NewPartitionProgrammer(dir string, partitionSize int) *PartitionProgrammer {
	return &PartitionProgrammer{Dir: dir, PartitionSize: partitionSize}
}

func (p *PartitionProgrammer) partitionPath(n int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("app%d.bin", n))
}

func (p *PartitionProgrammer) readOtadata() (otadata, error) {
	var d otadata
	data, err := ioutil.ReadFile(filepath.Join(p.Dir, otadataFile))
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, errors.Wrap(err, "invalid otadata")
	}
	if d.Active != 0 && d.Active != 1 {
		return d, errors.Errorf("invalid otadata: active partition %d", d.Active)
	}
	return d, nil
}

// Active returns the index of the partition the device boots from.
func (p *PartitionProgrammer) Active() (int, error) {
	d, err := p.readOtadata()
	return d.Active, err
}

// ActivePath returns the path of the partition the device boots from.
func (p *PartitionProgrammer) ActivePath() (string, error) {
	n, err := p.Active()
	if err != nil {
		return "", err
	}
	return p.partitionPath(n), nil
}

// Begin opens the inactive partition for an image of size bytes.
func (p *PartitionProgrammer) Begin(size int) bool {
	if p.f != nil {
		p.Abort()
	}
	if size <= 0 || size > p.PartitionSize {
		pkgLog.Errorf("image of %d bytes does not fit partition of %d bytes", size, p.PartitionSize)
		return false
	}
	active, err := p.Active()
	if err != nil {
		pkgLog.Errorf("failed to read otadata: %v", err)
		return false
	}

	p.target = 1 - active
	f, err := os.OpenFile(p.partitionPath(p.target), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		pkgLog.Errorf("failed to open partition: %v", err)
		return false
	}
	p.f = f
	p.size = size
	p.written = 0
	p.magic = 0
	pkgLog.Debugf("writing %d bytes to partition %d", size, p.target)
	return true
}

// Write appends p to the partition, accepting no more than the announced size.
func (p *PartitionProgrammer) Write(b []byte) int {
	if p.f == nil {
		return 0
	}
	if rem := p.size - p.written; len(b) > rem {
		b = b[:rem]
	}
	n, err := p.f.Write(b)
	if err != nil {
		pkgLog.Errorf("partition write failed: %v", err)
	}
	if p.written == 0 && n > 0 {
		p.magic = b[0]
	}
	p.written += n
	return n
}

// Abort abandons the session. The active partition is unchanged.
func (p *PartitionProgrammer) Abort() {
	if p.f == nil {
		return
	}
	p.f.Close()
	p.f = nil
	p.size = 0
	pkgLog.Debugf("aborted write to partition %d", p.target)
}

// End closes the session and, when the image is complete and well formed,
// makes the written partition the active one.
func (p *PartitionProgrammer) End() bool {
	if p.f == nil {
		return false
	}
	f := p.f
	p.f = nil

	if err := f.Sync(); err != nil {
		f.Close()
		pkgLog.Errorf("failed to sync partition: %v", err)
		return false
	}
	if err := f.Close(); err != nil {
		pkgLog.Errorf("failed to close partition: %v", err)
		return false
	}
	if !p.IsFinished() {
		pkgLog.Errorf("image incomplete: %d of %d bytes", p.written, p.size)
		return false
	}
	if p.magic != AppImageMagic {
		pkgLog.Errorf("invalid image magic 0x%02X", p.magic)
		return false
	}

	d, err := p.readOtadata()
	if err != nil {
		pkgLog.Errorf("failed to read otadata: %v", err)
		return false
	}
	d.Active = p.target
	d.Sequence++
	data, err := yaml.Marshal(d)
	if err != nil {
		return false
	}
	if err := atomicWriteFile(filepath.Join(p.Dir, otadataFile), data, 0644); err != nil {
		pkgLog.Errorf("failed to switch partition: %v", err)
		return false
	}
	return true
}

// IsFinished reports whether the whole announced image has been written.
func (p *PartitionProgrammer) IsFinished() bool {
	return p.size > 0 && p.written == p.size
}
