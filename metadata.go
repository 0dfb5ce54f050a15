package wvrboot

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Metadata is the durable record describing the installed firmware slots and
// the boot configuration.
type Metadata struct {
	CurrentFirmwareIndex     int  `yaml:"current_firmware_index"`
	CurrentWebsiteIndex      int  `yaml:"current_website_index"`
	ShouldCheckStrappingPin  bool `yaml:"should_check_strapping_pin"`
	RecoveryModeStrappingPin int  `yaml:"recovery_mode_strapping_pin"`
	WifiStartsOn             bool `yaml:"wifi_starts_on"`

	FirmwareSlots []Slot `yaml:"firmware_slots"`
	RecoverySlot  Slot   `yaml:"recovery_slot"`
}

// Validate checks that the active firmware index resolves to a slot.
func (m Metadata) Validate() error {
	if _, err := NewSlotDirectory(m, 0).Slot(m.CurrentFirmwareIndex); err != nil {
		return errors.Wrap(err, "current firmware index")
	}
	return nil
}

// MetadataStore persists the metadata record. Metadata returns a copy; changes
// are made by writing back the whole record.
type MetadataStore interface {
	Metadata() (Metadata, error)
	WriteMetadata(m Metadata) error
}

func cloneMetadata(m Metadata) Metadata {
	if m.FirmwareSlots != nil {
		slots := make([]Slot, len(m.FirmwareSlots))
		copy(slots, m.FirmwareSlots)
		m.FirmwareSlots = slots
	}
	return m
}

// FileMetadataStore keeps the metadata record in a YAML file.
type FileMetadataStore struct {
	Path string
}

// NewFileMetadataStore returns a store backed by the YAML file at path.
func NewFileMetadataStore(path string) *FileMetadataStore {
	return &FileMetadataStore{Path: path}
}

// Metadata reads and decodes the record.
func (s *FileMetadataStore) Metadata() (Metadata, error) {
	data, err := ioutil.ReadFile(s.Path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to read metadata")
	}
	var m Metadata
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return Metadata{}, errors.Wrapf(err, "failed to parse metadata %s", s.Path)
	}
	return m, nil
}

// WriteMetadata replaces the record. The file is replaced atomically so that a
// power cut leaves either the old or the new record on disk.
func (s *FileMetadataStore) WriteMetadata(m Metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "failed to encode metadata")
	}
	return atomicWriteFile(s.Path, data, 0644)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := ioutil.TempFile(dir, filepath.Base(path)+".*~")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", path)
	}
	// Removing after a successful rename fails harmlessly.
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}

	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// MemoryMetadataStore keeps the record in memory. It is useful for tests and
// for running the boot flow against a record that must not be persisted.
type MemoryMetadataStore struct {
	m Metadata
}

// NewMemoryMetadataStore returns a store holding a copy of m.
func NewMemoryMetadataStore(m Metadata) *MemoryMetadataStore {
	return &MemoryMetadataStore{m: cloneMetadata(m)}
}

// Metadata returns a copy of the record.
func (s *MemoryMetadataStore) Metadata() (Metadata, error) {
	return cloneMetadata(s.m), nil
}

// WriteMetadata replaces the record.
func (s *MemoryMetadataStore) WriteMetadata(m Metadata) error {
	s.m = cloneMetadata(m)
	return nil
}
