package wvrboot

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v2"
)

var (
	metadataBucketKey = []byte("metadata")
	metadataRecordKey = []byte("record")
)

// ErrNoMetadata is returned by BoltMetadataStore when no record has been
// provisioned yet.
var ErrNoMetadata = errors.New("no metadata record")

// BoltMetadataStore keeps the metadata record in a bolt database. The record is
// stored YAML encoded under a single key and replaced in one transaction.
type BoltMetadataStore struct {
	db *bolt.DB
}

// OpenBoltMetadataStore opens (creating if needed) the database at path.
func OpenBoltMetadataStore(path string) (*BoltMetadataStore, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open metadata database %s", path)
	}
	return &BoltMetadataStore{db: db}, nil
}

// Close closes the database.
func (s *BoltMetadataStore) Close() error {
	return s.db.Close()
}

// Metadata reads the record.
func (s *BoltMetadataStore) Metadata() (Metadata, error) {
	var m Metadata
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metadataBucketKey)
		if b == nil {
			return ErrNoMetadata
		}
		row := b.Get(metadataRecordKey)
		if row == nil {
			return ErrNoMetadata
		}
		return yaml.UnmarshalStrict(row, &m)
	})
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to read metadata")
	}
	return m, nil
}

// WriteMetadata replaces the record.
func (s *BoltMetadataStore) WriteMetadata(m Metadata) error {
	row, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "failed to encode metadata")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metadataBucketKey)
		if err != nil {
			return err
		}
		return b.Put(metadataRecordKey, row)
	})
	if err != nil {
		return errors.Wrap(err, "failed to write metadata")
	}
	return nil
}
