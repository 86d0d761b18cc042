package lease

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketLeases = []byte("leases")

// Store persists the current lease per hardware address in BoltDB so the
// client can enter INIT-REBOOT after a restart.
type Store struct {
	db *bolt.DB
}

// NewStore opens or creates a BoltDB database.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: time.Second,
		NoSync:  false,
	})
	if err != nil {
		return nil, fmt.Errorf("opening lease database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLeases); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketLeases, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying database for packages that keep their own
// buckets alongside the lease.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the lease, replacing any previous lease for the same MAC.
func (s *Store) Save(l *Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshalling lease for %s: %w", l.MAC, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketLeases).Put([]byte(l.MAC.String()), data); err != nil {
			return fmt.Errorf("writing lease for %s: %w", l.MAC, err)
		}
		return nil
	})
}

// Load returns the stored lease for mac, or nil if there is none.
func (s *Store) Load(mac net.HardwareAddr) (*Lease, error) {
	var l *Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLeases).Get([]byte(mac.String()))
		if v == nil {
			return nil
		}
		l = &Lease{}
		if err := json.Unmarshal(v, l); err != nil {
			return fmt.Errorf("unmarshalling lease for %s: %w", mac, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Delete removes the stored lease for mac. Deleting a missing lease is not
// an error.
func (s *Store) Delete(mac net.HardwareAddr) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketLeases).Delete([]byte(mac.String())); err != nil {
			return fmt.Errorf("deleting lease for %s: %w", mac, err)
		}
		return nil
	})
}
