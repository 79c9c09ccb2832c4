package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTelemetry = []byte("telemetry")
	bucketGroups    = []byte("groups")
	bucketProfiles  = []byte("profiles")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTelemetry, bucketGroups, bucketProfiles} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func putJSON(tx *bolt.Tx, bucket, key []byte, v any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func getJSON(tx *bolt.Tx, bucket, key []byte, v any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	data := b.Get(key)
	if data == nil {
		return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
	}
	return json.Unmarshal(data, v)
}

func listJSON[T any](db *bolt.DB, bucket []byte) ([]*T, error) {
	var out []*T
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil // no bucket = no records
		}
		out = make([]*T, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%s %s: %w", bucket, k, err)
			}
			out = append(out, &rec)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) SaveTelemetry(t *Telemetry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketTelemetry, []byte(t.Device), t)
	})
}

func (s *BoltStore) GetTelemetry(device string) (*Telemetry, error) {
	var t Telemetry
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx, bucketTelemetry, []byte(device), &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) ListTelemetry() ([]*Telemetry, error) {
	return listJSON[Telemetry](s.db, bucketTelemetry)
}

func (s *BoltStore) UpdateTelemetry(device string, fn func(t *Telemetry) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t := Telemetry{Device: device}
		if err := getJSON(tx, bucketTelemetry, []byte(device), &t); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		t.Device = device
		return putJSON(tx, bucketTelemetry, []byte(device), &t)
	})
}

func (s *BoltStore) SaveGroup(g *GroupRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketGroups, []byte(g.Kind+"/"+g.Name), g)
	})
}

func (s *BoltStore) ListGroups() ([]*GroupRecord, error) {
	return listJSON[GroupRecord](s.db, bucketGroups)
}

func (s *BoltStore) SaveProfile(p *ProfileRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketProfiles, []byte(strconv.Itoa(p.Unit)), p)
	})
}

func (s *BoltStore) GetProfile(unit int) (*ProfileRecord, error) {
	var p ProfileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx, bucketProfiles, []byte(strconv.Itoa(unit)), &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
