package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAttributes = []byte("attributes")
	bucketNode       = []byte("node")
	keyNodeInfo      = []byte("info")
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

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAttributes, bucketNode} {
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

// attrKey builds the bucket key for one attribute: "ep/cluster/attr"
// with cluster and attribute IDs in hex.
func attrKey(endpoint uint8, cluster, attr uint16) []byte {
	return []byte(fmt.Sprintf("%d/%04X/%04X", endpoint, cluster, attr))
}

func parseAttrKey(key []byte) (endpoint uint8, cluster, attr uint16, err error) {
	var ep int
	if _, err = fmt.Sscanf(string(key), "%d/%04X/%04X", &ep, &cluster, &attr); err != nil {
		return 0, 0, 0, fmt.Errorf("bad attribute key %q: %w", key, err)
	}
	return uint8(ep), cluster, attr, nil
}

func (s *BoltStore) SaveAttribute(endpoint uint8, cluster, attr uint16, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAttributes)
		}
		return b.Put(attrKey(endpoint, cluster, attr), data)
	})
}

func (s *BoltStore) GetAttribute(endpoint uint8, cluster, attr uint16) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAttributes)
		}
		v := b.Get(attrKey(endpoint, cluster, attr))
		if v == nil {
			return fmt.Errorf("attribute %d/0x%04X/0x%04X: %w", endpoint, cluster, attr, ErrNotFound)
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) ListAttributes(fn func(endpoint uint8, cluster, attr uint16, data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			ep, cluster, attr, err := parseAttrKey(k)
			if err != nil {
				return err
			}
			data := make([]byte, len(v))
			copy(data, v)
			return fn(ep, cluster, attr, data)
		})
	})
}

// DeleteAttributes drops every persisted attribute value (factory reset).
func (s *BoltStore) DeleteAttributes() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketAttributes); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketAttributes)
		return err
	})
}

func (s *BoltStore) EnsureNodeInfo() (*NodeInfo, error) {
	var info NodeInfo
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNode)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNode)
		}
		if data := b.Get(keyNodeInfo); data != nil {
			if err := json.Unmarshal(data, &info); err != nil {
				return err
			}
		} else {
			info = NodeInfo{
				UniqueID:  uuid.NewString(),
				FirstBoot: time.Now().UTC(),
			}
		}
		info.BootCount++
		data, err := json.Marshal(&info)
		if err != nil {
			return err
		}
		return b.Put(keyNodeInfo, data)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *BoltStore) GetNodeInfo() (*NodeInfo, error) {
	var info NodeInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNode)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNode)
		}
		data := b.Get(keyNodeInfo)
		if data == nil {
			return fmt.Errorf("node info: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
