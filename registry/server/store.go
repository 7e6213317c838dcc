// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/onionsim/core/pki"
)

const (
	dbFile = "registry.db"

	metadataBucket = "metadata"
	nodesBucket    = "nodes"
	versionKey     = "version"

	storeVersion = 0
)

// store persists node records in insertion order, keyed by the bucket
// sequence number.
type store struct {
	db *bolt.DB
}

func openStore(dataDir string) (*store, error) {
	dbPath := filepath.Join(dataDir, dbFile)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	s := &store{db: db}
	if err = s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(nodesBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			// Well it looks like we loaded as opposed to created.
			if len(b) != 1 || b[0] != storeVersion {
				return fmt.Errorf("store: incompatible version: %v", b)
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{storeVersion})
	})
}

// load returns every persisted record in insertion order.
func (s *store) load() ([]pki.NodeRecord, error) {
	var records []pki.NodeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(nodesBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec pki.NodeRecord
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("store: corrupted record %x: %v", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func (s *store) put(rec *pki.NodeRecord) error {
	b, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(nodesBucket))
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		return bkt.Put(k[:], b)
	})
}

func (s *store) clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(nodesBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(nodesBucket))
		return err
	})
}

func (s *store) close() error {
	return s.db.Close()
}
