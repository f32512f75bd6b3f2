// Package keystore persists the key shares produced by keygen ceremonies in
// a bolt database. Keys are grouped in one bucket per scheme and addressed
// by the compressed aggregate public key. This is the only place a secret
// share is ever serialized.
package keystore

import (
	"encoding/json"

	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/ceremony/keygen"
	"github.com/quorumkey/tsc/crypto"
)

// Store is a bolt-backed keystore.
type Store struct {
	db *bbolt.DB
}

// New opens the keystore at the given path, creating it when missing.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// storedKey is the serialized form of a key share. Group elements are stored
// in their canonical encodings so that any party of the ceremony writes the
// same bytes for the public parts.
type storedKey struct {
	Params     ceremony.ThresholdParameters `json:"params"`
	Parties    []ceremony.PartyID           `json:"parties"`
	PubKey     []byte                       `json:"pubkey"`
	Secret     []byte                       `json:"secret"`
	PartyKeys  map[uint32][]byte            `json:"partyKeys"`
	Compatible bool                         `json:"compatible"`
}

// Save persists a keygen result under its aggregate public key, overwriting
// any previous entry.
func (s *Store) Save(scheme crypto.Scheme, key *keygen.Result) error {
	partyKeys := make(map[uint32][]byte, len(key.PartyPublicKeys))
	for idx, point := range key.PartyPublicKeys {
		partyKeys[uint32(idx)] = point.Bytes()
	}

	record := storedKey{
		Params:     key.Params,
		Parties:    key.Mapping.AllIDs(),
		PubKey:     key.KeyShare.Y.Bytes(),
		Secret:     key.KeyShare.X.Bytes(),
		PartyKeys:  partyKeys,
		Compatible: key.Compatible,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return xerrors.Errorf("failed to serialize key: %v", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(scheme.Name()))
		if err != nil {
			return xerrors.Errorf("failed to create bucket: %v", err)
		}

		return bucket.Put(record.PubKey, data)
	})
}

// Load reads back the key share stored under the given aggregate public key.
func (s *Store) Load(scheme crypto.Scheme, pubkey []byte) (*keygen.Result, error) {
	var data []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(scheme.Name()))
		if bucket == nil {
			return xerrors.Errorf("no keys stored for scheme %s", scheme.Name())
		}

		value := bucket.Get(pubkey)
		if value == nil {
			return xerrors.New("key not found")
		}

		data = make([]byte, len(value))
		copy(data, value)

		return nil
	})
	if err != nil {
		return nil, err
	}

	var record storedKey

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, xerrors.Errorf("failed to deserialize key: %v", err)
	}

	return s.restore(scheme, record)
}

// List returns the public keys stored for a scheme.
func (s *Store) List(scheme crypto.Scheme) ([][]byte, error) {
	var pubkeys [][]byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(scheme.Name()))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, _ []byte) error {
			pubkey := make([]byte, len(k))
			copy(pubkey, k)
			pubkeys = append(pubkeys, pubkey)

			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to list keys: %v", err)
	}

	return pubkeys, nil
}

// Delete removes the key stored under the given public key, if any.
func (s *Store) Delete(scheme crypto.Scheme, pubkey []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(scheme.Name()))
		if bucket == nil {
			return nil
		}

		return bucket.Delete(pubkey)
	})
}

func (s *Store) restore(scheme crypto.Scheme, record storedKey) (*keygen.Result, error) {
	group := scheme.Group()

	pubkey, err := group.DeserializePoint(record.PubKey)
	if err != nil {
		return nil, xerrors.Errorf("stored pubkey: %v", err)
	}

	secret, err := group.DeserializeScalar(record.Secret)
	if err != nil {
		return nil, xerrors.Errorf("stored secret: %v", err)
	}

	partyKeys := make(map[ceremony.PartyIdx]crypto.Point, len(record.PartyKeys))
	for idx, raw := range record.PartyKeys {
		point, err := group.DeserializePoint(raw)
		if err != nil {
			return nil, xerrors.Errorf("stored party key %d: %v", idx, err)
		}

		partyKeys[ceremony.PartyIdx(idx)] = point
	}

	mapping, err := ceremony.NewPartyIdxMapping(record.Parties)
	if err != nil {
		return nil, xerrors.Errorf("stored party set: %v", err)
	}

	return &keygen.Result{
		KeyShare:        crypto.KeyShare{Y: pubkey, X: secret},
		PartyPublicKeys: partyKeys,
		Params:          record.Params,
		Mapping:         mapping,
		Compatible:      record.Compatible,
	}, nil
}
