package store

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// PendingAlarm is one armed wake-up in the persistent alarm table. The table
// mirrors the in-process timers so the dispatcher can re-arm everything it
// held before a restart.
type PendingAlarm struct {
	Key     string          `json:"key"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

const alarmPrefix = "alarm:"

// PutAlarm stores (or replaces) a pending alarm under its key.
func (s *Store) PutAlarm(a PendingAlarm) error {
	val, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(alarmPrefix+a.Key), val)
	})
}

// DeleteAlarm removes a pending alarm; missing keys are a no-op.
func (s *Store) DeleteAlarm(key string) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(alarmPrefix + key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// ListAlarms returns every pending alarm in the table.
func (s *Store) ListAlarms() ([]PendingAlarm, error) {
	var alarms []PendingAlarm
	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(alarmPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var a PendingAlarm
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &a)
			}); err != nil {
				return err
			}
			alarms = append(alarms, a)
		}
		return nil
	})
	return alarms, err
}

// ClearAlarms drops the whole pending-alarm table.
func (s *Store) ClearAlarms() error {
	return s.badger.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(alarmPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
