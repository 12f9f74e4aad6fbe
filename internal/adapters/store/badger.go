// Package store implements core.MembershipStore on top of badger.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

var _ core.MembershipStore = (*BadgerStore)(nil)

type BadgerStore struct {
	db *badger.DB
	// claimMu serialises channel claims; conflicting commits are mapped to a
	// lost claim as well.
	claimMu sync.Mutex
}

// Open opens a badger database in dir, or an in-memory one when dir is empty.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Info().Str("module", "adapters.store").Str("dir", dir).Bool("in_memory", dir == "").Msg("membership store opened")
	return New(db), nil
}

func New(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Keys are "member/{channel}/{user}"; channel ids never contain '/'.
func channelPrefix(channel domain.ChannelID) []byte {
	return []byte("member/" + string(channel) + "/")
}

func memberKey(channel domain.ChannelID, user domain.UserID) []byte {
	return append(channelPrefix(channel), string(user)...)
}

// ownerKey marks the channel as claimed; its value is the owner's user id.
func ownerKey(channel domain.ChannelID) []byte {
	return []byte("owner/" + string(channel))
}

func hasPrefix(txn *badger.Txn, prefix []byte) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Seek(prefix)
	return it.ValidForPrefix(prefix)
}

func (s *BadgerStore) Exists(channel domain.ChannelID) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		found = hasPrefix(txn, channelPrefix(channel))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", channel, err)
	}
	return found, nil
}

func (s *BadgerStore) InsertIfAbsent(channel domain.ChannelID, user domain.UserID, state domain.MemberState) (bool, error) {
	value, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	key := memberKey(channel, user)
	inserted := false
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		inserted = true
		return txn.Set(key, value)
	})
	if err != nil {
		return false, fmt.Errorf("insert %s/%s: %w", channel, user, err)
	}
	return inserted, nil
}

// ClaimChannel writes the owner marker and the owner's member entry in one
// transaction, only when the channel has neither a marker nor any member.
func (s *BadgerStore) ClaimChannel(channel domain.ChannelID, owner domain.UserID, state domain.MemberState) (bool, error) {
	value, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	claimed := false
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(ownerKey(channel))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if hasPrefix(txn, channelPrefix(channel)) {
			return nil
		}
		if err := txn.Set(ownerKey(channel), []byte(owner)); err != nil {
			return err
		}
		if err := txn.Set(memberKey(channel, owner), value); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", channel, err)
	}
	return claimed, nil
}

func (s *BadgerStore) Owner(channel domain.ChannelID) (domain.UserID, bool, error) {
	var owner domain.UserID
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ownerKey(channel))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			owner = domain.UserID(value)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("owner %s: %w", channel, err)
	}
	return owner, true, nil
}

func (s *BadgerStore) Get(channel domain.ChannelID, user domain.UserID) (domain.MemberState, bool, error) {
	var state domain.MemberState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(channel, user))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.MemberState{}, false, nil
	}
	if err != nil {
		return domain.MemberState{}, false, fmt.Errorf("get %s/%s: %w", channel, user, err)
	}
	return state, true, nil
}

func (s *BadgerStore) Set(channel domain.ChannelID, user domain.UserID, state domain.MemberState) error {
	value, err := json.Marshal(state)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey(channel, user), value)
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", channel, user, err)
	}
	return nil
}

// Delete is idempotent.
func (s *BadgerStore) Delete(channel domain.ChannelID, user domain.UserID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(memberKey(channel, user))
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", channel, user, err)
	}
	return nil
}

// DeleteChannel removes every member entry of the channel and its owner marker.
func (s *BadgerStore) DeleteChannel(channel domain.ChannelID) error {
	prefix := channelPrefix(channel)
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(ownerKey(channel))
	})
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", channel, err)
	}
	return nil
}

// Members lists the channel's entries ordered by user id.
func (s *BadgerStore) Members(channel domain.ChannelID) ([]domain.Member, error) {
	prefix := channelPrefix(channel)
	var out []domain.Member
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			user := domain.UserID(item.Key()[len(prefix):])
			var state domain.MemberState
			err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &state)
			})
			if err != nil {
				return err
			}
			out = append(out, domain.Member{UserID: user, Role: state.Role, Approved: state.Approved})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("members %s: %w", channel, err)
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
