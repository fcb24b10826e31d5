package linkstore

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"
)

var (
	bucketLinks   = []byte("links")   // player uuid -> discord user id
	bucketCodes   = []byte("codes")   // code -> player uuid (16) + expiry unix (8)
	bucketPending = []byte("pending") // player uuid -> code
)

var (
	ErrCodeNotFound = errors.New("linking code not found")
	ErrCodeExpired  = errors.New("linking code expired")
	ErrEmptyAccount = errors.New("discord account id must not be empty")
)

const codeDigits = 6

// ChangeFunc observes link changes after they are committed.
type ChangeFunc func(player uuid.UUID, linked bool)

// Store is a bbolt-backed account link store with short-lived linking codes.
type Store struct {
	db *bbolt.DB

	mu        sync.RWMutex
	listeners []ChangeFunc
}

// Stats captures counts for the persistent store.
type Stats struct {
	Links   uint64
	Pending uint64
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open link store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketLinks, bucketCodes, bucketPending} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// OnChange registers fn to run after every committed Link or Unlink.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify(player uuid.UUID, linked bool) {
	s.mu.RLock()
	ls := append([]ChangeFunc(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range ls {
		fn(player, linked)
	}
}

// LinkedAccount returns the Discord account linked to the player.
func (s *Store) LinkedAccount(player uuid.UUID) (string, bool, error) {
	var account string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketLinks).Get(player[:]); v != nil {
			account = string(v)
		}
		return nil
	})
	return account, account != "", err
}

// Link associates the player with a Discord account and drops any pending code.
func (s *Store) Link(player uuid.UUID, account string) error {
	if account == "" {
		return ErrEmptyAccount
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := dropPending(tx, player); err != nil {
			return err
		}
		return tx.Bucket(bucketLinks).Put(player[:], []byte(account))
	})
	if err != nil {
		return err
	}
	s.notify(player, true)
	return nil
}

// Unlink removes the player's link. Unlinking an unlinked player is not an error.
func (s *Store) Unlink(player uuid.UUID) error {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLinks)
		existed = b.Get(player[:]) != nil
		return b.Delete(player[:])
	})
	if err != nil {
		return err
	}
	if existed {
		s.notify(player, false)
	}
	return nil
}

// VisitLinked calls visit for every linked player until it returns false.
func (s *Store) VisitLinked(visit func(player uuid.UUID) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketLinks).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			id, err := uuid.FromBytes(k)
			if err != nil {
				continue
			}
			if !visit(id) {
				return nil
			}
		}
		return nil
	})
}

// IssueCode returns the player's pending linking code, issuing a new one when
// none exists or the previous one expired.
func (s *Store) IssueCode(player uuid.UUID, now time.Time, ttl time.Duration) (string, error) {
	var code string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		codes := tx.Bucket(bucketCodes)
		if v := tx.Bucket(bucketPending).Get(player[:]); v != nil {
			if rec := codes.Get(v); len(rec) == 24 && now.Unix() < int64(binary.BigEndian.Uint64(rec[16:])) {
				code = string(v)
				return nil
			}
			if err := dropPending(tx, player); err != nil {
				return err
			}
		}
		for {
			c, err := randomCode()
			if err != nil {
				return err
			}
			if codes.Get([]byte(c)) == nil {
				code = c
				break
			}
		}
		rec := make([]byte, 24)
		copy(rec, player[:])
		binary.BigEndian.PutUint64(rec[16:], uint64(now.Add(ttl).Unix()))
		if err := codes.Put([]byte(code), rec); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).Put(player[:], []byte(code))
	})
	return code, err
}

// Redeem links the player that owns code to account.
func (s *Store) Redeem(code, account string, now time.Time) (uuid.UUID, error) {
	if account == "" {
		return uuid.Nil, ErrEmptyAccount
	}
	var player uuid.UUID
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec := tx.Bucket(bucketCodes).Get([]byte(code))
		if len(rec) != 24 {
			return ErrCodeNotFound
		}
		id, err := uuid.FromBytes(rec[:16])
		if err != nil {
			return fmt.Errorf("corrupt code record: %w", err)
		}
		if now.Unix() >= int64(binary.BigEndian.Uint64(rec[16:])) {
			return ErrCodeExpired
		}
		player = id
		if err := dropPending(tx, id); err != nil {
			return err
		}
		return tx.Bucket(bucketLinks).Put(id[:], []byte(account))
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.notify(player, true)
	return player, nil
}

// Stats returns record counts.
func (s *Store) Stats() Stats {
	st := Stats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		st.Links = uint64(tx.Bucket(bucketLinks).Stats().KeyN)
		st.Pending = uint64(tx.Bucket(bucketPending).Stats().KeyN)
		return nil
	})
	return st
}

func dropPending(tx *bbolt.Tx, player uuid.UUID) error {
	pending := tx.Bucket(bucketPending)
	if v := pending.Get(player[:]); v != nil {
		if err := tx.Bucket(bucketCodes).Delete(append([]byte(nil), v...)); err != nil {
			return err
		}
	}
	return pending.Delete(player[:])
}

// randomCode draws a zero-padded decimal code from crypto/rand.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate linking code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
