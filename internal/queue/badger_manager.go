package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// QueueMessage represents the internal structure stored in Badger.
// ID is the job id, so a queue holds at most one message per job: enqueueing
// a job that is already queued replaces the earlier message.
type QueueMessage struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"` // Changes on every enqueue; acks only delete the delivery they received
	Body         Message   `json:"body"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
}

// BadgerManager implements a persistent stage queue using BadgerDB.
// Delivery is at-least-once: a received message becomes visible again
// after the visibility timeout unless it is acknowledged.
type BadgerManager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewBadgerManager creates a new Badger-backed queue manager
func NewBadgerManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 10
	}

	return &BadgerManager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Name returns the queue name
func (m *BadgerManager) Name() string {
	return m.queueName
}

// Enqueue adds a message that is visible immediately
func (m *BadgerManager) Enqueue(ctx context.Context, msg Message) error {
	return m.EnqueueWithDelay(ctx, msg, 0)
}

// EnqueueWithDelay adds a message that becomes visible after delay
func (m *BadgerManager) EnqueueWithDelay(ctx context.Context, msg Message, delay time.Duration) error {
	if msg.JobID == "" {
		return errors.New("message job id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	now := time.Now()
	qMsg := QueueMessage{
		ID:         msg.JobID,
		Token:      uuid.New().String(),
		Body:       msg,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	// Data lives at queue:{name}:msg:{id}; an empty index key
	// queue:{name}:index:{visibleAt}:{id} orders messages by visibility
	return m.db.Update(func(txn *badger.Txn) error {
		existing, err := m.load(txn, qMsg.ID)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if existing != nil {
			if err := deleteIgnoreMissing(txn, m.indexKey(existing.VisibleAt, existing.ID)); err != nil {
				return err
			}
		}

		if err := txn.Set(m.msgKey(qMsg.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, qMsg.ID), []byte{})
	})
}

// Receive pulls the next visible message from the queue. The returned
// function acknowledges (deletes) exactly this delivery.
func (m *BadgerManager) Receive(ctx context.Context) (*Message, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var qMsg QueueMessage
	claimed := false
	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := m.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		var claimedIndexKey []byte

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Keys are sorted by visibility; nothing later is ready either
				break
			}

			candidate, err := m.load(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				// Orphaned index entry
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}

			if candidate.ReceiveCount >= m.maxReceive {
				// Poison message: the job record stays authoritative and the
				// stale sweep will resurface it if it is still in flight
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			qMsg = *candidate
			claimedIndexKey = key
			break
		}

		if claimedIndexKey == nil {
			// Commit the poison and orphan deletions even though nothing was claimed
			return nil
		}
		claimed = true

		qMsg.ReceiveCount++
		qMsg.VisibleAt = now.Add(m.visibilityTimeout)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(qMsg.ID), newData); err != nil {
			return err
		}
		if err := txn.Delete(claimedIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, qMsg.ID), []byte{})
	})
	if err != nil {
		return nil, nil, err
	}
	if !claimed {
		return nil, nil, ErrNoMessage
	}

	msgID, token := qMsg.ID, qMsg.Token
	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			current, err := m.load(txn, msgID)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if current.Token != token {
				// Re-enqueued while being handled (retry scheduled); keep the new message
				return nil
			}
			if err := deleteIgnoreMissing(txn, m.indexKey(current.VisibleAt, msgID)); err != nil {
				return err
			}
			return txn.Delete(m.msgKey(msgID))
		})
	}

	body := qMsg.Body
	return &body, deleteFn, nil
}

// Len returns the number of messages held by the queue, visible or not
func (m *BadgerManager) Len(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the queue manager (no-op for BadgerManager as DB is managed externally)
func (m *BadgerManager) Close() error {
	return nil
}

// Helpers

func (m *BadgerManager) load(txn *badger.Txn, id string) (*QueueMessage, error) {
	item, err := txn.Get(m.msgKey(id))
	if err != nil {
		return nil, err
	}
	var qMsg QueueMessage
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &qMsg)
	}); err != nil {
		return nil, err
	}
	return &qMsg, nil
}

func deleteIgnoreMissing(txn *badger.Txn, key []byte) error {
	if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return nil
}

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *BadgerManager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
}

func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so lexical order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := m.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	// Suffix is "{20-digit-ts}:{id}"
	suffix := string(key[len(prefix):])
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
