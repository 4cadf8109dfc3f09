package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"grid-trading-bot-go/internal/models"
)

// badgerStore is the BadgerDB implementation of the OrderStore.
type badgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB database at dbPath and
// returns an OrderStore backed by it.
func NewBadgerStore(dbPath string) (OrderStore, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from the
	// DB operations themselves.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func orderKey(id string) []byte     { return []byte("order:" + id) }
func ladderKey(symbol string) []byte { return []byte("ladder:" + symbol) }

func (s *badgerStore) SaveOrder(order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(orderKey(order.ID), data)
	})
}

func (s *badgerStore) UpdateOrderStatus(orderID string, status models.OrderStatus) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(orderKey(orderID))
		if err != nil {
			return err
		}

		var order models.Order
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &order)
		}); err != nil {
			return err
		}

		order.Status = status
		order.UpdatedAt = time.Now()
		data, err := json.Marshal(&order)
		if err != nil {
			return err
		}
		return txn.Set(orderKey(orderID), data)
	})
}

func (s *badgerStore) SaveLadder(symbol string, levels []models.GridLevel) error {
	data, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ladderKey(symbol), data)
	})
}

func (s *badgerStore) LoadActiveLadder(symbol string) ([]models.GridLevel, error) {
	var levels []models.GridLevel

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ladderKey(symbol))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &levels)
		})
	})

	// Key not found is the expected first-run case, not an error.
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return levels, nil
}

func (s *badgerStore) ClearLadder(symbol string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(ladderKey(symbol))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// GetOrder loads a single persisted order; used by the status command.
func (s *badgerStore) GetOrder(orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(orderKey(orderID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &order)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
