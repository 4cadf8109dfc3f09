package store

import "grid-trading-bot-go/internal/models"

// OrderStore defines the interface for order and ladder persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB,
// in-memory) from the rest of the application.
type OrderStore interface {
	// SaveOrder persists an order record, overwriting any previous
	// version. Filled orders are retained for audit.
	SaveOrder(order *models.Order) error

	// UpdateOrderStatus transitions a persisted order's status.
	UpdateOrderStatus(orderID string, status models.OrderStatus) error

	// SaveLadder atomically persists the full ladder snapshot for a
	// symbol so the engine can recover it after a restart.
	SaveLadder(symbol string, levels []models.GridLevel) error

	// LoadActiveLadder loads the persisted ladder for a symbol.
	// If none is found (first run), it returns (nil, nil).
	LoadActiveLadder(symbol string) ([]models.GridLevel, error)

	// ClearLadder removes the persisted ladder after a clean stop.
	ClearLadder(symbol string) error

	// Close gracefully closes the connection to the database.
	Close() error
}
