package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"storefront/internal/models"
)

type document struct {
	Orders []*models.Order `json:"orders"`
}

// FileStore keeps every order in a single JSON document. Each call reads the
// whole file; each mutation rewrites it in full through a temp file and a
// rename. A missing file is an empty store.
//
// Mutations are serialized by mu, so two updates of the same order inside one
// process can no longer lose a write. Separate processes sharing the file are
// not supported.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore creates a store backed by path. The file is created on the
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *FileStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read orders file: %w", err)
	}
	if len(data) == 0 {
		return &document{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode orders file: %w", err)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *document) error {
	if doc.Orders == nil {
		doc.Orders = []*models.Order{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode orders: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create orders directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".orders-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write orders: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync orders: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace orders file: %w", err)
	}
	return nil
}

func indexOf(doc *document, match func(*models.Order) bool) int {
	for i, o := range doc.Orders {
		if match(o) {
			return i
		}
	}
	return -1
}

// Create appends a new order. An existing id is a hard error.
func (s *FileStore) Create(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if indexOf(doc, func(o *models.Order) bool { return o.OrderID == order.OrderID }) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderID, order.OrderID)
	}

	stamp(order, s.now())
	doc.Orders = append(doc.Orders, order.Clone())
	return s.write(doc)
}

func (s *FileStore) find(match func(*models.Order) bool) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if i := indexOf(doc, match); i >= 0 {
		return doc.Orders[i].Clone(), nil
	}
	return nil, nil
}

// FindByID retrieves an order by id
func (s *FileStore) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	return s.find(func(o *models.Order) bool { return o.OrderID == orderID })
}

// FindByPreferenceID retrieves the order created for a payment preference
func (s *FileStore) FindByPreferenceID(ctx context.Context, preferenceID string) (*models.Order, error) {
	if preferenceID == "" {
		return nil, nil
	}
	return s.find(func(o *models.Order) bool { return o.PreferenceID == preferenceID })
}

// Update is a read-modify-write of a single order.
func (s *FileStore) Update(ctx context.Context, orderID string, mutate Mutator) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	i := indexOf(doc, func(o *models.Order) bool { return o.OrderID == orderID })
	if i < 0 {
		return nil, nil
	}

	updated, err := applyMutation(doc.Orders[i], mutate, s.now())
	if err != nil {
		return nil, err
	}
	doc.Orders[i] = updated

	if err := s.write(doc); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Count returns the number of stored orders
func (s *FileStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return 0, err
	}
	return len(doc.Orders), nil
}

func stamp(order *models.Order, now time.Time) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.CreatedAt
}

// applyMutation runs mutate on a copy and restores the fields frozen at
// creation: id, creation time and the priced items/delivery/totals snapshot.
func applyMutation(current *models.Order, mutate Mutator, now time.Time) (*models.Order, error) {
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	frozen := current.Clone()
	next.OrderID = frozen.OrderID
	next.CreatedAt = frozen.CreatedAt
	next.Items = frozen.Items
	next.Delivery = frozen.Delivery
	next.Totals = frozen.Totals
	next.UpdatedAt = now.UTC()
	return next, nil
}
