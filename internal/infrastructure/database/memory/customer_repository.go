package memory

import (
	"context"
	"sync"
	"time"

	"loan-engine/internal/domain/customer"
)

type CustomerRepository struct {
	mu        sync.RWMutex
	customers map[int64]customer.Customer
	nextID    int64
}

var _ customer.CustomerRepository = (*CustomerRepository)(nil)

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{customers: make(map[int64]customer.Customer)}
}

// Save stores c, assigning an ID when it has none.
func (r *CustomerRepository) Save(c *customer.Customer) *customer.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.CustomerID == 0 {
		r.nextID++
		c.CustomerID = r.nextID
	} else if c.CustomerID > r.nextID {
		r.nextID = c.CustomerID
	}
	c.UpdatedAt = time.Now()
	r.customers[c.CustomerID] = *c
	return c
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID int64) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[customerID]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}
