package paymentmethod

import (
	"sync"
)

type Cache struct {
	mu sync.RWMutex

	data map[string]PaymentMethod
}

func NewCache() *Cache {
	return &Cache{
		data: make(map[string]PaymentMethod),
	}
}

func (c *Cache) Set(items ...PaymentMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		c.data[item.Name] = item
	}
}

func (c *Cache) Get(name string) (PaymentMethod, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.data[name]

	return item, ok
}

func (c *Cache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, name)
}
