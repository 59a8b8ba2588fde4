package registry

import (
	"sync"

	"device-inventory-api/internal/models"
)

// deviceCache is the read-through copy of the device list. Every mutation
// bumps the generation, which marks the list stale and discards any reload
// that started before the mutation.
type deviceCache struct {
	mu         sync.RWMutex
	devices    []models.Device
	loaded     bool
	generation uint64
}

// snapshot returns a copy of the cached list when it is fresh.
func (c *deviceCache) snapshot() ([]models.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return nil, false
	}
	return cloneDevices(c.devices), true
}

// lookup returns a cached device when the cache is fresh.
func (c *deviceCache) lookup(uid int64) (models.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return models.Device{}, false
	}
	for _, d := range c.devices {
		if d.UID == uid {
			return d.Clone(), true
		}
	}
	return models.Device{}, false
}

// currentGeneration is read before a reload starts.
func (c *deviceCache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// fill stores devices unless the cache was invalidated after gen was read.
func (c *deviceCache) fill(devices []models.Device, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.devices = cloneDevices(devices)
	c.loaded = true
	return true
}

// invalidate marks the list stale.
func (c *deviceCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.loaded = false
}

// remove drops uid from the cached list and marks it stale.
func (c *deviceCache) remove(uid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.devices[:0]
	for _, d := range c.devices {
		if d.UID != uid {
			kept = append(kept, d)
		}
	}
	c.devices = kept
	c.generation++
	c.loaded = false
}

// stale reports whether the next read has to go to the store.
func (c *deviceCache) stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.loaded
}

func cloneDevices(in []models.Device) []models.Device {
	out := make([]models.Device, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
