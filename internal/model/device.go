package model

import "time"

// DeviceDescriptor is the immutable identity of a known device.
type DeviceDescriptor struct {
	ID            string
	Label         string
	NominalPowerW float64
}

// DeviceState is the mutable on/off and power state of one device.
// Invariant: On == false implies PowerW == 0.
type DeviceState struct {
	On            bool
	PowerW        float64
	LastChangedAt time.Time
}

// AggregatedSample is one point of the total-power time series.
type AggregatedSample struct {
	Timestamp   time.Time
	TotalPowerW float64
}

// Catalog enumerates the devices known to the simulation. It is built once at
// startup and never mutated afterwards.
type Catalog struct {
	devices map[string]DeviceDescriptor
	ids     []string // insertion order, for stable listings
}

func NewCatalog(devices []DeviceDescriptor) *Catalog {
	c := &Catalog{devices: make(map[string]DeviceDescriptor, len(devices))}
	for _, d := range devices {
		if _, ok := c.devices[d.ID]; ok {
			continue
		}
		c.devices[d.ID] = d
		c.ids = append(c.ids, d.ID)
	}
	return c
}

// Get returns the descriptor for id.
func (c *Catalog) Get(id string) (DeviceDescriptor, bool) {
	d, ok := c.devices[id]
	return d, ok
}

// IDs returns all device IDs in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	return ids
}

// All returns all descriptors in catalog order.
func (c *Catalog) All() []DeviceDescriptor {
	all := make([]DeviceDescriptor, 0, len(c.ids))
	for _, id := range c.ids {
		all = append(all, c.devices[id])
	}
	return all
}

func (c *Catalog) Len() int {
	return len(c.ids)
}

// DefaultCatalog is the fixed household device list used by the demo server.
func DefaultCatalog() *Catalog {
	return NewCatalog([]DeviceDescriptor{
		{ID: "kettle", Label: "Electric Kettle", NominalPowerW: 1500},
		{ID: "oven", Label: "Oven", NominalPowerW: 2200},
		{ID: "washing", Label: "Washing Machine", NominalPowerW: 500},
		{ID: "drier", Label: "Drier", NominalPowerW: 1800},
		{ID: "fridge", Label: "Fridge", NominalPowerW: 120},
		{ID: "tv_media", Label: "TV & Media", NominalPowerW: 180},
		{ID: "desk", Label: "Desk Power", NominalPowerW: 90},
		{ID: "network", Label: "Network", NominalPowerW: 35},
		{ID: "heat_pump", Label: "Heat Pump", NominalPowerW: 950},
		{ID: "dishwasher", Label: "Dishwasher", NominalPowerW: 1300},
	})
}
