package sensor

// Cache is the last observed state per sensor domain. It exists only to
// detect transitions between consecutive snapshots; history lives in the
// event logs. Each domain's fields are independent of the others.
type Cache struct {
	WaterLevel *float64
	WaterState string

	MotionLight bool
	BarkAlert   bool

	FeederState  string
	FeederWeight *float64

	Sleeping *bool

	AirQualityAlert bool
}

// Clone returns a deep copy.
func (c Cache) Clone() Cache {
	out := c
	if c.WaterLevel != nil {
		v := *c.WaterLevel
		out.WaterLevel = &v
	}
	if c.FeederWeight != nil {
		v := *c.FeederWeight
		out.FeederWeight = &v
	}
	if c.Sleeping != nil {
		v := *c.Sleeping
		out.Sleeping = &v
	}
	return out
}
