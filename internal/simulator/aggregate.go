package simulator

import "nilm_simulator/internal/model"

// TotalPower sums the instantaneous draw of all devices currently on. Pure
// function of the snapshot, safe to call concurrently with anything.
func TotalPower(states map[string]model.DeviceState) float64 {
	var total float64
	for _, st := range states {
		if st.On {
			total += st.PowerW
		}
	}
	return total
}
