package sim

import (
	"fmt"

	"github.com/najoast/roadsim/protocol"
)

// Snapshot is a read-only copy of the simulation counters.
type Snapshot struct {
	Spawned             int
	Arrived             int
	FuelExhausted       int
	Crashed             int
	PassengersDelivered int
	PassengersStranded  int
	SpawnsDropped       int
}

// Active is the number of vehicles still on the network.
func (s Snapshot) Active() int {
	return s.Spawned - s.Arrived - s.FuelExhausted - s.Crashed
}

// StatusLine renders the periodic status report.
func (s Snapshot) StatusLine(minutes int) string {
	return fmt.Sprintf("[Time: %d mins] %d vehicles (%d active), %d passengers delivered, %d stranded passengers, %d crashed vehicles, %d vehicles exhausted fuel",
		minutes, s.Spawned, s.Active(), s.PassengersDelivered, s.PassengersStranded, s.Crashed, s.FuelExhausted)
}

// SummaryLine renders the final report.
func (s Snapshot) SummaryLine(minutes int) string {
	return fmt.Sprintf("Finished after %d mins: %d vehicles, %d passengers delivered, %d passengers stranded, %d crashed vehicles, %d vehicles exhausted fuel",
		minutes, s.Spawned, s.PassengersDelivered, s.PassengersStranded, s.Crashed, s.FuelExhausted)
}

// Aggregator owns the simulation counters. Only the control actor's
// message step mutates it.
type Aggregator struct {
	s Snapshot
}

// Apply folds one vehicle report into the counters.
func (a *Aggregator) Apply(r protocol.ControlReport) error {
	switch r.Outcome {
	case protocol.OutcomeSpawned:
		a.s.Spawned++
	case protocol.OutcomeArrived:
		a.s.Arrived++
		a.s.PassengersDelivered += r.Passengers
	case protocol.OutcomeNoFuel:
		a.s.FuelExhausted++
		a.s.PassengersStranded += r.Passengers
	case protocol.OutcomeCollision:
		a.s.Crashed++
		a.s.PassengersStranded += r.Passengers
	default:
		return fmt.Errorf("unknown outcome %d", int(r.Outcome))
	}
	return nil
}

// DropSpawn records a spawn refused by the pool.
func (a *Aggregator) DropSpawn() {
	a.s.SpawnsDropped++
}

// Snapshot returns a copy of the counters.
func (a *Aggregator) Snapshot() Snapshot {
	return a.s
}
