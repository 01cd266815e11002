package sim

import (
	"fmt"
	"math/rand"
)

// VehicleClass selects a row of VehicleClasses.
type VehicleClass int

const (
	Car VehicleClass = iota
	Bus
	MiniBus
	Coach
	Motorbike
	Bike
)

// ClassSpec holds the constant parameters of a vehicle class.
// Ranges are half-open: [Min, Max).
type ClassSpec struct {
	Name         string
	MaxSpeed     int
	PassengerCap int
	MinFuel      int
	MaxFuel      int
}

// VehicleClasses is indexed by VehicleClass. Fuel is in seconds of driving.
var VehicleClasses = [...]ClassSpec{
	Car:       {Name: "car", MaxSpeed: 100, PassengerCap: 4, MinFuel: 1, MaxFuel: 40},
	Bus:       {Name: "bus", MaxSpeed: 50, PassengerCap: 80, MinFuel: 10, MaxFuel: 100},
	MiniBus:   {Name: "minibus", MaxSpeed: 80, PassengerCap: 15, MinFuel: 2, MaxFuel: 75},
	Coach:     {Name: "coach", MaxSpeed: 60, PassengerCap: 40, MinFuel: 20, MaxFuel: 200},
	Motorbike: {Name: "motorbike", MaxSpeed: 120, PassengerCap: 2, MinFuel: 1, MaxFuel: 20},
	Bike:      {Name: "bike", MaxSpeed: 10, PassengerCap: 1, MinFuel: 2, MaxFuel: 10},
}

func (c VehicleClass) String() string {
	if c < 0 || int(c) >= len(VehicleClasses) {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return VehicleClasses[c].Name
}

// Spec returns the class parameters.
func (c VehicleClass) Spec() ClassSpec {
	return VehicleClasses[c]
}

// randomClass picks any class with equal weight.
func randomClass(rng *rand.Rand) VehicleClass {
	return VehicleClass(rng.Intn(len(VehicleClasses)))
}

// randRange returns a value in [from, to), or from when the range is empty.
func randRange(rng *rand.Rand, from, to int) int {
	if to <= from {
		return from
	}
	return from + rng.Intn(to-from)
}
