package mirror

import (
	"fmt"

	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Direction enables mirroring of one band class.
type Direction struct {
	// Send writes Thing changes to the store.
	Send bool

	// Receive applies store changes to the Thing.
	Receive bool
}

// ThingPolicy selects what WireThings mirrors. The zero value mirrors
// nothing.
type ThingPolicy struct {
	Meta   Direction
	IState Direction
	OState Direction

	// Model only supports Send: the structural description is written
	// once when a Thing is attached.
	Model Direction
}

// DefaultThingPolicy mirrors every band class in both directions, and
// sends the model.
func DefaultThingPolicy() ThingPolicy {
	both := Direction{Send: true, Receive: true}
	return ThingPolicy{
		Meta:   both,
		IState: both,
		OState: both,
		Model:  Direction{Send: true},
	}
}

// ThingPolicyFromBands builds a policy from a band name map, as found in
// configuration files. Unknown band names and model/receive are rejected.
func ThingPolicyFromBands(bands map[string]Direction) (ThingPolicy, error) {
	var p ThingPolicy
	for band, dir := range bands {
		switch band {
		case thing.BandMeta:
			p.Meta = dir
		case thing.BandIState:
			p.IState = dir
		case thing.BandOState:
			p.OState = dir
		case thing.BandModel:
			if dir.Receive {
				return ThingPolicy{}, fmt.Errorf("%w: model can only be sent", ErrConfiguration)
			}
			p.Model = dir
		default:
			return ThingPolicy{}, fmt.Errorf("%w: unknown band class %q", ErrConfiguration, band)
		}
	}
	return p, nil
}
