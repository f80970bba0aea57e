package vehicle

import (
	"sort"

	"github.com/example/fleet-rides/internal/dispatch"
	"github.com/example/fleet-rides/internal/models"
)

type transition struct {
	from, to models.VehicleStatus
}

// transitions lists every owner-initiated status change the actuator
// supports. onmission is set by rides only and never appears here.
var transitions = map[transition]string{
	{models.StatusAvailable, models.StatusNotAvailable}:   dispatch.ChannelCordonVehicle,
	{models.StatusAvailable, models.StatusMaintenance}:    dispatch.ChannelCordonGarageVehicle,
	{models.StatusNotAvailable, models.StatusAvailable}:   dispatch.ChannelUncordonVehicle,
	{models.StatusNotAvailable, models.StatusMaintenance}: dispatch.ChannelGarageVehicle,
	{models.StatusMaintenance, models.StatusAvailable}:    dispatch.ChannelUngarageUncordonVehicle,
	{models.StatusMaintenance, models.StatusNotAvailable}: dispatch.ChannelUngarageVehicle,
}

// ChannelFor returns the actuator channel that moves a vehicle from one
// status to another.
func ChannelFor(from, to models.VehicleStatus) (string, bool) {
	ch, ok := transitions[transition{from, to}]
	return ch, ok
}

// TargetFor returns the status a vehicle ends in once the actuator has
// handled a message on channel.
func TargetFor(channel string) (models.VehicleStatus, bool) {
	for t, ch := range transitions {
		if ch == channel {
			return t.to, true
		}
	}
	return "", false
}

// Channels lists every owner transition channel.
func Channels() []string {
	out := make([]string, 0, len(transitions))
	for _, ch := range transitions {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}
