package matchmaking

import (
	"fmt"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
)

// PointValidator decides whether a proposed meeting point is usable.
type PointValidator func(point geo.Point) bool

// AcceptAnyPoint default validator
func AcceptAnyPoint(geo.Point) bool { return true }

// MeetingPointResolver computes the rendezvous for a matched pair.
type MeetingPointResolver struct {
	validate PointValidator
}

// NewMeetingPointResolver nil validator accepts every point.
func NewMeetingPointResolver(validate PointValidator) *MeetingPointResolver {
	if validate == nil {
		validate = AcceptAnyPoint
	}
	return &MeetingPointResolver{validate: validate}
}

// FindMeetingPoint midpoint of the two players' locations, or ErrNoMeetingPoint
// if the validator rejects it.
func (r *MeetingPointResolver) FindMeetingPoint(a, b *WaitingPlayer) (geo.Point, error) {
	if a == nil || b == nil {
		panic("matchmaking: FindMeetingPoint called with nil player")
	}

	point := geo.Midpoint(a.Location(), b.Location())
	if !point.Valid() || !r.validate(point) {
		return geo.Point{}, fmt.Errorf("%w: %s/%s at (%f, %f)",
			ErrNoMeetingPoint, a.ID, b.ID, point.Latitude, point.Longitude)
	}
	return point, nil
}
