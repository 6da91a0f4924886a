package beliefs

import (
	"sort"

	"parcelbot.ai/internal/grid"
)

// SenseParcels merges one sensing batch. Parcels that should have been visible
// but were not reported, and parcels carried away by another agent, are
// forgotten; their ids are returned.
func (b *Beliefs) SenseParcels(seen []Parcel) (deleted []string) {
	now := b.now()
	reported := make(map[string]bool, len(seen))
	for _, s := range seen {
		reported[s.ID] = true
		p, ok := b.parcels[s.ID]
		if !ok {
			p = &Parcel{ID: s.ID}
			b.parcels[s.ID] = p
		}
		p.Pos = s.Pos
		p.Reward = s.Reward
		p.CarriedBy = s.CarriedBy
		p.seenAt = now
	}
	for id, p := range b.parcels {
		switch {
		case p.CarriedBy != "" && p.CarriedBy != b.Self.ID:
			deleted = append(deleted, id)
		case !reported[id] && p.CarriedBy != b.Self.ID && b.inView(p.Pos):
			deleted = append(deleted, id)
		case p.Reward <= RewardFloor:
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	for _, id := range deleted {
		delete(b.parcels, id)
	}
	return deleted
}

func (b *Beliefs) inView(p grid.Position) bool {
	if !b.Self.Known || b.Game.ObservationDistance <= 0 {
		return false
	}
	return grid.Distance(p, b.Self.Pos) < b.Game.ObservationDistance
}

// Decay lowers every reward by the number of decay periods elapsed since the
// parcel was last seen and forgets parcels that fall to the floor.
func (b *Beliefs) Decay() (deleted []string) {
	iv := b.Game.DecayInterval
	if iv <= 0 {
		return nil
	}
	now := b.now()
	for id, p := range b.parcels {
		steps := now.Sub(p.seenAt) / iv
		if steps <= 0 {
			continue
		}
		p.Reward -= float64(steps)
		p.seenAt = p.seenAt.Add(steps * iv)
		if p.Reward <= RewardFloor {
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	for _, id := range deleted {
		delete(b.parcels, id)
	}
	return deleted
}

// PickedUp marks the given parcels as carried by the agent.
func (b *Beliefs) PickedUp(ids []string) {
	for _, id := range ids {
		p, ok := b.parcels[id]
		if !ok {
			p = &Parcel{ID: id, Pos: b.Self.Pos, seenAt: b.now()}
			b.parcels[id] = p
		}
		p.CarriedBy = b.Self.ID
		p.Pos = b.Self.Pos
	}
}

// Delivered forgets the given parcels.
func (b *Beliefs) Delivered(ids []string) { b.Forget(ids) }

func (b *Beliefs) Forget(ids []string) {
	for _, id := range ids {
		delete(b.parcels, id)
	}
}

func (b *Beliefs) Has(id string) bool {
	_, ok := b.parcels[id]
	return ok
}

func (b *Beliefs) Parcel(id string) (Parcel, bool) {
	p, ok := b.parcels[id]
	if !ok {
		return Parcel{}, false
	}
	return *p, true
}

func (b *Beliefs) IsFree(id string) bool {
	p, ok := b.parcels[id]
	return ok && p.CarriedBy == ""
}

// Free lists uncarried parcels ordered by id.
func (b *Beliefs) Free() []Parcel {
	return b.collect(func(p *Parcel) bool { return p.CarriedBy == "" })
}

// Carried lists parcels carried by the agent ordered by id.
func (b *Beliefs) Carried() []Parcel {
	return b.collect(func(p *Parcel) bool { return p.CarriedBy != "" && p.CarriedBy == b.Self.ID })
}

func (b *Beliefs) CarriedCount() int { return len(b.Carried()) }

func (b *Beliefs) CarriedReward() float64 {
	var sum float64
	for _, p := range b.Carried() {
		sum += p.Reward
	}
	return sum
}

// FreeAt lists uncarried parcels lying on p.
func (b *Beliefs) FreeAt(p grid.Position) []Parcel {
	return b.collect(func(q *Parcel) bool { return q.CarriedBy == "" && q.Pos == p })
}

func (b *Beliefs) collect(keep func(*Parcel) bool) []Parcel {
	var out []Parcel
	for _, p := range b.parcels {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
