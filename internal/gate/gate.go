// Package gate enforces singleton occupancy per role and the ordering
// precondition that status and controller sessions exist only while a
// sharer holds its slot.
package gate

import (
	"errors"
	"io"
	"sync"

	"github.com/rigshare/rigshare/internal/hub"
	"github.com/rigshare/rigshare/internal/obs"
)

// Role identifies the three session kinds the relay admits.
type Role int

const (
	Sharer Role = iota
	Status
	Controller
)

func (r Role) String() string {
	switch r {
	case Sharer:
		return "sharer"
	case Status:
		return "status"
	case Controller:
		return "controller"
	default:
		return "unknown"
	}
}

var (
	// ErrOccupied rejects an admission because the role's slot is taken.
	ErrOccupied = errors.New("slot already occupied")
	// ErrNoSharer rejects a status or controller admission while no
	// sharer slot is occupied.
	ErrNoSharer = errors.New("no sharer connected")
	// ErrReleased means the admission was force-released before Bind.
	ErrReleased = errors.New("admission already released")
	// ErrClosed rejects admissions after Shutdown.
	ErrClosed = errors.New("gate shut down")
)

// Admission is the capability returned by a successful TryAdmit. It
// names one occupancy of a slot; once the slot is released, by its
// owner or by a cascade, the admission is stale and can no longer
// affect the gate.
type Admission struct {
	role  Role
	token uint64
}

func (a *Admission) Role() Role { return a.role }

type slot struct {
	occupied bool
	token    uint64
	closer   io.Closer
}

// Gate owns the slot table exclusively. Every check-and-mark happens in
// one critical section, so two concurrent admissions for the same role
// resolve to exactly one acceptance.
type Gate struct {
	mu        sync.Mutex
	slots     [3]slot
	nextToken uint64
	closed    bool
	hub       *hub.Hub
}

func New(h *hub.Hub) *Gate {
	return &Gate{hub: h}
}

// TryAdmit reserves the slot for role. Status and controller admissions
// additionally require the sharer slot to be occupied.
func (g *Gate) TryAdmit(role Role) (*Admission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		obs.AdmissionRejectedTotal.WithLabelValues(role.String(), "closed").Inc()
		return nil, ErrClosed
	}
	if role != Sharer && !g.slots[Sharer].occupied {
		obs.AdmissionRejectedTotal.WithLabelValues(role.String(), "no_sharer").Inc()
		return nil, ErrNoSharer
	}
	if g.slots[role].occupied {
		obs.AdmissionRejectedTotal.WithLabelValues(role.String(), "occupied").Inc()
		return nil, ErrOccupied
	}
	g.nextToken++
	g.slots[role] = slot{occupied: true, token: g.nextToken}
	obs.AdmissionsTotal.WithLabelValues(role.String()).Inc()
	return &Admission{role: role, token: g.nextToken}, nil
}

// Bind attaches the transport closer to an admission so a cascade or
// shutdown can terminate the transport. It fails if the admission was
// force-released between TryAdmit and Bind; the caller then closes the
// transport itself.
func (g *Gate) Bind(adm *Admission, closer io.Closer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &g.slots[adm.role]
	if !s.occupied || s.token != adm.token {
		return ErrReleased
	}
	s.closer = closer
	return nil
}

// Release clears the admission's slot. It is idempotent and owner
// checked: a stale admission is a no-op and cannot clear a successor's
// slot. Releasing the sharer publishes SharerClosed while all three
// slots are still reserved, so subscribers finish reacting before any
// new admission can form a fresh pairing; only then are the slots
// cleared and the dependent transports closed. The releasing session's
// own transport is never closed here; its owner does that.
func (g *Gate) Release(adm *Admission) {
	if adm == nil {
		return
	}
	g.mu.Lock()
	s := &g.slots[adm.role]
	if !s.occupied || s.token != adm.token {
		g.mu.Unlock()
		return
	}
	if adm.role != Sharer {
		g.slots[adm.role] = slot{}
		g.mu.Unlock()
		return
	}
	// Consume ownership but keep the slot reserved until the cascade
	// completes. Tokens start at 1, so 0 never matches an admission.
	s.token = 0
	g.mu.Unlock()

	g.hub.Publish(hub.SharerClosed)

	g.mu.Lock()
	dependents, forced := g.clearAllLocked()
	g.mu.Unlock()

	if forced > 0 {
		obs.CascadeReleasesTotal.Inc()
	}
	for _, c := range dependents {
		c.Close()
	}
}

// Shutdown force-releases every slot and rejects all further
// admissions. Called once at process exit.
func (g *Gate) Shutdown() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	sharerOccupied := g.slots[Sharer].occupied
	var closers []io.Closer
	for r := range g.slots {
		if s := g.slots[r]; s.occupied && s.closer != nil {
			closers = append(closers, s.closer)
		}
		g.slots[r] = slot{}
	}
	g.mu.Unlock()

	if sharerOccupied {
		g.hub.Publish(hub.SharerClosed)
	}
	for _, c := range closers {
		c.Close()
	}
}

// clearAllLocked empties every slot, returning the closers of the bound
// non-sharer occupants and how many non-sharer slots were force-freed.
// Callers hold g.mu.
func (g *Gate) clearAllLocked() (closers []io.Closer, forced int) {
	for r := range g.slots {
		s := g.slots[r]
		if s.occupied && Role(r) != Sharer {
			forced++
			if s.closer != nil {
				closers = append(closers, s.closer)
			}
		}
		g.slots[r] = slot{}
	}
	return closers, forced
}

// Occupancy is a point-in-time view of the slot table.
type Occupancy struct {
	Sharer     bool `json:"sharer"`
	Status     bool `json:"status"`
	Controller bool `json:"controller"`
}

func (g *Gate) Snapshot() Occupancy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Occupancy{
		Sharer:     g.slots[Sharer].occupied,
		Status:     g.slots[Status].occupied,
		Controller: g.slots[Controller].occupied,
	}
}
