package chat

// idRing remembers the last ringSize server-assigned message ids so a
// redelivered event is caught even when other messages landed in between.
// Messages without ids fall back to the adjacency check in the controller.
const ringSize = 128

type idRing struct {
	order []string
	set   map[string]struct{}
}

func newIDRing() *idRing {
	return &idRing{set: make(map[string]struct{})}
}

func (r *idRing) Contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

func (r *idRing) Add(id string) {
	if id == "" || r.Contains(id) {
		return
	}
	r.order = append(r.order, id)
	r.set[id] = struct{}{}
	if len(r.order) > ringSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.set, oldest)
	}
}

func (r *idRing) Reset() {
	r.order = nil
	r.set = make(map[string]struct{})
}
