package game

import "sync"

// Registry maps player ids to their last-known state. Ids are handed out
// sequentially from 0 and never reused; entries are never removed.
type Registry struct {
	mu      sync.Mutex
	players map[int]PlayerState
	nextID  int
}

func NewRegistry() *Registry {
	return &Registry{
		players: make(map[int]PlayerState),
	}
}

func (r *Registry) Register() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.players[id] = PlayerState{Direction: DirDown}

	return id
}

// Update overwrites the state of a registered player. It reports false if id
// was never issued by Register.
func (r *Registry) Update(id int, state PlayerState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[id]; !ok {
		return false
	}
	r.players[id] = state

	return true
}

// List returns a point-in-time copy of every player.
func (r *Registry) List() map[int]PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make(map[int]PlayerState, len(r.players))
	for id, state := range r.players {
		players[id] = state
	}

	return players
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.players)
}
