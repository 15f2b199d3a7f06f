// Package visited provides a generation-token visited set for traversals
// that examine the same point through multiple trees.
package visited

// Set tracks visited row IDs using generation tokens for O(1) reset.
type Set struct {
	marks []uint32
	token uint32
}

// NewSet creates a visited set sized for the given row count.
func NewSet(capacity int) *Set {
	return &Set{
		marks: make([]uint32, capacity),
		token: 1,
	}
}

// Visit marks id as visited and reports whether it was unvisited before.
func (s *Set) Visit(id uint32) bool {
	s.ensureCapacity(int(id))
	if s.marks[id] == s.token {
		return false
	}
	s.marks[id] = s.token
	return true
}

// Visited reports whether id has been visited in the current generation.
func (s *Set) Visited(id uint32) bool {
	if int(id) >= len(s.marks) {
		return false
	}
	return s.marks[id] == s.token
}

// Reset prepares the set for a new search by bumping the generation token.
// O(1) unless the token overflows.
func (s *Set) Reset() {
	s.token++
	if s.token == 0 {
		clear(s.marks)
		s.token = 1
	}
}

func (s *Set) ensureCapacity(idx int) {
	if idx < len(s.marks) {
		return
	}
	newCap := len(s.marks) * 2
	if newCap <= idx {
		newCap = idx + 1
	}
	grown := make([]uint32, newCap)
	copy(grown, s.marks)
	s.marks = grown
}
