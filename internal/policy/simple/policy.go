// Package simple contains the permissive outbound policy used when rate
// limiting is disabled.
package simple

// Policy admits every request.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Allow always returns true.
func (Policy) Allow(string) bool {
	return true
}
