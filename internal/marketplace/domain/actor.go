package domain

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	ID      string
	IsAdmin bool
}

// Is reports whether the actor is the given user.
func (a Actor) Is(userID string) bool {
	return a.ID != "" && a.ID == userID
}
