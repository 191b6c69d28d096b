package session

// CanSend reports whether t may be written to right now.
//
// The answer is only valid at the instant of the call; callers check it
// immediately before every write and never cache it.
func CanSend(t Transport) bool {
	return t != nil && t.State() == TransportOpen
}
