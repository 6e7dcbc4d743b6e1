package domain

// Principal is the authenticated identity bound to one connection.
type Principal struct {
	UserID       string
	DisplayName  string
	CanBroadcast bool
}
