package session

// Info is the persisted session triple.
type Info struct {
	SessionToken string `json:"sessionToken"`
	RefreshToken string `json:"refreshToken"`
	JWTToken     string `json:"jwtToken"`
}

// State is the liveness of the persisted session.
type State struct {
	Active bool
	JWT    string
}

// Active returns an active state carrying jwt.
func Active(jwt string) State {
	return State{Active: true, JWT: jwt}
}

// Inactive returns the inactive state.
func Inactive() State {
	return State{}
}
