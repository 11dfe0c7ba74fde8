package gateway

// clientMessage is the shape of every inbound frame. The first frame
// carries reconnectToken or joinCode to request admission; every later
// frame carries the token plus a choice.
type clientMessage struct {
	ReconnectToken string `json:"reconnectToken,omitempty"`
	JoinCode       string `json:"joinCode,omitempty"`
	Choice         int    `json:"choice,omitempty"`
}

// admittedMessage confirms admission and carries the rotated token.
type admittedMessage struct {
	ReconnectToken string `json:"reconnectToken"`
	Team           int    `json:"team"`
}

// errorMessage is sent right before the server closes the connection.
type errorMessage struct {
	Error string `json:"error"`
}

// Client-facing rejection reasons. Invalid, expired and malformed
// tokens all map to errInvalidToken on purpose.
const (
	errInvalidToken = "invalid token"
	errInvalidCode  = "invalid code"
	errInvalidData  = "invalid data"
)
