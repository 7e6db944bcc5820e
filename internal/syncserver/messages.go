package syncserver

const (
	MessageTypeJoin     = "join"
	MessageTypeGet      = "get"
	MessageTypeSet      = "set"
	MessageTypeCallback = "callback"
)

const (
	errWrongPassword  = "Wrong password!"
	errNotJoined      = "Not joined"
	errOtherClient    = "Other client connected!"
	errMissingDocname = "Missing docname"
	errMissingClient  = "Missing clientId"
	errMissingKey     = "Missing key"
	errMissingValue   = "Missing value"
	errStorage        = "Storage error"
	errUnknownType    = "Unknown message type"
)

// Request is a single client message.
type Request struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Docname  string  `json:"docname,omitempty"`
	ClientID string  `json:"clientId,omitempty"`
	Password string  `json:"password,omitempty"`
	Key      string  `json:"key,omitempty"`
	Value    *string `json:"value,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	Type   string  `json:"type"`
	ID     string  `json:"id"`
	Result *string `json:"result"`
	Error  string  `json:"error,omitempty"`
}
