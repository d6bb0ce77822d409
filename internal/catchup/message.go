package catchup

// Op values used on the dev-sync wire protocol.
const (
	OpConnect = "connect"
	OpPing    = "ping"
	OpUpdate  = "update"
)

// ClientMessage is what a client may send over the wire. Anything that does
// not parse into it, or carries an unknown op, is dropped silently.
type ClientMessage struct {
	Op       string `json:"op"`
	Identity string `json:"identity"`
}

// ConnectReply is the handshake response carrying the drained catch-up set.
// The array order is not meaningful.
type ConnectReply struct {
	Op      string   `json:"op"`
	Catchup []string `json:"catchup"`
}

// Ping is the periodic liveness heartbeat. Clients are not required to reply.
type Ping struct {
	Op string `json:"op"`
}

// Update announces the plugins changed in one notification batch.
type Update struct {
	Op     string   `json:"op"`
	Update []string `json:"update"`
}
