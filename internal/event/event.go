package event

// Type names a security event published on the bus.
type Type string

const (
	TypeLoginSucceeded    Type = "login.succeeded"
	TypeLoginFailed       Type = "login.failed"
	TypeTokenRefreshed    Type = "token.refreshed"
	TypeRefreshExpired    Type = "refresh.expired"
	TypeRefreshRejected   Type = "refresh.rejected"
	TypeSessionsRevoked   Type = "sessions.revoked"
	TypeLogout            Type = "logout"
	TypeUserCreated       Type = "user.created"
	TypeUserStatusChanged Type = "user.status_changed"
)

type Event struct {
	ID         string `json:"id"`
	Type       Type   `json:"type"`
	Payload    any    `json:"payload,omitempty"`
	Timestamp  string `json:"timestamp"`
	ActorID    string `json:"actor_id,omitempty"`
	ActorEmail string `json:"actor_email,omitempty"`
	ActorRole  string `json:"actor_role,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	Resource   string `json:"resource,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
