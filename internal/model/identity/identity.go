package identity

// Identity is the principal that owns transcripts.
type Identity struct {
	UID       string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// ChangeKind describes why a Change was emitted.
type ChangeKind string

const (
	// Current is the first change sent to a new subscriber.
	Current   ChangeKind = "current"
	SignedIn  ChangeKind = "signed_in"
	SignedOut ChangeKind = "signed_out"
)

// Change reports the identity bound to a session token. Identity is nil once signed out.
type Change struct {
	Token    string     `json:"-"`
	Kind     ChangeKind `json:"kind"`
	Identity *Identity  `json:"identity"`
}
