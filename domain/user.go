package domain

// User is the authenticated principal resolved from the identity provider's
// token claims.
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// ChangeEvent announces that a user's tasks changed for a given day. It is
// published after every mutation so all instances can refresh live streams.
type ChangeEvent struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`
}
