// Package user defines the user record owned by the server-side user store.
package user

// User represents a system user together with the authoritative copy of
// their favorite locations.
type User struct {
	// Email is the unique identity of the user and the token subject.
	Email string `json:"email"`

	// Name is the display name.
	Name string `json:"name"`

	// PasswordHash is the encoded credential hash, never the plain password.
	PasswordHash string `json:"password_hash"`

	// Favorites is the ordered list of location names. Order drives tab
	// ordering in the consuming UI.
	Favorites []string `json:"favorites"`
}

// Clone returns a deep copy so callers cannot alias stored state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Favorites = CopyFavorites(u.Favorites)

	return &clone
}

// CopyFavorites returns a non-nil copy of the list.
func CopyFavorites(favorites []string) []string {
	result := make([]string, len(favorites))
	copy(result, favorites)

	return result
}
