package client

// User is the identity service's view of an account.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// ResolveURLResponse is the storage service's URL resolution response.
type ResolveURLResponse struct {
	URL string `json:"url"`
}
