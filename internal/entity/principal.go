package entity

// Principal is the authenticated caller of a protected route.
type Principal struct {
	Subject string `json:"sub"`
}
