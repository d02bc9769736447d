package domain

import "time"

// Profile es el registro de aplicacion de un usuario; su ID coincide con
// el ID de la identidad autenticada.
type Profile struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
