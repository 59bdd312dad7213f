package models

import "time"

// User is a credential row. NTHash is the precomputed MD4 of the UTF-16LE
// password, stored hex-encoded; the MS-CHAPv2 exchange never needs the
// cleartext password.
type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	NTHash   string    `json:"-"`
	Created  time.Time `json:"created"`
}
