// Package auth provides user accounts and API authentication.
//
// Passwords are hashed with Argon2id and stored as PHC strings. API
// access uses short-lived HS256 JWTs validated by signature only, so
// request authentication never hits the database.
package auth
