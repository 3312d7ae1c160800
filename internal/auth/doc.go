// Package auth is the authentication and authorisation core of the student
// registry.
//
// It provides:
//   - Argon2id password hashing, with verification of imported bcrypt hashes
//   - HS256 session tokens bound to an issuer, audience and 60 minute window
//   - Identity resolution from token claims to a numeric staff id
//   - A bit-field permission model (read, modify, manager, admin)
//   - A policy engine that reloads the actor on every check and fails closed
//   - Registration, where the first staff member stored becomes administrator
//
// Identity is resolved once at the HTTP boundary and passed explicitly as
// actorID into every Service and Policy call. Unauthenticated (-1) is never
// a valid id.
package auth
