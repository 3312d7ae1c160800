package auth

import (
	"strconv"
	"strings"
)

// Unauthenticated is the identity resolved when no valid principal is
// present. It is never a valid staff id and every policy check denies it.
const Unauthenticated int64 = -1

// ResolveID extracts the staff id from validated claims. A nil claim set,
// a missing subject or a subject that is not a positive integer all
// resolve to Unauthenticated.
func ResolveID(claims *Claims) int64 {
	if claims == nil || claims.Subject == "" {
		return Unauthenticated
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Unauthenticated
	}
	return id
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
