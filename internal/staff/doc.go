// Package staff manages staff accounts after registration: listing,
// profile edits, deletion and the staff-with-students view.
//
// Registration, login and role changes live in package auth.
package staff
