// Package student holds the student records kept by staff members.
//
// Every student is owned by exactly one staff member (StaffID). Reads and
// writes of a single record are allowed to the owner and to managers; the
// owner is re-read from the store on every call, so a reassignment takes
// effect immediately. Listing every student and reassigning ownership
// require the manager capability.
//
// # Thread Safety
//
// Service and SQLiteRepository are safe for concurrent use.
package student
