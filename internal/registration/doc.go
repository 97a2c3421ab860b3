// Package registration drives the Name, Email, Phone, BirthDate, Confirm
// dialog. Sessions live in memory keyed by the external user id and are
// committed to a storage.Store on confirmation.
package registration
