// Package contact manages the congregation's contact book: CRUD with phone
// normalization, bulk import, mass delete, and CSV/vCard export with an
// optional archive of past exports.
package contact
