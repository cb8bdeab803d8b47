// Package communication implements broadcast definitions and their delivery.
//
// A communication is created as a draft, optionally edited, and sent exactly
// once. Sending resolves the recipients, hands them to an SMS gateway adapter
// and writes the folded counts back onto the communication in the same
// transaction that locked it. Only draft rows can be claimed, so a second send
// returns ErrAlreadySent and leaves the counters untouched.
package communication
