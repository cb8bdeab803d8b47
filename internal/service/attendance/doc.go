// Package attendance records which contacts attended which church service on
// which day.
package attendance
