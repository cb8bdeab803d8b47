// Package scenario implements follow-up scenarios: a named task list with one
// task per contact matching a tag filter at creation time. Completing the
// last pending task closes the scenario.
package scenario
