// Package stand manages lemonade stands, their sales ledger and nearby
// discovery.
package stand
