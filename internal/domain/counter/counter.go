// Package counter defines the counter domain types and the wire payload
// pushed to subscribers.
package counter

// Update is the payload for a single push delivery. Every transport
// serializes exactly this one-field object.
type Update struct {
	Count int64 `json:"count"`
}
