package cacheserver

import "encoding/json"

// Record is a stored index entry. Every publish to a namespace adds one;
// find serves the live record with the highest rank. Times are unix seconds
// so range queries work on them.
type Record struct {
	ID        uint64          `json:"id" boltholdKey:"ID"`
	Namespace string          `json:"namespace" boltholdIndex:"Namespace"`
	TaskID    string          `json:"taskId"`
	Rank      int64           `json:"rank" boltholdIndex:"Rank"`
	Expires   int64           `json:"expires" boltholdIndex:"Expires"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt int64           `json:"createdAt"`
}
