package types

import "time"

// ChangeType identifies the kind of node lifecycle change.
type ChangeType string

// Change type constants
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// NodeChangeEvent describes a single node mutation. Node is nil for
// deletions.
type NodeChangeEvent struct {
	Type      ChangeType `json:"type"`
	NodeID    string     `json:"nodeId"`
	NodeType  string     `json:"nodeType"`
	Node      *Node      `json:"node,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// DeletionRecord is a tombstone kept in the deletion log so that delta
// sync clients which reconnect later still learn about the delete.
type DeletionRecord struct {
	NodeID    string    `json:"nodeId"`
	NodeType  string    `json:"nodeType"`
	Owner     string    `json:"owner,omitempty"`
	DeletedAt time.Time `json:"deletedAt"`
}
