package ledger

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Sequence issues monotonic ledger sequence numbers. FIFO ordering sorts on
// (created_at, seq), so entries created within the same clock tick still have
// a deterministic order independent of timestamp resolution.
type Sequence struct {
	node *snowflake.Node
}

// NewSequence constructs a Sequence for the given node id (0-1023).
func NewSequence(nodeID int64) (*Sequence, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: init sequence: %w", err)
	}
	return &Sequence{node: node}, nil
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.node.Generate().Int64()
}

// NextBatchNumber returns a human-readable, monotonic batch number.
func (s *Sequence) NextBatchNumber() string {
	return fmt.Sprintf("SB-%s", s.node.Generate().Base36())
}
