package invoicing

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// SnowflakeNumbers issues invoice numbers of the form <prefix><snowflake id>.
// IDs are unique per node and increase over time; run each replica with its
// own node ID.
type SnowflakeNumbers struct {
	node   *snowflake.Node
	prefix string
}

// NewSnowflakeNumbers creates a generator for node (0-1023).
func NewSnowflakeNumbers(node int64, prefix string) (*SnowflakeNumbers, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &SnowflakeNumbers{node: n, prefix: prefix}, nil
}

// Next returns a new invoice number.
func (g *SnowflakeNumbers) Next() (string, error) {
	return g.prefix + g.node.Generate().String(), nil
}
