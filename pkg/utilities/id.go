package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewID returns a snowflake ID for primary keys. The node comes from
// SNOWFLAKE_NODE (default 1) so several instances can share one database.
func NewID() int64 {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			// out-of-range node; node 1 always initializes
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node.Generate().Int64()
}
