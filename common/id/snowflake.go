package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Server and
// worker processes must use distinct node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a time-ordered globally unique int64 ID.
func New() int64 {
	return node.Generate().Int64()
}

// NewKey generates a short base-36 token, used for shareable log keys.
func NewKey() string {
	return strconv.FormatInt(node.Generate().Int64(), 36)
}
