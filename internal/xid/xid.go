package xid

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// SetNode selects the snowflake node used for every generated id. Call it once
// at startup; processes sharing a database must use distinct node ids.
func SetNode(id int64) error {
	n, err := snowflake.NewNode(id)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// New returns prefix-<19 digit snowflake>. The fixed width keeps lexical
// order equal to generation order.
func New(prefix string) string {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()
	return fmt.Sprintf("%s-%019d", prefix, n.Generate().Int64())
}
