package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Node is one level of the reconstructed session/subagent hierarchy: a
// session's own records plus the subtree of subagents it spawned, grouped
// by subagentId per spec §4.5.
type Node struct {
	SessionID string
	Records   []Record
	Children  []*Node
}

// ReadHierarchy parses a JSONL trace file and reconstructs the
// session/subagent tree by grouping records on SubagentID/ParentSessionID.
// Records with no SubagentID belong to the root session.
func ReadHierarchy(r io.Reader, rootSessionID string) (*Node, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	byChildID := map[string]*Node{} // subagentID -> node
	childrenOf := map[string][]*Node{} // parentSessionID -> child nodes
	root := &Node{SessionID: rootSessionID}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("trace: parse line %d: %w", lineNo, err)
		}

		if rec.SubagentID == "" {
			root.Records = append(root.Records, rec)
			continue
		}
		node, ok := byChildID[rec.SubagentID]
		if !ok {
			node = &Node{SessionID: rec.SubagentID}
			byChildID[rec.SubagentID] = node
			childrenOf[rec.ParentSessionID] = append(childrenOf[rec.ParentSessionID], node)
		}
		node.Records = append(node.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: scan: %w", err)
	}

	attachChildren(root, childrenOf)
	return root, nil
}

func attachChildren(n *Node, childrenOf map[string][]*Node) {
	n.Children = childrenOf[n.SessionID]
	for _, c := range n.Children {
		attachChildren(c, childrenOf)
	}
}
