package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalid signals a structurally broken tree (nil root, cycle, duplicate id).
var ErrInvalid = errors.New("invalid tree")

// RootID is the positional id given to a root that arrives without one.
const RootID = "root"

// Node is one section of a hierarchical document.
// Nodes are read-only while a traversal runs.
type Node struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Summary  string  `json:"summary,omitempty"`
	Text     string  `json:"text,omitempty"`
	PageRef  string  `json:"page_ref,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Body returns the text used for scoring: the summary, or the raw text when no summary exists.
func (n *Node) Body() string {
	if n.Summary != "" {
		return n.Summary
	}
	return n.Text
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Walk visits every node depth-first in document order. Stops early when fn returns false.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	type frame struct {
		node  *Node
		depth int
	}
	stack := []frame{{n, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node == nil {
			continue
		}
		if !fn(f.node, f.depth) {
			return
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
}

// Find returns the node with the given id.
func (n *Node) Find(id string) (*Node, bool) {
	var found *Node
	n.Walk(func(node *Node, _ int) bool {
		if node.ID == id {
			found = node
			return false
		}
		return true
	})
	return found, found != nil
}

// Path returns the nodes from the root down to the node with the given id.
func (n *Node) Path(id string) ([]*Node, bool) {
	type frame struct {
		node *Node
		path []*Node
	}
	stack := []frame{{n, []*Node{n}}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node == nil {
			continue
		}
		if f.node.ID == id {
			return f.path, true
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			c := f.node.Children[i]
			p := make([]*Node, len(f.path), len(f.path)+1)
			copy(p, f.path)
			stack = append(stack, frame{c, append(p, c)})
		}
	}
	return nil, false
}

// Count returns the number of nodes in the tree.
func (n *Node) Count() int {
	c := 0
	n.Walk(func(*Node, int) bool {
		c++
		return true
	})
	return c
}

// Depth returns the depth of the deepest node (root is 0).
func (n *Node) Depth() int {
	d := 0
	n.Walk(func(_ *Node, depth int) bool {
		d = max(d, depth)
		return true
	})
	return d
}

// AssignIDs fills empty ids with positional ones: root, root.0, root.0.1.
// A node reachable twice is numbered once; Validate reports it.
func AssignIDs(root *Node) {
	if root == nil {
		return
	}
	if root.ID == "" {
		root.ID = RootID
	}
	type frame struct {
		node *Node
		path string
	}
	seen := map[*Node]bool{root: true}
	stack := []frame{{root, root.ID}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i, c := range f.node.Children {
			if c == nil || seen[c] {
				continue
			}
			seen[c] = true
			p := f.path + "." + strconv.Itoa(i)
			if c.ID == "" {
				c.ID = p
			}
			stack = append(stack, frame{c, p})
		}
	}
}

// Validate checks that the tree is non-nil, acyclic, free of nil children
// and that ids are unique.
func Validate(root *Node) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrInvalid)
	}
	seenNodes := make(map[*Node]bool)
	seenIDs := make(map[string]bool)
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seenNodes[n] {
			return fmt.Errorf("%w: node %q reachable twice", ErrInvalid, n.ID)
		}
		seenNodes[n] = true
		if n.ID != "" {
			if seenIDs[n.ID] {
				return fmt.Errorf("%w: duplicate id %q", ErrInvalid, n.ID)
			}
			seenIDs[n.ID] = true
		}
		for i, c := range n.Children {
			if c == nil {
				return fmt.Errorf("%w: nil child %d of %q", ErrInvalid, i, n.ID)
			}
			stack = append(stack, c)
		}
	}
	return nil
}

// Decode parses a JSON tree, assigns missing ids and validates it.
func Decode(data []byte) (*Node, error) {
	var root *Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}
	AssignIDs(root)
	if err := Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}
