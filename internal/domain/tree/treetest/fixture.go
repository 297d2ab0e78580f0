// Package treetest provides document trees for tests.
package treetest

import (
	"strconv"

	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

// JavaScriptGuide returns a three-level guide: root, three chapters, two sections each.
func JavaScriptGuide() *tree.Node {
	return &tree.Node{
		ID:      "root",
		Title:   "JavaScript Guide",
		Summary: "Complete guide to JavaScript programming",
		Children: []*tree.Node{
			{
				ID:      "ch1",
				Title:   "Introduction to JavaScript",
				Summary: "Basics and history of JavaScript language",
				Children: []*tree.Node{
					{ID: "ch1s1", Title: "What is JavaScript?", Summary: "JavaScript is a programming language for web development"},
					{ID: "ch1s2", Title: "Setting up Environment", Summary: "How to set up Node.js and a code editor"},
				},
			},
			{
				ID:      "ch2",
				Title:   "Variables and Data Types",
				Summary: "Understanding variables, let, const, and different data types",
				Children: []*tree.Node{
					{ID: "ch2s1", Title: "Declaring Variables", Summary: "Using var, let, and const keywords effectively"},
					{ID: "ch2s2", Title: "String Manipulation", Summary: "Working with strings, methods, and templates"},
				},
			},
			{
				ID:      "ch3",
				Title:   "Functions in JavaScript",
				Summary: "Function declaration, arrow functions, and closures",
				Children: []*tree.Node{
					{ID: "ch3s1", Title: "Function Basics", Summary: "Declaring and calling functions with parameters"},
					{ID: "ch3s2", Title: "Arrow Functions", Summary: "Modern ES6 arrow function syntax and benefits"},
				},
			},
		},
	}
}

// Chain returns a linear tree of the given depth; every node is titled "Level N".
func Chain(depth int) *tree.Node {
	root := &tree.Node{ID: "l0", Title: "Level 0", Summary: "Chain root node with enough text"}
	cur := root
	for i := 1; i <= depth; i++ {
		n := &tree.Node{
			ID:      "l" + strconv.Itoa(i),
			Title:   "Level " + strconv.Itoa(i),
			Summary: "Chain node with enough descriptive text",
		}
		cur.Children = []*tree.Node{n}
		cur = n
	}
	return root
}
