// Package axtree holds read-only snapshots of an application's
// accessibility tree and finds editable surfaces inside them.
//
// Snapshots are produced by the platform adapters. Nodes never carry native
// handles; a node's Path (child indices from the snapshot root) is the only
// way back to the live element.
package axtree

import (
	"fmt"
	"math"
	"strings"
)

// Point is a location in global screen coordinates (top-left origin).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.0f,%.0f)", p.X, p.Y)
}

// Rect is an axis-aligned rectangle in global screen coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no usable area. Rectangles with a NaN or
// infinite coordinate count as empty.
func (r Rect) Empty() bool {
	if !finite(r.X) || !finite(r.Y) || !finite(r.Width) || !finite(r.Height) {
		return true
	}
	return r.Width <= 0 || r.Height <= 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// At returns the point at fractional offsets (fx, fy) inside r.
func (r Rect) At(fx, fy float64) Point {
	return Point{X: r.X + r.Width*fx, Y: r.Y + r.Height*fy}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Center returns the middle of r.
func (r Rect) Center() Point {
	return r.At(0.5, 0.5)
}

// Node is one element of an accessibility tree snapshot.
type Node struct {
	Role      string  `json:"role"`
	Frame     *Rect   `json:"frame,omitempty"`
	Focusable bool    `json:"focusable,omitempty"`
	Editable  bool    `json:"editable,omitempty"`
	Focused   bool    `json:"focused,omitempty"`
	Value     string  `json:"value,omitempty"`
	Path      []int   `json:"path,omitempty"`
	Children  []*Node `json:"children,omitempty"`
}

// HasGeometry reports whether the node has a non-empty frame.
func (n *Node) HasGeometry() bool {
	return n.Frame != nil && !n.Frame.Empty()
}

func (n *Node) String() string {
	var b strings.Builder
	b.WriteString(n.Role)
	if n.Frame != nil {
		fmt.Fprintf(&b, " [%.0f,%.0f %.0fx%.0f]", n.Frame.X, n.Frame.Y, n.Frame.Width, n.Frame.Height)
	}
	if len(n.Path) > 0 {
		fmt.Fprintf(&b, " @%v", n.Path)
	}
	return b.String()
}

// Walk visits root and its descendants in pre-order. depth is 0 for root.
// Returning false from fn stops the walk.
func Walk(root *Node, fn func(n *Node, depth int) bool) {
	walk(root, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n, depth) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, depth+1, fn) {
			return false
		}
	}
	return true
}

// AssignPaths sets Path on every node of the tree rooted at root.
func AssignPaths(root *Node) {
	assignPaths(root, nil)
}

func assignPaths(n *Node, path []int) {
	if n == nil {
		return
	}
	n.Path = append([]int(nil), path...)
	for i, c := range n.Children {
		assignPaths(c, append(path, i))
	}
}

// Find returns the node addressed by path, or nil.
func Find(root *Node, path []int) *Node {
	n := root
	for _, i := range path {
		if n == nil || i < 0 || i >= len(n.Children) {
			return nil
		}
		n = n.Children[i]
	}
	return n
}

// Count returns the number of nodes in the tree.
func Count(root *Node) int {
	var c int
	Walk(root, func(*Node, int) bool {
		c++
		return true
	})
	return c
}

// Focused returns the first focused node in pre-order, or nil.
func Focused(root *Node) *Node {
	var found *Node
	Walk(root, func(n *Node, _ int) bool {
		if n.Focused {
			found = n
			return false
		}
		return true
	})
	return found
}
