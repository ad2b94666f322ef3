package document

import (
	"strings"

	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// navigator 在区域上实现 xpath.NodeNavigator。区域是以 region.top 为顶层节点的虚拟文档：
// 顶层以下沿用真实的树结构，顶层之上是虚拟根，查询不会越出区域。
type navigator struct {
	region *region
	cur    *html.Node
	depth  int // 0 虚拟根，1 顶层节点，>1 更深
	top    int // 当前顶层祖先在 region.top 中的下标
	attr   int // 属性下标，不在属性上时为 -1
}

type region struct {
	top   []*html.Node
	index map[*html.Node]int
}

func newRegion(top []*html.Node) *region {
	index := make(map[*html.Node]int, len(top))
	for i, n := range top {
		if _, ok := index[n]; !ok {
			index[n] = i
		}
	}
	return &region{top: top, index: index}
}

func newNavigator(r *region) *navigator {
	return &navigator{region: r, attr: -1}
}

// locate 返回定位在 n 上的 navigator。顶层节点互相嵌套时以最外层为准；
// n 不在区域内时返回 false
func (r *region) locate(n *html.Node) (*navigator, bool) {
	top, depth := -1, 0
	steps := 0
	for cur := n; cur != nil; cur = cur.Parent {
		steps++
		if i, ok := r.index[cur]; ok {
			top, depth = i, steps
		}
	}
	if top < 0 {
		return nil, false
	}
	return &navigator{region: r, cur: n, depth: depth, top: top, attr: -1}, true
}

// moveToDocumentElement 移动到第一个顶层元素，即相对查询的上下文节点
func (n *navigator) moveToDocumentElement() bool {
	for i, node := range n.region.top {
		if node.Type == html.ElementNode {
			n.cur, n.depth, n.top, n.attr = node, 1, i, -1
			return true
		}
	}
	return false
}

func (n *navigator) NodeType() xpath.NodeType {
	if n.depth == 0 {
		return xpath.RootNode
	}
	if n.attr != -1 {
		return xpath.AttributeNode
	}

	switch n.cur.Type {
	case html.ElementNode:
		return xpath.ElementNode
	case html.TextNode, html.RawNode:
		return xpath.TextNode
	case html.CommentNode, html.DoctypeNode:
		// doctype 没有对应的 XPath 节点类型
		return xpath.CommentNode
	default:
		return xpath.RootNode
	}
}

func (n *navigator) LocalName() string {
	if n.depth == 0 {
		return ""
	}
	if n.attr != -1 {
		return n.cur.Attr[n.attr].Key
	}
	if n.cur.Type == html.ElementNode {
		return n.cur.Data
	}
	return ""
}

// Prefix 为空，svg/math 内容的 name() 也是不带前缀的标签名
func (n *navigator) Prefix() string { return "" }

func (n *navigator) Value() string {
	if n.depth == 0 {
		var b strings.Builder
		for _, node := range n.region.top {
			writeText(&b, node)
		}
		return b.String()
	}
	if n.attr != -1 {
		return n.cur.Attr[n.attr].Val
	}

	switch n.cur.Type {
	case html.ElementNode:
		var b strings.Builder
		writeText(&b, n.cur)
		return b.String()
	default:
		return n.cur.Data
	}
}

func (n *navigator) Copy() xpath.NodeNavigator {
	cp := *n
	return &cp
}

func (n *navigator) MoveToRoot() {
	n.cur, n.depth, n.top, n.attr = nil, 0, 0, -1
}

func (n *navigator) MoveToParent() bool {
	switch {
	case n.depth == 0:
		return false
	case n.attr != -1:
		n.attr = -1
	case n.depth == 1:
		n.MoveToRoot()
	case n.depth == 2:
		n.cur = n.region.top[n.top]
		n.depth--
	default:
		n.cur = n.cur.Parent
		n.depth--
	}
	return true
}

func (n *navigator) MoveToNextAttribute() bool {
	if n.depth == 0 || n.cur.Type != html.ElementNode {
		return false
	}
	if n.attr >= len(n.cur.Attr)-1 {
		return false
	}
	n.attr++
	return true
}

func (n *navigator) MoveToChild() bool {
	if n.attr != -1 {
		return false
	}

	if n.depth == 0 {
		if len(n.region.top) == 0 {
			return false
		}
		n.cur, n.depth, n.top = n.region.top[0], 1, 0
		return true
	}

	if n.cur.FirstChild == nil {
		return false
	}
	n.cur = n.cur.FirstChild
	n.depth++
	return true
}

func (n *navigator) MoveToFirst() bool {
	if n.depth == 0 || n.attr != -1 {
		return false
	}

	if n.depth == 1 {
		if n.top == 0 {
			return false
		}
		n.top = 0
		n.cur = n.region.top[0]
		return true
	}

	if n.cur.PrevSibling == nil {
		return false
	}
	for n.cur.PrevSibling != nil {
		n.cur = n.cur.PrevSibling
	}
	return true
}

func (n *navigator) MoveToNext() bool {
	if n.depth == 0 || n.attr != -1 {
		return false
	}

	if n.depth == 1 {
		if n.top+1 >= len(n.region.top) {
			return false
		}
		n.top++
		n.cur = n.region.top[n.top]
		return true
	}

	if n.cur.NextSibling == nil {
		return false
	}
	n.cur = n.cur.NextSibling
	return true
}

func (n *navigator) MoveToPrevious() bool {
	if n.depth == 0 || n.attr != -1 {
		return false
	}

	if n.depth == 1 {
		if n.top == 0 {
			return false
		}
		n.top--
		n.cur = n.region.top[n.top]
		return true
	}

	if n.cur.PrevSibling == nil {
		return false
	}
	n.cur = n.cur.PrevSibling
	return true
}

func (n *navigator) MoveTo(other xpath.NodeNavigator) bool {
	node, ok := other.(*navigator)
	if !ok || node.region != n.region {
		return false
	}
	*n = *node
	return true
}

// writeText 写入 node 及其子孙的文本内容
func writeText(b *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode, html.RawNode:
		b.WriteString(node.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeText(b, child)
	}
}
