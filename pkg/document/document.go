// Package document 将 HTML 解析为节点列表，在节点区域上执行 XPath 查询，
// 并把节点序列化为文本或 HTML。
package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// 已编译的表达式，所有查询共享
var exprCache sync.Map

// Parse 解析 HTML 文档，返回其顶层节点
func Parse(r io.Reader) ([]*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return Nodes(doc), nil
}

// ParseString 解析内存中的文档
func ParseString(s string) ([]*html.Node, error) {
	return Parse(strings.NewReader(s))
}

// Nodes 将已有节点导入为节点列表。文档节点展开为其子节点，其他节点单独返回。
func Nodes(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	if n.Type != html.DocumentNode {
		return []*html.Node{n}
	}

	var out []*html.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		out = append(out, child)
	}
	return out
}

// Query 在 nodes 构成的区域上执行 expr，按文档顺序返回去重后的匹配节点。
//
// 区域相当于一个以 nodes 为顶层节点的虚拟文档："/" 指向虚拟根，
// 相对表达式从第一个元素开始。区域或表达式为空时不返回节点。
func Query(nodes []*html.Node, expr string) ([]*html.Node, error) {
	if len(nodes) == 0 || expr == "" {
		return nil, nil
	}

	compiled, err := compile(expr)
	if err != nil {
		return nil, err
	}

	r := newRegion(nodes)
	nav := newNavigator(r)
	if !nav.moveToDocumentElement() {
		return nil, nil
	}

	return inDocumentOrder(nodes, collect(compiled, nav, nil)), nil
}

// QueryFrom 以 from 中每个节点为上下文节点，在 top 构成的区域内执行 expr，
// 合并结果并按文档顺序去重返回。不在区域内的节点被忽略。
func QueryFrom(top, from []*html.Node, expr string) ([]*html.Node, error) {
	each, err := SelectFrom(top, from, expr)
	if err != nil {
		return nil, err
	}

	var out []*html.Node
	for _, found := range each {
		out = append(out, found...)
	}
	return Unique(top, out), nil
}

// Unique 去掉 nodes 中的重复节点，并按 top 区域的文档顺序排列
func Unique(top, nodes []*html.Node) []*html.Node {
	seen := make(map[*html.Node]bool, len(nodes))
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return inDocumentOrder(top, out)
}

// SelectFrom 与 QueryFrom 相同，但不合并：每个上下文节点一组结果，各自按文档顺序排列。
func SelectFrom(top, from []*html.Node, expr string) ([][]*html.Node, error) {
	out := make([][]*html.Node, len(from))
	if len(top) == 0 || expr == "" {
		return out, nil
	}

	compiled, err := compile(expr)
	if err != nil {
		return nil, err
	}

	r := newRegion(top)
	for i, n := range from {
		nav, ok := r.locate(n)
		if !ok {
			continue
		}
		out[i] = inDocumentOrder(top, collect(compiled, nav, nil))
	}
	return out, nil
}

// collect 收集 expr 匹配的元素、文本等节点，跳过虚拟根和属性
func collect(expr *xpath.Expr, nav *navigator, out []*html.Node) []*html.Node {
	seen := make(map[*html.Node]bool)
	iter := expr.Select(nav)
	for iter.MoveNext() {
		cur := iter.Current().(*navigator)
		if cur.depth == 0 || cur.attr != -1 || seen[cur.cur] {
			continue
		}
		seen[cur.cur] = true
		out = append(out, cur.cur)
	}
	return out
}

func compile(expr string) (*xpath.Expr, error) {
	if cached, ok := exprCache.Load(expr); ok {
		return cached.(*xpath.Expr), nil
	}

	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile xpath %q: %w", expr, err)
	}
	exprCache.Store(expr, compiled)
	return compiled, nil
}

// inDocumentOrder 按区域的先序遍历对 found 排序
func inDocumentOrder(top, found []*html.Node) []*html.Node {
	if len(found) < 2 {
		return found
	}

	want := make(map[*html.Node]bool, len(found))
	for _, n := range found {
		want[n] = true
	}

	out := make([]*html.Node, 0, len(found))
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) == len(found) {
			return
		}
		if want[n] {
			out = append(out, n)
			delete(want, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range top {
		walk(n)
	}

	return out
}

// Text 返回 nodes 拼接后的文本内容
func Text(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	return b.String()
}

// HTML 将 nodes 渲染回 HTML
func HTML(nodes []*html.Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

// Attributes 返回元素节点的属性，其他节点没有属性
func Attributes(n *html.Node) map[string]string {
	attrs := make(map[string]string)
	if n == nil || n.Type != html.ElementNode {
		return attrs
	}

	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		attrs[key] = a.Val
	}
	return attrs
}
