// Package xquery 提供类似 jQuery 的 API，用 CSS 选择器选择和遍历 HTML 文档。
//
//	doc, err := xquery.Load(page)
//	if err != nil { ... }
//	title := doc.Find("#main h1").Eq(0).Text()
//	doc.Find("ul.menu > li").Each(func(i int, item *xquery.Selection) xquery.Control {
//		fmt.Println(i, item.Text())
//		return xquery.Continue
//	})
//
// 每次调用都返回一个新的 Selection，并记住它的来源，End() 沿链条回退。
// Selection 构造后不再修改。
package xquery

import (
	"fmt"
	"maps"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/html"

	"github.com/glesirok/xquery/pkg/document"
	"github.com/glesirok/xquery/pkg/selector"
)

// Control 告诉 Each 是否继续迭代
type Control int

const (
	Continue Control = iota
	Stop
)

// Selection 是遍历链中的一步：一组匹配节点，以及到达它们的 XPath 描述。
type Selection struct {
	nodes []*html.Node

	// 仅用于描述，遍历总是从 nodes 出发
	path string
	prev *Selection
	// 查询所在区域的顶层节点来自 root.nodes
	root *Selection

	// Next/Prev 遍历兄弟节点时设置
	cursor *siblingCursor

	err error

	attrsOnce sync.Once
	attrs     map[string]string
}

func newRoot(nodes []*html.Node) *Selection {
	s := &Selection{nodes: nodes}
	s.root = s
	return s
}

// derive 在 ctx 的区域上执行 path，结果作为 s 的后继
func (s *Selection) derive(ctx *Selection, path string) *Selection {
	nodes, err := document.Query(ctx.nodes, path)
	if err != nil {
		return s.fail(err)
	}
	glog.V(3).Infof("xquery: %s matched %d node(s)", path, len(nodes))

	return &Selection{nodes: nodes, path: path, prev: s, root: ctx}
}

// step 以每个匹配节点为上下文执行 expr，区域仍是 root 的区域
func (s *Selection) step(expr string) *Selection {
	nodes, err := document.QueryFrom(s.root.nodes, s.nodes, expr)
	if err != nil {
		return s.fail(err)
	}
	path := s.describe(expr)
	glog.V(3).Infof("xquery: %s matched %d node(s)", path, len(nodes))

	return &Selection{nodes: nodes, path: path, prev: s, root: s.root}
}

// describe 把 expr 接在 s 的路径之后
func (s *Selection) describe(expr string) string {
	if s.path == "" {
		return expr
	}
	return s.path + "/" + expr
}

// empty 返回不匹配任何节点的后继
func (s *Selection) empty() *Selection {
	return &Selection{prev: s, root: s.root, err: s.err}
}

func (s *Selection) fail(err error) *Selection {
	return &Selection{prev: s, root: s.root, err: err}
}

// Length 返回匹配节点数
func (s *Selection) Length() int {
	return len(s.nodes)
}

// Nodes 按文档顺序返回匹配节点
func (s *Selection) Nodes() []*html.Node {
	return append([]*html.Node(nil), s.nodes...)
}

// Path 返回描述该选择如何从 Root() 得到的 XPath，用于调试和日志。
func (s *Selection) Path() string {
	return s.path
}

// Err 返回导致选择为空的错误，例如选择器写错。错误会沿链条传递。
func (s *Selection) Err() error {
	return s.err
}

// End 返回当前选择的来源。链条的根上返回一个新的空选择。
func (s *Selection) End() *Selection {
	if s.prev == nil {
		return newRoot(nil)
	}
	return s.prev
}

// Root 返回当前选择所在区域的根选择
func (s *Selection) Root() *Selection {
	return s.root
}

// Find 选择匹配节点中符合 sel 的子孙节点
func (s *Selection) Find(sel string) *Selection {
	if s.err != nil {
		return s.empty()
	}

	query, err := selector.Compile(sel, false)
	if err != nil {
		return s.fail(err)
	}
	if query == "" {
		return s.empty()
	}

	return s.derive(s, query)
}

// FindAt 与 Find 相同，但只保留文档顺序中第 index 个匹配
func (s *Selection) FindAt(sel string, index int) *Selection {
	found := s.Find(sel)
	if found.err != nil || found.path == "" {
		return found
	}
	return found.pick(s, index)
}

// Eq 选择第 index 个节点，越界时为空选择
func (s *Selection) Eq(index int) *Selection {
	return s.pick(s, index)
}

// pick 保留 s 的第 index 个节点，作为 prev 的后继
func (s *Selection) pick(prev *Selection, index int) *Selection {
	out := &Selection{prev: prev, root: s.root, err: s.err}
	if s.path != "" {
		out.path = fmt.Sprintf("(%s)[%d]", s.path, index+1)
	}
	if index >= 0 && index < len(s.nodes) {
		out.nodes = []*html.Node{s.nodes[index]}
	}
	return out
}

// Is 判断第一个匹配节点是否符合 sel。祖先和兄弟条件（"div > p"、":first-child"）
// 在根区域内判断。
func (s *Selection) Is(sel string) bool {
	if s.err != nil || len(s.nodes) == 0 {
		return false
	}

	match, err := selector.Match(sel)
	if err != nil {
		glog.Warningf("xquery: is(%q): %v", sel, err)
		return false
	}

	nodes, err := document.QueryFrom(s.root.nodes, s.nodes[:1], "self::*"+match)
	return err == nil && len(nodes) == 1
}

// Text 返回匹配节点拼接后的文本
func (s *Selection) Text() string {
	return document.Text(s.nodes)
}

// HTML 渲染匹配节点
func (s *Selection) HTML() (string, error) {
	return document.HTML(s.nodes)
}

// Attrs 返回第一个匹配节点的属性
func (s *Selection) Attrs() map[string]string {
	return maps.Clone(s.attributes())
}

// Attr 返回第一个匹配节点的属性值
func (s *Selection) Attr(name string) (string, bool) {
	v, ok := s.attributes()[name]
	return v, ok
}

// HasAttribute 判断第一个匹配节点是否有该属性
func (s *Selection) HasAttribute(name string) bool {
	_, ok := s.attributes()[name]
	return ok
}

func (s *Selection) attributes() map[string]string {
	s.attrsOnce.Do(func() {
		if len(s.nodes) == 0 {
			s.attrs = map[string]string{}
			return
		}
		s.attrs = document.Attributes(s.nodes[0])
	})
	return s.attrs
}

// Each 按文档顺序对每个匹配节点调用 fn，fn 返回 Stop 时结束。返回 s 以便继续链式调用。
func (s *Selection) Each(fn func(i int, node *Selection) Control) *Selection {
	for i := range s.nodes {
		if fn(i, s.Eq(i)) == Stop {
			break
		}
	}
	return s
}
