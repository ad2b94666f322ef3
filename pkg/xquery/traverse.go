package xquery

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/glesirok/xquery/pkg/document"
	"github.com/glesirok/xquery/pkg/selector"
)

// siblingCursor 把 Next/Prev 的连续移动记录为相对起点的偏移
type siblingCursor struct {
	base     []*html.Node
	basePath string
	offset   int // > 0 向后，< 0 向前
}

// resolve 返回每个起点偏移 offset 后的兄弟元素，越界的起点没有结果
func (c siblingCursor) resolve(top []*html.Node) ([]*html.Node, error) {
	if c.offset == 0 {
		return c.base, nil
	}

	axis, k := "following-sibling::*", c.offset
	if k < 0 {
		axis, k = "preceding-sibling::*", -k
	}

	each, err := document.SelectFrom(top, c.base, axis)
	if err != nil {
		return nil, err
	}

	var found []*html.Node
	for _, siblings := range each {
		if k > len(siblings) {
			continue
		}
		// 结果按文档顺序排列，向前时最近的兄弟在末尾
		if c.offset > 0 {
			found = append(found, siblings[k-1])
		} else {
			found = append(found, siblings[len(siblings)-k])
		}
	}
	return document.Unique(top, found), nil
}

func (c siblingCursor) path() string {
	base := c.basePath
	if base != "" {
		base += "/"
	}
	switch {
	case c.offset > 0:
		return fmt.Sprintf("%sfollowing-sibling::*[%d]", base, c.offset)
	case c.offset < 0:
		return fmt.Sprintf("%spreceding-sibling::*[%d]", base, -c.offset)
	default:
		return c.basePath
	}
}

// Children 选择匹配节点的子元素，可用选择器过滤
func (s *Selection) Children(sel ...string) *Selection {
	return s.axis("child::*", sel)
}

// Parent 选择匹配节点的父元素
func (s *Selection) Parent() *Selection {
	return s.axis("parent::*", nil)
}

// Parents 选择匹配节点的祖先元素，可用选择器过滤
func (s *Selection) Parents(sel ...string) *Selection {
	return s.axis("ancestor::*", sel)
}

// NextAll 选择之后的所有兄弟元素，可用选择器过滤
func (s *Selection) NextAll(sel ...string) *Selection {
	return s.axis("following-sibling::*", sel)
}

// PrevAll 选择之前的所有兄弟元素，可用选择器过滤
func (s *Selection) PrevAll(sel ...string) *Selection {
	return s.axis("preceding-sibling::*", sel)
}

// Next 选择紧随其后的兄弟元素。带选择器时，该兄弟不匹配则结果为空，不会继续向后找。
func (s *Selection) Next(sel ...string) *Selection {
	return s.sibling(1, sel)
}

// Prev 选择紧邻其前的兄弟元素。带选择器时，该兄弟不匹配则结果为空。
func (s *Selection) Prev(sel ...string) *Selection {
	return s.sibling(-1, sel)
}

// axis 从每个匹配节点出发沿轴选择，查询不会越出根区域
func (s *Selection) axis(step string, sel []string) *Selection {
	if s.err != nil {
		return s.empty()
	}

	filter, err := selector.Match(optional(sel))
	if err != nil {
		return s.fail(err)
	}

	return s.step(step + filter)
}

func (s *Selection) sibling(delta int, sel []string) *Selection {
	if s.err != nil {
		return s.empty()
	}

	filter := optional(sel)
	if _, err := selector.Match(filter); err != nil {
		return s.fail(err)
	}

	cursor := siblingCursor{base: s.nodes, basePath: s.path}
	if s.cursor != nil {
		cursor = *s.cursor
	}
	cursor.offset += delta

	nodes, err := cursor.resolve(s.root.nodes)
	if err != nil {
		return s.fail(err)
	}
	out := &Selection{nodes: nodes, path: cursor.path(), prev: s, root: s.root, cursor: &cursor}

	if filter != "" && !out.Is(filter) {
		return s.empty()
	}
	return out
}

func optional(sel []string) string {
	if len(sel) == 0 {
		return ""
	}
	return sel[0]
}
