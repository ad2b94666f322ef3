package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html>
<html>
<head><title>list</title></head>
<body>
<ul id="list">
	<li class="a">one</li>
	<li class="b">two <!-- note --><b>bold</b></li>
	<li class="c">three</li>
</ul>
<p id="after">tail</p>
</body>
</html>`

func parsePage(t *testing.T) []*html.Node {
	t.Helper()
	nodes, err := ParseString(page)
	require.NoError(t, err)
	return nodes
}

func queryOne(t *testing.T, nodes []*html.Node, expr string) *html.Node {
	t.Helper()
	found, err := Query(nodes, expr)
	require.NoError(t, err)
	require.Len(t, found, 1, expr)
	return found[0]
}

func classes(nodes []*html.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, Attributes(n)["class"])
	}
	return out
}

func TestParse(t *testing.T) {
	nodes := parsePage(t)
	require.Len(t, nodes, 2)
	assert.Equal(t, html.DoctypeNode, nodes[0].Type)
	assert.Equal(t, "html", nodes[1].Data)
}

func TestNodes(t *testing.T) {
	assert.Nil(t, Nodes(nil))

	doc, err := html.Parse(strings.NewReader("<p>x</p>"))
	require.NoError(t, err)
	top := Nodes(doc)
	require.Len(t, top, 1)
	assert.Equal(t, "html", top[0].Data)

	assert.Equal(t, []*html.Node{top[0]}, Nodes(top[0]))
}

func TestQuery_Document(t *testing.T) {
	nodes := parsePage(t)

	items, err := Query(nodes, `/*/descendant::*[name()="li"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, classes(items))

	list := queryOne(t, nodes, `/*/descendant::*[@id="list"]`)
	assert.Equal(t, "ul", list.Data)

	// 相对查询从第一个元素开始
	head := queryOne(t, nodes, "child::head")
	assert.Equal(t, "head", head.Data)
}

func TestQuery_Empty(t *testing.T) {
	nodes := parsePage(t)

	found, err := Query(nil, "/*")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = Query(nodes, "")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = Query(nodes, `/*/descendant::*[@id="missing"]`)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestQuery_BadExpression(t *testing.T) {
	_, err := Query(parsePage(t), "/*[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile xpath")
}

func TestQuery_Region(t *testing.T) {
	nodes := parsePage(t)
	list := queryOne(t, nodes, `/*/descendant::*[@id="list"]`)
	region := []*html.Node{list}

	top := queryOne(t, region, "/*")
	assert.Same(t, list, top)

	items, err := Query(region, "/*/child::*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, classes(items))

	// 区域没有父节点和兄弟节点
	for _, expr := range []string{"parent::*", "following-sibling::*", "/*/ancestor::*"} {
		found, err := Query(region, expr)
		require.NoError(t, err)
		assert.Empty(t, found, expr)
	}

	// 顶层之下的节点保留真实的父节点
	parents, err := Query(region, "/*/descendant::*/parent::*")
	require.NoError(t, err)
	require.Len(t, parents, 2)
	assert.Same(t, list, parents[0])
	assert.Equal(t, "b", Attributes(parents[1])["class"])
}

func TestQuery_TopLevelSiblings(t *testing.T) {
	nodes := parsePage(t)
	items, err := Query(nodes, `/*/descendant::*[name()="li"]`)
	require.NoError(t, err)

	// 区域只含第一项和最后一项，不含中间项
	region := []*html.Node{items[0], items[2]}

	next := queryOne(t, region, "following-sibling::*")
	assert.Same(t, items[2], next)

	found, err := Query(region, "/*[2]/preceding-sibling::*")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Same(t, items[0], found[0])
}

func TestQuery_DocumentOrderWithoutDuplicates(t *testing.T) {
	nodes := parsePage(t)
	list := queryOne(t, nodes, `/*/descendant::*[@id="list"]`)
	second := queryOne(t, nodes, `/*/descendant::*[@class="b"]`)

	// 第二项从两个顶层节点都能到达
	found, err := Query([]*html.Node{list, second}, "/*/descendant-or-self::*")
	require.NoError(t, err)

	var names []string
	for _, n := range found {
		names = append(names, n.Data)
	}
	assert.Equal(t, []string{"ul", "li", "li", "b", "li"}, names)

	found, err = Query(nodes, `/*/descendant::*[@id="after"] | /*/descendant::*[@class="a"]`)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "li", found[0].Data)
	assert.Equal(t, "p", found[1].Data)
}

func TestSelectFrom(t *testing.T) {
	nodes := parsePage(t)
	items, err := Query(nodes, `/*/descendant::*[name()="li"]`)
	require.NoError(t, err)

	each, err := SelectFrom(nodes, items, "following-sibling::*")
	require.NoError(t, err)
	require.Len(t, each, 3)
	assert.Equal(t, []string{"b", "c"}, classes(each[0]))
	assert.Equal(t, []string{"c"}, classes(each[1]))
	assert.Empty(t, each[2])

	each, err = SelectFrom(nodes, items, "preceding-sibling::*")
	require.NoError(t, err)
	assert.Empty(t, each[0])
	assert.Equal(t, []string{"a", "b"}, classes(each[2]))

	_, err = SelectFrom(nodes, items, "following-sibling::*[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile xpath")
}

func TestSelectFrom_Region(t *testing.T) {
	nodes := parsePage(t)
	list := queryOne(t, nodes, `/*/descendant::*[@id="list"]`)
	after := queryOne(t, nodes, `/*/descendant::*[@id="after"]`)
	second := queryOne(t, nodes, `/*/descendant::*[@class="b"]`)
	bold := queryOne(t, nodes, `/*/descendant::*[name()="b"]`)

	// 不在区域内的节点没有结果
	each, err := SelectFrom([]*html.Node{list}, []*html.Node{after, second}, "parent::*")
	require.NoError(t, err)
	assert.Empty(t, each[0])
	assert.Equal(t, []*html.Node{list}, each[1])

	// 顶层节点互相嵌套时，祖先止于最外层
	each, err = SelectFrom([]*html.Node{list, second}, []*html.Node{bold}, "ancestor::*")
	require.NoError(t, err)
	assert.Equal(t, []*html.Node{list, second}, each[0])

	each, err = SelectFrom([]*html.Node{list}, []*html.Node{list}, "parent::* | following-sibling::*")
	require.NoError(t, err)
	assert.Empty(t, each[0])
}

func TestQueryFrom(t *testing.T) {
	nodes := parsePage(t)
	items, err := Query(nodes, `/*/descendant::*[name()="li"]`)
	require.NoError(t, err)

	found, err := QueryFrom(nodes, items[:2], "following-sibling::*")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, classes(found))

	found, err = QueryFrom(nodes, items, "parent::*")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "list", Attributes(found[0])["id"])

	found, err = QueryFrom(nodes, items[1:2], `self::*[@class="b"]`)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = QueryFrom(nil, items, "parent::*")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUnique(t *testing.T) {
	nodes := parsePage(t)
	items, err := Query(nodes, `/*/descendant::*[name()="li"]`)
	require.NoError(t, err)

	got := Unique(nodes, []*html.Node{items[2], items[0], items[2]})
	assert.Equal(t, []string{"a", "c"}, classes(got))
	assert.Empty(t, Unique(nodes, nil))
}

func TestQuery_SkipsAttributes(t *testing.T) {
	found, err := Query(parsePage(t), `/*/descendant::*[@id="list"]/@id`)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestQuery_AttributePredicates(t *testing.T) {
	nodes := parsePage(t)

	found, err := Query(nodes, `/*/descendant::*[contains(concat(" ", normalize-space(@class), " "), " b ")]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, classes(found))

	found, err = Query(nodes, `/*/descendant::*[name()="li" and count(preceding-sibling::*)=2]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, classes(found))
}

func TestText(t *testing.T) {
	nodes := parsePage(t)
	second := queryOne(t, nodes, `/*/descendant::*[@class="b"]`)
	assert.Equal(t, "two bold", Text([]*html.Node{second}))

	items, err := Query(nodes, `/*/descendant::*[name()="li"]`)
	require.NoError(t, err)
	assert.Equal(t, "onetwo boldthree", Text(items))

	assert.Equal(t, "", Text(nil))
}

func TestHTML(t *testing.T) {
	nodes := parsePage(t)
	first := queryOne(t, nodes, `/*/descendant::*[@class="a"]`)
	after := queryOne(t, nodes, `/*/descendant::*[@id="after"]`)

	out, err := HTML([]*html.Node{first, after})
	require.NoError(t, err)
	assert.Equal(t, `<li class="a">one</li><p id="after">tail</p>`, out)

	out, err = HTML(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestAttributes(t *testing.T) {
	nodes, err := ParseString(`<a href="/x" title="t">x</a><svg><use xlink:href="#icon"></use></svg>`)
	require.NoError(t, err)

	link := queryOne(t, nodes, `/*/descendant::*[name()="a"]`)
	assert.Equal(t, map[string]string{"href": "/x", "title": "t"}, Attributes(link))

	use := queryOne(t, nodes, `/*/descendant::*[name()="use"]`)
	assert.Equal(t, map[string]string{"xlink:href": "#icon"}, Attributes(use))

	assert.Empty(t, Attributes(link.FirstChild))
	assert.Empty(t, Attributes(nil))
}
