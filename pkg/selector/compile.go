package selector

import (
	"fmt"
	"strings"
)

// RootPrefix 把查询限定在区域顶层节点之下
const RootPrefix = "/*/descendant::*"

const (
	precedingCount = "count(preceding-sibling::*)"
	followingCount = "count(following-sibling::*)"
)

// Compile 把 CSS 选择器编译为 XPath 查询。
//
// scopeToCurrentNode 为 true 时去掉开头的 RootPrefix，结果可以接在相对已选节点的轴之后，
// 例如 "child::*" + q。空选择器编译为空查询。
func Compile(selector string, scopeToCurrentNode bool) (string, error) {
	rules, err := Parse(selector)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return "", nil
	}

	query, err := RulesToXPath(rules)
	if err != nil {
		return "", err
	}

	if scopeToCurrentNode {
		query = StripRoot(query)
	}

	return query, nil
}

// MustCompile 与 Compile 相同，选择器有误时 panic
func MustCompile(selector string, scopeToCurrentNode bool) string {
	query, err := Compile(selector, scopeToCurrentNode)
	if err != nil {
		panic(err)
	}
	return query
}

// StripRoot 去掉 query 开头的 RootPrefix
func StripRoot(query string) string {
	return strings.TrimPrefix(query, RootPrefix)
}

// Match 把选择器编译为谓词 "[...]"，节点匹配选择器时成立：
// 最后一段描述节点本身，之前的段描述其祖先。选择器没有任何条件时返回 ""。
func Match(selector string) (string, error) {
	rules, err := Parse(selector)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return "", nil
	}

	cond, err := matchCondition(rules, 0)
	if err != nil {
		return "", err
	}
	if cond == "" {
		return "", nil
	}
	return "[" + cond + "]", nil
}

// RulesToXPath 把 Rule 列表渲染为以 RootPrefix 开头的查询
func RulesToXPath(rules []*Rule) (string, error) {
	var b strings.Builder
	b.WriteString("/*")

	for _, rule := range rules {
		if rule.DirectChild {
			b.WriteString("/child::*")
		} else {
			b.WriteString("/descendant::*")
		}

		filters, err := rule.Filters()
		if err != nil {
			return "", err
		}
		if len(filters) > 0 {
			b.WriteString("[" + strings.Join(filters, " and ") + "]")
		}
	}

	return b.String(), nil
}

// matchCondition 构造“自身匹配 rules”的条件，从最内层的段开始经 parent::/ancestor:: 向外
func matchCondition(rules []*Rule, depth int) (string, error) {
	last := rules[len(rules)-1]
	conds, err := last.filters(depth)
	if err != nil {
		return "", err
	}

	if len(rules) > 1 {
		outer, err := matchCondition(rules[:len(rules)-1], depth)
		if err != nil {
			return "", err
		}

		step := "ancestor::*"
		if last.DirectChild {
			step = "parent::*"
		}
		if outer != "" {
			step += "[" + outer + "]"
		}
		conds = append(conds, step)
	}

	return strings.Join(conds, " and "), nil
}

// Filters 返回该段的 XPath 条件，必须全部成立
func (r *Rule) Filters() ([]string, error) {
	return r.filters(0)
}

func (r *Rule) filters(depth int) ([]string, error) {
	var out []string

	if r.TagName != "" && r.TagName != "*" {
		out = append(out, fmt.Sprintf("name()=%s", literal(r.TagName)))
	}

	for _, class := range r.Classes {
		out = append(out, wordContains("@class", class))
	}

	if r.ID != "" {
		out = append(out, fmt.Sprintf("@id=%s", literal(r.ID)))
	}

	for _, attr := range r.Attributes {
		out = append(out, attr.filter())
	}

	for _, pseudo := range r.PseudoSelectors {
		f, err := pseudo.filter(depth)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}

	return out, nil
}

func (a AttributeSelector) filter() string {
	ref := "@" + a.Name

	switch a.Op {
	case OpEqual:
		return fmt.Sprintf("%s=%s", ref, literal(a.Value))
	case OpIncludes:
		return wordContains(ref, a.Value)
	case OpPrefix:
		return fmt.Sprintf("starts-with(%s, %s)", ref, literal(a.Value))
	case OpSuffix:
		v := literal(a.Value)
		return fmt.Sprintf("substring(%s, string-length(%s) - string-length(%s) + 1)=%s", ref, ref, v, v)
	case OpContains:
		return fmt.Sprintf("contains(%s, %s)", ref, literal(a.Value))
	case OpDashPrefix:
		return fmt.Sprintf("(%s=%s or starts-with(%s, %s))", ref, literal(a.Value), ref, literal(a.Value+"-"))
	default:
		return ref
	}
}

func (p PseudoSelector) filter(depth int) (string, error) {
	switch p.Name {
	case "first-child":
		return precedingCount + "=0", nil
	case "last-child":
		return followingCount + "=0", nil
	case "only-child":
		return precedingCount + "=0 and " + followingCount + "=0", nil
	case "empty":
		return "not(*) and not(text())", nil
	case "nth-child", "nth-last-child":
		a, b, err := ParseNth(p.Argument)
		if err != nil {
			return "", &SyntaxError{Selector: p.Argument, Msg: err.Error()}
		}
		counter := precedingCount
		if p.Name == "nth-last-child" {
			counter = followingCount
		}
		return nthCondition(counter, a, b), nil
	case "not":
		rules, err := parse(p.Argument, depth+1)
		if err != nil {
			return "", err
		}
		if len(rules) == 0 {
			return "", &SyntaxError{Selector: p.Argument, Msg: ":not requires a selector"}
		}
		cond, err := matchCondition(rules, depth+1)
		if err != nil {
			return "", err
		}
		if cond == "" {
			cond = "true()"
		}
		return "not(" + cond + ")", nil
	default:
		return "", &SyntaxError{Selector: ":" + p.Name, Msg: "unknown pseudo-selector"}
	}
}

// nthCondition 对位置为 a*j+b（j >= 0）的节点成立，counter+1 是节点在兄弟元素中的位置
func nthCondition(counter string, a, b int) string {
	switch {
	case a == 0:
		if b < 1 {
			return "false()"
		}
		return fmt.Sprintf("%s=%d", counter, b-1)

	case a > 0:
		cond := fmt.Sprintf("%s mod %d=0", offset(counter, 1-b), a)
		if b > 1 {
			cond += fmt.Sprintf(" and %s>=%d", counter, b-1)
		}
		return cond

	default:
		if b < 1 {
			return "false()"
		}
		return fmt.Sprintf("(%d - %s) mod %d=0 and %s<=%d", b-1, counter, -a, counter, b-1)
	}
}

func offset(expr string, c int) string {
	switch {
	case c > 0:
		return fmt.Sprintf("(%s + %d)", expr, c)
	case c < 0:
		return fmt.Sprintf("(%s - %d)", expr, -c)
	default:
		return expr
	}
}

// wordContains 判断空白分隔的 ref 中是否有 value
func wordContains(ref, value string) string {
	return fmt.Sprintf(`contains(concat(" ", normalize-space(%s), " "), concat(" ", %s, " "))`, ref, literal(value))
}

// literal 把 s 转为 XPath 字符串字面量
func literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}

	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+part+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
