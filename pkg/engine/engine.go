package engine

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/glesirok/xquery/pkg/xquery"
)

// patternTimeout 限制单次 regexp2 匹配的时间
const patternTimeout = time.Second

// Engine 对已加载的文档执行提取规则
type Engine struct {
	mu       sync.Mutex
	patterns map[string]*regexp2.Regexp
}

func NewEngine() *Engine {
	return &Engine{
		patterns: make(map[string]*regexp2.Regexp),
	}
}

// Run 对 doc 执行所有规则，按规则顺序返回结果
func (e *Engine) Run(doc *xquery.Selection, rules []*Rule) ([]*Result, error) {
	results := make([]*Result, 0, len(rules))
	for i, r := range rules {
		res, err := e.Apply(doc, r)
		if err != nil {
			return nil, errors.Annotatef(err, "rule %d (%s)", i, r.Name)
		}
		if len(res.Values) == 0 {
			glog.Warningf("rule %q matched nothing", r.Name)
		}
		results = append(results, res)
	}
	return results, nil
}

// Apply 在 doc 上执行规则的遍历链并提取值。没有匹配不算错误。
func (e *Engine) Apply(doc *xquery.Selection, rule *Rule) (*Result, error) {
	sel, err := traverse(doc, rule)
	if err != nil {
		return nil, err
	}

	values, err := extract(sel, rule)
	if err != nil {
		return nil, err
	}

	if rule.Pattern != "" {
		values, err = e.match(values, rule)
		if err != nil {
			return nil, err
		}
	}

	glog.V(2).Infof("rule %q: %d node(s), %d value(s)", rule.Name, sel.Length(), len(values))
	return &Result{Name: rule.Name, Values: values}, nil
}

// traverse 把规则的选择器和步骤依次作为 doc 上的调用执行
func traverse(doc *xquery.Selection, rule *Rule) (*xquery.Selection, error) {
	sel := doc
	if rule.Selector != "" {
		sel = sel.Find(rule.Selector)
	}

	for i, step := range rule.Steps {
		next, err := apply(sel, step)
		if err != nil {
			return nil, errors.Annotatef(err, "step %d", i)
		}
		sel = next
	}

	if err := sel.Err(); err != nil {
		return nil, errors.Annotate(err, "traverse")
	}
	return sel, nil
}

func apply(sel *xquery.Selection, step Step) (*xquery.Selection, error) {
	filter := filterArgs(step.Selector)

	switch step.Op {
	case OpFind:
		if step.Index != nil {
			return sel.FindAt(step.Selector, *step.Index), nil
		}
		return sel.Find(step.Selector), nil
	case OpEq:
		if step.Index == nil {
			return nil, errors.New("eq requires an index")
		}
		return sel.Eq(*step.Index), nil
	case OpChildren:
		return sel.Children(filter...), nil
	case OpParent:
		return sel.Parent(), nil
	case OpParents:
		return sel.Parents(filter...), nil
	case OpNext:
		return sel.Next(filter...), nil
	case OpNextAll:
		return sel.NextAll(filter...), nil
	case OpPrev:
		return sel.Prev(filter...), nil
	case OpPrevAll:
		return sel.PrevAll(filter...), nil
	case OpEnd:
		return sel.End(), nil
	case OpRoot:
		return sel.Root(), nil
	default:
		return nil, errors.Errorf("unknown step: %s", step.Op)
	}
}

func filterArgs(selector string) []string {
	if selector == "" {
		return nil
	}
	return []string{selector}
}

// extract 按 rule.Action 把选择转换为值
func extract(sel *xquery.Selection, rule *Rule) ([]string, error) {
	values := []string{}

	switch rule.Action {
	case ActionCount:
		return append(values, strconv.Itoa(sel.Length())), nil
	case ActionExists:
		return append(values, strconv.FormatBool(sel.Length() > 0)), nil
	case "", ActionText, ActionHTML, ActionAttr:
	default:
		return nil, errors.Errorf("unknown action: %s", rule.Action)
	}

	var err error
	sel.Each(func(i int, node *xquery.Selection) xquery.Control {
		switch rule.Action {
		case ActionHTML:
			var markup string
			markup, err = node.HTML()
			if err != nil {
				return xquery.Stop
			}
			values = append(values, markup)
		case ActionAttr:
			if v, ok := node.Attr(rule.Attr); ok {
				values = append(values, v)
			}
		default:
			values = append(values, strings.TrimSpace(node.Text()))
		}

		if !rule.All {
			return xquery.Stop
		}
		return xquery.Continue
	})
	if err != nil {
		return nil, errors.Annotate(err, "extract html")
	}

	return values, nil
}

// match 从每个值中取出 rule.Pattern 的捕获组，不匹配的值被丢弃
func (e *Engine) match(values []string, rule *Rule) ([]string, error) {
	re, err := e.pattern(rule.Pattern)
	if err != nil {
		return nil, err
	}

	out := []string{}
	for _, v := range values {
		m, err := re.FindStringMatch(v)
		if err != nil {
			return nil, errors.Annotatef(err, "match %q", rule.Pattern)
		}
		if m == nil {
			continue
		}
		g := m.GroupByNumber(rule.Group)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		out = append(out, g.String())
	}
	return out, nil
}

func (e *Engine) pattern(expr string) (*regexp2.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.patterns[expr]; ok {
		return re, nil
	}

	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, errors.Annotatef(err, "compile pattern %q", expr)
	}
	re.MatchTimeout = patternTimeout
	e.patterns[expr] = re
	return re, nil
}
