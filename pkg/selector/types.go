package selector

import "fmt"

// Rule 是选择器中的一段，例如 "#main > div.note" 中的 "div.note"
type Rule struct {
	TagName         string              // "" 不限制，"*" 通配
	ID              string              // 多个 #id 时取最后一个
	Classes         []string            // 每个 class 都必须匹配
	Attributes      []AttributeSelector // [name=value] 形式的条件
	PseudoSelectors []PseudoSelector
	DirectChild     bool // 与上一段以 ">" 相连
}

// PseudoSelector 是 ":name" 或 ":name(argument)" 伪类
type PseudoSelector struct {
	Name        string
	Argument    string // 括号内的原始文本
	HasArgument bool
}

// AttributeSelector 是方括号中的属性条件
type AttributeSelector struct {
	Name  string
	Op    Operator
	Value string
}

type Operator int

const (
	OpExists     Operator = iota // [attr]
	OpEqual                      // [attr=value]
	OpIncludes                   // [attr~=value]
	OpPrefix                     // [attr^=value]
	OpSuffix                     // [attr$=value]
	OpContains                   // [attr*=value]
	OpDashPrefix                 // [attr|=value]
)

var operatorTokens = map[string]Operator{
	"=":  OpEqual,
	"~=": OpIncludes,
	"^=": OpPrefix,
	"$=": OpSuffix,
	"*=": OpContains,
	"|=": OpDashPrefix,
}

// SyntaxError 表示无法解析的选择器
type SyntaxError struct {
	Selector string
	Offset   int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("selector %q: %s at offset %d", e.Selector, e.Msg, e.Offset)
}

// empty 判断该段是否没有任何条件
func (r *Rule) empty() bool {
	return r.TagName == "" && r.ID == "" && len(r.Classes) == 0 &&
		len(r.Attributes) == 0 && len(r.PseudoSelectors) == 0
}
