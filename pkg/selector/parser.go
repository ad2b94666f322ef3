package selector

import (
	"fmt"
	"strconv"
	"strings"
)

// maxNesting 限制 :not(...) 的嵌套深度
const maxNesting = 16

// 支持的伪类，以及是否需要参数
var knownPseudo = map[string]bool{
	"first-child":    false,
	"last-child":     false,
	"only-child":     false,
	"empty":          false,
	"nth-child":      true,
	"nth-last-child": true,
	"not":            true,
}

// Parse 把 CSS 选择器解析为 Rule 列表。
// 支持的语法：
//   - div、*、#id、.class 及其组合
//   - [attr], [attr=value], [attr~=value], [attr^=value], [attr$=value], [attr*=value], [attr|=value]
//   - :first-child, :last-child, :only-child, :empty
//   - :nth-child(k), :nth-child(an+b), :nth-child(odd|even), :nth-last-child(...)
//   - :not(selector)
//   - 后代（空白）和子代（>）组合符
//
// 每个由组合符分隔的段对应一个 Rule，空选择器返回空列表。
func Parse(selector string) ([]*Rule, error) {
	return parse(selector, 0)
}

func parse(selector string, depth int) ([]*Rule, error) {
	src := strings.TrimSpace(selector)
	if src == "" {
		return nil, nil
	}

	s := &scanner{src: src, depth: depth}
	if depth > maxNesting {
		return nil, s.errorf("selector nested too deeply")
	}

	return s.rules()
}

// scanner 从左到右扫描一遍选择器
type scanner struct {
	src   string
	pos   int
	depth int
}

func (s *scanner) errorf(format string, args ...any) error {
	return &SyntaxError{Selector: s.src, Offset: s.pos, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) rules() ([]*Rule, error) {
	var rules []*Rule
	current := &Rule{}

	for s.pos < len(s.src) {
		ch := s.src[s.pos]

		switch {
		case ch == '#' || ch == '.':
			s.pos++
			value := s.run(isNameChar)
			if value == "" {
				return nil, s.errorf("expected name after %q", ch)
			}
			if ch == '#' {
				current.ID = value
			} else {
				current.Classes = append(current.Classes, value)
			}

		case isLetter(ch):
			current.TagName = strings.ToLower(s.run(isTagChar))

		case ch == '*':
			current.TagName = "*"
			s.pos++

		case ch == '[':
			attr, err := s.attribute()
			if err != nil {
				return nil, err
			}
			current.Attributes = append(current.Attributes, attr)

		case ch == ':':
			pseudo, err := s.pseudo()
			if err != nil {
				return nil, err
			}
			current.PseudoSelectors = append(current.PseudoSelectors, pseudo)

		case isSpace(ch) || ch == '>':
			if current.empty() {
				return nil, s.errorf("missing selector before combinator")
			}
			rules = append(rules, current)

			direct, err := s.combinator()
			if err != nil {
				return nil, err
			}
			current = &Rule{DirectChild: direct}

		default:
			return nil, s.errorf("unexpected character %q", ch)
		}
	}

	if current.empty() {
		return nil, s.errorf("missing selector after combinator")
	}

	return append(rules, current), nil
}

// run 读取 ok 接受的最长字节序列
func (s *scanner) run(ok func(byte) bool) string {
	start := s.pos
	for s.pos < len(s.src) && ok(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// combinator 跳过分隔符，返回其中是否有 ">"
func (s *scanner) combinator() (bool, error) {
	direct := false
	for s.pos < len(s.src) {
		ch := s.src[s.pos]
		if ch == '>' {
			if direct {
				return false, s.errorf("unexpected combinator")
			}
			direct = true
		} else if !isSpace(ch) {
			break
		}
		s.pos++
	}

	if s.pos >= len(s.src) {
		return false, s.errorf("missing selector after combinator")
	}

	return direct, nil
}

// pseudo 解析 ":name" 及可选的 "(argument)"
func (s *scanner) pseudo() (PseudoSelector, error) {
	s.pos++ // ':'
	name := strings.ToLower(s.run(func(b byte) bool { return isLetter(b) || b == '-' }))
	if name == "" {
		return PseudoSelector{}, s.errorf("expected pseudo-selector name")
	}

	wantsArg, known := knownPseudo[name]
	if !known {
		return PseudoSelector{}, s.errorf("unknown pseudo-selector :%s", name)
	}

	p := PseudoSelector{Name: name}
	if s.pos < len(s.src) && s.src[s.pos] == '(' {
		arg, err := s.balanced()
		if err != nil {
			return PseudoSelector{}, err
		}
		p.Argument = arg
		p.HasArgument = true
	}

	if wantsArg != p.HasArgument {
		if wantsArg {
			return PseudoSelector{}, s.errorf(":%s requires an argument", name)
		}
		return PseudoSelector{}, s.errorf(":%s takes no argument", name)
	}

	// 参数在这里校验，编译时不会因参数失败
	switch name {
	case "nth-child", "nth-last-child":
		if _, _, err := ParseNth(p.Argument); err != nil {
			return PseudoSelector{}, s.errorf("%v", err)
		}
	case "not":
		inner, err := parse(p.Argument, s.depth+1)
		if err != nil {
			return PseudoSelector{}, err
		}
		if len(inner) == 0 {
			return PseudoSelector{}, s.errorf(":not requires a selector")
		}
	}

	return p, nil
}

// balanced 返回当前 "(" 与其对应 ")" 之间的文本
func (s *scanner) balanced() (string, error) {
	open := s.pos
	depth := 0
	for i := open; i < len(s.src); i++ {
		switch s.src[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos = i + 1
				return s.src[open+1 : i], nil
			}
		}
	}

	s.pos = open
	return "", s.errorf("unbalanced parentheses")
}

// attribute 解析 "[name]" 或 "[name op value]"
func (s *scanner) attribute() (AttributeSelector, error) {
	s.pos++ // '['
	s.run(isSpace)

	attr := AttributeSelector{Name: s.run(isAttrNameChar)}
	if attr.Name == "" {
		return attr, s.errorf("expected attribute name")
	}
	s.run(isSpace)

	if s.pos >= len(s.src) {
		return attr, s.errorf("unterminated attribute selector")
	}
	if s.src[s.pos] == ']' {
		s.pos++
		attr.Op = OpExists
		return attr, nil
	}

	op, ok := s.operator()
	if !ok {
		return attr, s.errorf("unknown attribute operator")
	}
	attr.Op = op
	s.run(isSpace)

	value, err := s.attributeValue()
	if err != nil {
		return attr, err
	}
	attr.Value = value
	s.run(isSpace)

	if s.pos >= len(s.src) || s.src[s.pos] != ']' {
		return attr, s.errorf("unterminated attribute selector")
	}
	s.pos++

	return attr, nil
}

func (s *scanner) operator() (Operator, bool) {
	for _, width := range []int{2, 1} {
		if s.pos+width > len(s.src) {
			continue
		}
		if op, ok := operatorTokens[s.src[s.pos:s.pos+width]]; ok {
			s.pos += width
			return op, true
		}
	}
	return 0, false
}

func (s *scanner) attributeValue() (string, error) {
	if s.pos >= len(s.src) {
		return "", s.errorf("expected attribute value")
	}

	quote := s.src[s.pos]
	if quote != '"' && quote != '\'' {
		value := s.run(isNameChar)
		if value == "" {
			return "", s.errorf("expected attribute value")
		}
		return value, nil
	}

	end := strings.IndexByte(s.src[s.pos+1:], quote)
	if end < 0 {
		return "", s.errorf("unterminated string")
	}
	value := s.src[s.pos+1 : s.pos+1+end]
	s.pos += end + 2
	return value, nil
}

// ParseNth 解析 CSS An+B 表达式，
// 接受 "3"、"+3"、"odd"、"even"、"n"、"-n+3"、"2n+1"、"2n - 1"。
// 结果选中所有非负整数 j 对应的位置 a*j+b。
func ParseNth(expr string) (a, b int, err error) {
	s := strings.ToLower(strings.Join(strings.Fields(expr), ""))

	switch s {
	case "":
		return 0, 0, fmt.Errorf("empty nth expression")
	case "odd":
		return 2, 1, nil
	case "even":
		return 2, 0, nil
	}

	n := strings.IndexByte(s, 'n')
	if n < 0 {
		b, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid nth expression %q", expr)
		}
		return 0, b, nil
	}

	switch coef := s[:n]; coef {
	case "", "+":
		a = 1
	case "-":
		a = -1
	default:
		a, err = strconv.Atoi(coef)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid nth coefficient %q", coef)
		}
	}

	rest := s[n+1:]
	if rest == "" {
		return a, 0, nil
	}
	if rest[0] != '+' && rest[0] != '-' {
		return 0, 0, fmt.Errorf("invalid nth expression %q", expr)
	}
	b, err = strconv.Atoi(rest)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid nth offset %q", rest)
	}

	return a, b, nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

// id 和 class 取值：[A-Za-z0-9_-]
func isNameChar(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '_' || b == '-'
}

// 标签名以字母开头，可含数字（h1..h6）
func isTagChar(b byte) bool {
	return isLetter(b) || isDigit(b)
}

func isAttrNameChar(b byte) bool {
	return isNameChar(b) || b == ':'
}
