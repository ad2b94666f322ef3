package engine

// ActionType 定义规则从选择中提取什么
type ActionType string

const (
	ActionText   ActionType = "text"
	ActionHTML   ActionType = "html"
	ActionAttr   ActionType = "attr"
	ActionCount  ActionType = "count"
	ActionExists ActionType = "exists"
)

// StepOp 是规则链中的一次遍历调用
type StepOp string

const (
	OpFind     StepOp = "find"
	OpEq       StepOp = "eq"
	OpChildren StepOp = "children"
	OpParent   StepOp = "parent"
	OpParents  StepOp = "parents"
	OpNext     StepOp = "next"
	OpNextAll  StepOp = "next_all"
	OpPrev     StepOp = "prev"
	OpPrevAll  StepOp = "prev_all"
	OpEnd      StepOp = "end"
	OpRoot     StepOp = "root"
)

// Step 是一次遍历调用。Selector 过滤轴上的节点（find 时是查询本身），
// Index 供 eq 和 find 选取单个匹配。
type Step struct {
	Op       StepOp `yaml:"op"`
	Selector string `yaml:"selector,omitempty"`
	Index    *int   `yaml:"index,omitempty"`
}

// Rule 是一条命名的提取规则：可选的选择器、其后的遍历步骤，以及作用于最终选择的动作。
type Rule struct {
	Name     string     `yaml:"name"`
	Selector string     `yaml:"selector,omitempty"`
	Steps    []Step     `yaml:"steps,omitempty"`
	Action   ActionType `yaml:"action,omitempty"` // 默认 text
	Attr     string     `yaml:"attr,omitempty"`   // attr 动作使用
	Pattern  string     `yaml:"pattern,omitempty"`
	Group    int        `yaml:"group,omitempty"` // 保留 Pattern 的第几个捕获组
	All      bool       `yaml:"all,omitempty"`   // 提取所有匹配而不只是第一个
}

// Result 按文档顺序保存规则提取的值
type Result struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}
