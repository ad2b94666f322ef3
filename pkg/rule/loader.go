package rule

import (
	"bytes"
	"io"
	"os"
	"slices"

	"github.com/dlclark/regexp2"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/glesirok/xquery/pkg/engine"
	"github.com/glesirok/xquery/pkg/selector"
)

// Config 是规则文件的结构
type Config struct {
	Rules []*engine.Rule `yaml:"rules"`
}

// LoadFromFile 加载并校验 YAML 文件中的规则
func LoadFromFile(filePath string) ([]*engine.Rule, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "read rules")
	}

	rules, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", filePath)
	}
	return rules, nil
}

// Parse 解码并校验规则，拒绝未知字段
func Parse(data []byte) ([]*engine.Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var config Config
	if err := dec.Decode(&config); err != nil && err != io.EOF {
		return nil, errors.Annotate(err, "unmarshal yaml")
	}
	if len(config.Rules) == 0 {
		return nil, errors.New("no rules defined")
	}

	names := make(map[string]bool, len(config.Rules))
	for i, r := range config.Rules {
		if r == nil {
			return nil, errors.Errorf("rule %d: empty rule", i)
		}
		if err := Validate(r); err != nil {
			return nil, errors.Annotatef(err, "rule %d", i)
		}
		if names[r.Name] {
			return nil, errors.Errorf("rule %d: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
	}

	return config.Rules, nil
}

// Validate 在执行前检查规则
func Validate(r *engine.Rule) error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Selector == "" && len(r.Steps) == 0 {
		return errors.New("selector or steps is required")
	}
	if _, err := selector.Compile(r.Selector, false); err != nil {
		return errors.Annotate(err, "selector")
	}

	for i, step := range r.Steps {
		if err := validateStep(step); err != nil {
			return errors.Annotatef(err, "step %d", i)
		}
	}

	switch r.Action {
	case "", engine.ActionText, engine.ActionHTML, engine.ActionCount, engine.ActionExists:
		if r.Attr != "" {
			return errors.Errorf("attr is only used by action %s", engine.ActionAttr)
		}
	case engine.ActionAttr:
		if r.Attr == "" {
			return errors.Errorf("attr is required for action %s", r.Action)
		}
	default:
		return errors.Errorf("unknown action: %s", r.Action)
	}

	return validatePattern(r)
}

func validateStep(step engine.Step) error {
	switch step.Op {
	case engine.OpFind:
		if step.Selector == "" {
			return errors.New("find requires a selector")
		}
		if step.Index != nil && *step.Index < 0 {
			return errors.New("index must not be negative")
		}

	case engine.OpEq:
		if step.Index == nil {
			return errors.New("eq requires an index")
		}
		if step.Selector != "" {
			return errors.New("eq takes no selector")
		}
		return nil

	case engine.OpChildren, engine.OpParents, engine.OpNext, engine.OpNextAll, engine.OpPrev, engine.OpPrevAll:
		if step.Index != nil {
			return errors.Errorf("%s takes no index", step.Op)
		}

	case engine.OpParent, engine.OpEnd, engine.OpRoot:
		if step.Selector != "" || step.Index != nil {
			return errors.Errorf("%s takes no arguments", step.Op)
		}
		return nil

	default:
		return errors.Errorf("unknown op: %s", step.Op)
	}

	if _, err := selector.Parse(step.Selector); err != nil {
		return errors.Annotate(err, "selector")
	}
	return nil
}

func validatePattern(r *engine.Rule) error {
	if r.Pattern == "" {
		if r.Group != 0 {
			return errors.New("group requires a pattern")
		}
		return nil
	}

	re, err := regexp2.Compile(r.Pattern, regexp2.None)
	if err != nil {
		return errors.Annotate(err, "invalid pattern")
	}
	if !slices.Contains(re.GetGroupNumbers(), r.Group) {
		return errors.Errorf("pattern has no group %d", r.Group)
	}
	return nil
}
