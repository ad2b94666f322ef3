package processor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/glesirok/xquery/pkg/engine"
	"github.com/glesirok/xquery/pkg/rule"
	"github.com/glesirok/xquery/pkg/xquery"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Report 是一个文档的处理结果
type Report struct {
	Source  string           `yaml:"source"`
	Results []*engine.Result `yaml:"results"`
}

// Processor 对文件、目录和 URL 执行一组规则
type Processor struct {
	rules   []*engine.Rule
	engine  *engine.Engine
	out     io.Writer
	client  *http.Client
	limiter *rate.Limiter

	// 已写入 out 的报告数
	written int
}

// Option 配置 Processor
type Option func(*Processor)

// WithOutput 设置未指定输出路径时报告的去向，默认 stdout
func WithOutput(w io.Writer) Option {
	return func(p *Processor) { p.out = w }
}

// WithHTTPClient 替换 ProcessURL 使用的客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Processor) { p.client = c }
}

// WithRateLimit 把 URL 请求限制为每秒 rps 次
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Processor) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewProcessor 用已校验的规则创建处理器
func NewProcessor(rules []*engine.Rule, opts ...Option) *Processor {
	p := &Processor{
		rules:  rules,
		engine: engine.NewEngine(),
		out:    os.Stdout,
		client: newHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProcessorFromFile 用 YAML 文件中的规则创建处理器
func NewProcessorFromFile(ruleFile string, opts ...Option) (*Processor, error) {
	rules, err := rule.LoadFromFile(ruleFile)
	if err != nil {
		return nil, errors.Annotate(err, "load rules")
	}
	return NewProcessor(rules, opts...), nil
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.ResponseHeaderTimeout = 15 * time.Second

	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// Process 对已加载的文档执行规则
func (p *Processor) Process(doc *xquery.Selection, source string) (*Report, error) {
	results, err := p.engine.Run(doc, p.rules)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Report{Source: source, Results: results}, nil
}

// ProcessFile 处理单个 HTML 文件。outputPath 为空时报告写到配置的输出。
func (p *Processor) ProcessFile(inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return errors.Annotate(err, "read file")
	}

	doc, err := xquery.Load(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return errors.Annotatef(err, "parse %s", inputPath)
	}

	report, err := p.Process(doc, inputPath)
	if err != nil {
		return errors.Annotatef(err, "process %s", inputPath)
	}

	return p.writeReport(report, outputPath)
}

// ProcessDirectory 处理 inputDir 下所有 .html 和 .htm 文件。
// 指定 outputDir 时每个报告写到相同的相对路径（扩展名改为 .yaml），否则都写到配置的输出。
func (p *Processor) ProcessDirectory(inputDir, outputDir string) error {
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return errors.Annotate(err, "create output dir")
		}
	}

	return filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !IsHTMLFile(path) {
			return nil
		}

		var outputPath string
		if outputDir != "" {
			relPath, err := filepath.Rel(inputDir, path)
			if err != nil {
				return errors.Trace(err)
			}
			outputPath = filepath.Join(outputDir, ReportName(relPath))
		}

		glog.V(2).Infof("processing %s", path)
		return p.ProcessFile(path, outputPath)
	})
}

// ProcessURL 获取并处理页面，配置了限速时先等待限速器
func (p *Processor) ProcessURL(ctx context.Context, pageURL, outputPath string) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return errors.Annotate(err, "rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return errors.Annotate(err, "build request")
	}

	glog.V(2).Infof("fetching %s", pageURL)
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "fetch %s", pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("fetch %s: unexpected status %s", pageURL, resp.Status)
	}

	doc, err := xquery.Load(resp.Body)
	if err != nil {
		return errors.Annotatef(err, "parse %s", pageURL)
	}

	report, err := p.Process(doc, pageURL)
	if err != nil {
		return errors.Annotatef(err, "process %s", pageURL)
	}

	return p.writeReport(report, outputPath)
}

func (p *Processor) writeReport(report *Report, outputPath string) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(report); err != nil {
		return errors.Annotate(err, "marshal report")
	}
	if err := encoder.Close(); err != nil {
		return errors.Annotate(err, "marshal report")
	}

	if outputPath == "" {
		if p.written > 0 {
			if _, err := io.WriteString(p.out, "---\n"); err != nil {
				return errors.Annotate(err, "write report")
			}
		}
		p.written++
		_, err := p.out.Write(buf.Bytes())
		return errors.Annotate(err, "write report")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Annotate(err, "create output dir")
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return errors.Annotate(err, "write report")
	}
	glog.V(2).Infof("wrote %s", outputPath)
	return nil
}

// IsHTMLFile 判断 path 的扩展名是否为 .html 或 .htm
func IsHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// IsURL 判断 s 是否为 http/https URL
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ReportName 根据文件路径或 URL 生成报告文件名：
// "pages/a.html" 得到 "pages/a.yaml"，"https://example.com/x/y" 得到 "example.com_x_y.yaml"。
func ReportName(source string) string {
	if IsURL(source) {
		u, _ := url.Parse(source)
		name := u.Host + strings.TrimSuffix(u.Path, "/")
		if u.RawQuery != "" {
			name += "_" + u.RawQuery
		}
		name = strings.Map(func(r rune) rune {
			switch r {
			case '/', '?', '&', '=', ':', '\\':
				return '_'
			}
			return r
		}, name)
		return name + ".yaml"
	}

	return strings.TrimSuffix(source, filepath.Ext(source)) + ".yaml"
}
