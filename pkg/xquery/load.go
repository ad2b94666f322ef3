package xquery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"golang.org/x/net/html"

	"github.com/glesirok/xquery/pkg/document"
)

// ErrImport 表示 Load 无法把输入转换为文档，用 errors.Cause 判断
var ErrImport = errors.New("unsupported document type submitted for import")

// HTTPClient 用于获取 URL 指定的文档
var HTTPClient = &http.Client{Timeout: 30 * time.Second}

// Load 创建遍历链的根选择。
//
// input 可以是 HTML 字符串、文档位置（文件路径或 http/https URL）、
// 包含 HTML 的 []byte 或 io.Reader、*html.Node（文档、元素或其他节点）以及 []*html.Node。
// 其他类型返回 ErrImport。
func Load(input any) (*Selection, error) {
	return LoadContext(context.Background(), input)
}

// LoadContext 与 Load 相同，input 为 URL 时使用 ctx
func LoadContext(ctx context.Context, input any) (*Selection, error) {
	nodes, err := importNodes(ctx, input)
	if err != nil {
		return nil, err
	}
	return newRoot(nodes), nil
}

func importNodes(ctx context.Context, input any) ([]*html.Node, error) {
	switch v := input.(type) {
	case string:
		s := strings.TrimSpace(v)
		if isMarkup(s) {
			return document.ParseString(s)
		}
		return loadLocation(ctx, s)

	case []byte:
		return document.Parse(bytes.NewReader(bytes.TrimSpace(v)))

	case io.Reader:
		return document.Parse(v)

	case *html.Node:
		if v == nil {
			return nil, errors.Annotate(ErrImport, "nil node")
		}
		return document.Nodes(v), nil

	case []*html.Node:
		return append([]*html.Node(nil), v...), nil

	default:
		return nil, errors.Annotatef(ErrImport, "%T", input)
	}
}

// isMarkup 判断 s 是否以标签开头："<"，可选的 "!"，然后是单词字符
func isMarkup(s string) bool {
	if !strings.HasPrefix(s, "<") {
		return false
	}
	s = strings.TrimPrefix(s[1:], "!")
	if s == "" {
		return false
	}
	c := s[0]
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func loadLocation(ctx context.Context, location string) ([]*html.Node, error) {
	if location == "" {
		return nil, errors.Annotate(ErrImport, "empty location")
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return fetch(ctx, location)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", location)
	}
	defer f.Close()

	nodes, err := document.Parse(f)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", location)
	}
	return nodes, nil
}

func fetch(ctx context.Context, url string) ([]*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "request %s", url)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	nodes, err := document.Parse(resp.Body)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", url)
	}
	return nodes, nil
}
