package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	classTest = `contains(concat(" ", normalize-space(@class), " "), concat(" ", "test", " "))`
	classX    = `contains(concat(" ", normalize-space(@class), " "), concat(" ", "x", " "))`
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{"empty", "", ""},
		{"id", "#id", `/*/descendant::*[@id="id"]`},
		{"tag", "div", `/*/descendant::*[name()="div"]`},
		{"wildcard", "*", `/*/descendant::*`},
		{"class", ".test", `/*/descendant::*[` + classTest + `]`},
		{
			name:     "tag class id",
			selector: "div.test#main",
			want:     `/*/descendant::*[name()="div" and ` + classTest + ` and @id="main"]`,
		},
		{
			name:     "descendant",
			selector: "#root div",
			want:     `/*/descendant::*[@id="root"]/descendant::*[name()="div"]`,
		},
		{
			name:     "child",
			selector: "#root > div",
			want:     `/*/descendant::*[@id="root"]/child::*[name()="div"]`,
		},
		{
			name:     "child without spaces",
			selector: "ul>li",
			want:     `/*/descendant::*[name()="ul"]/child::*[name()="li"]`,
		},
		{
			name:     "first child",
			selector: "li:first-child",
			want:     `/*/descendant::*[name()="li" and count(preceding-sibling::*)=0]`,
		},
		{
			name:     "last child",
			selector: "li:last-child",
			want:     `/*/descendant::*[name()="li" and count(following-sibling::*)=0]`,
		},
		{
			name:     "nth child index",
			selector: "li:nth-child(2)",
			want:     `/*/descendant::*[name()="li" and count(preceding-sibling::*)=1]`,
		},
		{
			name:     "nth child odd",
			selector: "li:nth-child(2n+1)",
			want:     `/*/descendant::*[name()="li" and count(preceding-sibling::*) mod 2=0]`,
		},
		{
			name:     "nth child with offset",
			selector: "li:nth-child(3n+2)",
			want:     `/*/descendant::*[name()="li" and (count(preceding-sibling::*) - 1) mod 3=0 and count(preceding-sibling::*)>=1]`,
		},
		{
			name:     "nth child negative offset",
			selector: "li:nth-child(2n-1)",
			want:     `/*/descendant::*[name()="li" and (count(preceding-sibling::*) + 2) mod 2=0]`,
		},
		{
			name:     "nth child first three",
			selector: "li:nth-child(-n+3)",
			want:     `/*/descendant::*[name()="li" and (2 - count(preceding-sibling::*)) mod 1=0 and count(preceding-sibling::*)<=2]`,
		},
		{
			name:     "nth child never",
			selector: "li:nth-child(0)",
			want:     `/*/descendant::*[name()="li" and false()]`,
		},
		{
			name:     "nth last child",
			selector: "li:nth-last-child(1)",
			want:     `/*/descendant::*[name()="li" and count(following-sibling::*)=0]`,
		},
		{
			name:     "not",
			selector: "p:not(.x)",
			want:     `/*/descendant::*[name()="p" and not(` + classX + `)]`,
		},
		{
			name:     "not with compound",
			selector: "p:not(.x[foo])",
			want:     `/*/descendant::*[name()="p" and not(` + classX + ` and @foo)]`,
		},
		{
			name:     "not wildcard",
			selector: "p:not(*)",
			want:     `/*/descendant::*[name()="p" and not(true())]`,
		},
		{
			name:     "attribute",
			selector: `a[href^="http"]`,
			want:     `/*/descendant::*[name()="a" and starts-with(@href, "http")]`,
		},
		{
			name:     "attribute with quote",
			selector: `a[title="it's"]`,
			want:     `/*/descendant::*[name()="a" and @title="it's"]`,
		},
		{
			name:     "attribute dash prefix",
			selector: "[lang|=en]",
			want:     `/*/descendant::*[(@lang="en" or starts-with(@lang, "en-"))]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.selector, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Scoped(t *testing.T) {
	got, err := Compile("#id", true)
	require.NoError(t, err)
	assert.Equal(t, `[@id="id"]`, got)

	got, err = Compile("*", true)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = Compile(".test > p", true)
	require.NoError(t, err)
	assert.Equal(t, `[`+classTest+`]/child::*[name()="p"]`, got)
}

func TestCompile_Error(t *testing.T) {
	_, err := Compile("li:nth-child(", false)
	require.Error(t, err)

	assert.Panics(t, func() { MustCompile("div >", false) })
}

func TestStripRoot(t *testing.T) {
	assert.Equal(t, `[@id="a"]`, StripRoot(`/*/descendant::*[@id="a"]`))
	assert.Equal(t, `/child::*`, StripRoot(`/child::*`))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{"empty", "", ""},
		{"wildcard", "*", ""},
		{"single rule equals scoped compile", "span.test", `[name()="span" and ` + classTest + `]`},
		{"descendant", "#a p", `[name()="p" and ancestor::*[@id="a"]]`},
		{"child", "#a > p", `[name()="p" and parent::*[@id="a"]]`},
		{"wildcard parent", "* > p", `[name()="p" and parent::*]`},
		{
			name:     "three rules",
			selector: "ul > li a",
			want:     `[name()="a" and ancestor::*[name()="li" and parent::*[name()="ul"]]]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_SingleRuleMatchesScopedCompile(t *testing.T) {
	for _, sel := range []string{"#id", "div", ".a.b", "li:nth-child(odd)", "p:not(.x)", "a[href]"} {
		scoped, err := Compile(sel, true)
		require.NoError(t, err)
		match, err := Match(sel)
		require.NoError(t, err)
		assert.Equal(t, scoped, match, sel)
	}
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, literal("plain"))
	assert.Equal(t, `'say "hi"'`, literal(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "x", '"', "")`, literal(`it's "x"`))
}
