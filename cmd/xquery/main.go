package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/glesirok/xquery/pkg/engine"
	"github.com/glesirok/xquery/pkg/processor"
	"github.com/glesirok/xquery/pkg/rule"
)

var (
	ruleFile string
	query    string
	attr     string
	asHTML   bool
	count    bool
	inputs   []string
	output   string
	rps      float64
	burst    int
)

func main() {
	err := newRootCmd().Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xquery",
		Short: "Extract data from HTML documents with CSS selectors",
		Long: `xquery extracts values from HTML files, directories and URLs.
Values are selected with a rule file (-c) or a single CSS selector (-s) and
reported as YAML.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// go flag 未解析前 glog 不输出日志
			if err := flag.CommandLine.Parse(nil); err != nil {
				return errors.Annotate(err, "parse glog flags")
			}
			return nil
		},
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&ruleFile, "config", "c", "", "Rule configuration file")
	rootCmd.Flags().StringVarP(&query, "selector", "s", "", "CSS selector to extract instead of a rule file")
	rootCmd.Flags().StringVar(&attr, "attr", "", "With --selector: extract this attribute")
	rootCmd.Flags().BoolVar(&asHTML, "html", false, "With --selector: extract markup instead of text")
	rootCmd.Flags().BoolVar(&count, "count", false, "With --selector: report the number of matches")
	rootCmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "Input file, directory or URL (required, repeatable)")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or directory for several inputs (defaults to stdout)")
	rootCmd.Flags().Float64Var(&rps, "rate", 2, "Maximum URL requests per second (0 disables the limit)")
	rootCmd.Flags().IntVar(&burst, "burst", 1, "URL requests allowed at once above the rate")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagsMutuallyExclusive("config", "selector")
	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	rules, err := loadRules()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	proc := processor.NewProcessor(rules,
		processor.WithOutput(cmd.OutOrStdout()),
		processor.WithRateLimit(rps, burst),
	)

	// 多个输入时 output 是目录
	multi := len(inputs) > 1
	for _, in := range inputs {
		if err := processInput(ctx, proc, in, multi); err != nil {
			return err
		}
	}
	return nil
}

func loadRules() ([]*engine.Rule, error) {
	if ruleFile != "" {
		rules, err := rule.LoadFromFile(ruleFile)
		if err != nil {
			return nil, errors.Annotate(err, "load rules")
		}
		return rules, nil
	}

	if query == "" {
		return nil, errors.New("either --config or --selector is required")
	}

	r := &engine.Rule{Name: query, Selector: query, All: true}
	switch {
	case count:
		r.Action = engine.ActionCount
	case asHTML:
		r.Action = engine.ActionHTML
	case attr != "":
		r.Action = engine.ActionAttr
		r.Attr = attr
	}
	if err := rule.Validate(r); err != nil {
		return nil, errors.Annotate(err, "invalid selector")
	}
	return []*engine.Rule{r}, nil
}

func processInput(ctx context.Context, proc *processor.Processor, in string, multi bool) error {
	if processor.IsURL(in) {
		return proc.ProcessURL(ctx, in, outputFor(in, multi))
	}

	info, err := os.Stat(in)
	if err != nil {
		return errors.Annotate(err, "stat input")
	}

	if info.IsDir() {
		return proc.ProcessDirectory(in, output)
	}
	return proc.ProcessFile(in, outputFor(in, multi))
}

// outputFor 返回单个文档输入的报告路径
func outputFor(in string, multi bool) string {
	if output == "" || !multi {
		return output
	}
	return filepath.Join(output, filepath.Base(processor.ReportName(in)))
}
