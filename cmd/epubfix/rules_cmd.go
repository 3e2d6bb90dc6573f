package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/simp-lee/epubfix"
	"github.com/simp-lee/epubfix/internal/yamlutil"
)

// runRules lists the built-in rules in application order.
func runRules(args []string, env *Environment) error {
	fs := newFlagSet("rules", env.Stderr, printRulesUsage)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: rules takes no arguments", ErrUsage)
	}

	tw := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCODES\tDESCRIPTION")
	for _, r := range epubfix.DefaultRules(epubfix.RuleOptions{}) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name(), strings.Join(r.Codes(), ","), r.Description())
	}
	return tw.Flush()
}

// runConfig prints the effective configuration (defaults, config file and
// environment merged) as YAML.
func runConfig(args []string, env *Environment) error {
	fs := newFlagSet("config", env.Stderr, printConfigUsage)
	var configFlag string
	fs.StringVarP(&configFlag, "config", "c", "", "config file name or path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig(env, configFlag)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	out, err := yamlutil.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = env.Stdout.Write(out)
	return err
}
