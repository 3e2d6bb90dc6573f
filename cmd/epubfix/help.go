package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: epubfix <command> [flags] [args]")
	fmt.Fprintln(w, "       epubfix <book.epub>... [flags]     (same as 'epubfix fix')")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  fix        Repair ePub files until epubcheck accepts them")
	fmt.Fprintln(w, "  check      Run epubcheck and print its messages")
	fmt.Fprintln(w, "  rules      List the repair rules")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'epubfix help <command>' for details on a specific command.")
}

// printFixUsage prints usage for the fix command.
func printFixUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: epubfix fix <book.epub|dir>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Apply repair rules, repack, and validate with epubcheck, repeating")
	fmt.Fprintln(w, "until the book is valid or no rule makes progress.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input/Output:")
	fmt.Fprintln(w, "  -o, --output <path>        Output file, or directory for several books")
	fmt.Fprintln(w, "      --suffix <s>           Suffix for output names (default: _fixed)")
	fmt.Fprintln(w, "  -w, --workers <n>          Books repaired in parallel (0 = auto)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Repair:")
	fmt.Fprintln(w, "  -n, --max-iterations <n>   Maximum fix/validate passes (default: 5)")
	fmt.Fprintln(w, "      --disable <rule>       Skip a rule (repeatable, comma-separated)")
	fmt.Fprintln(w, "      --language <tag>       dc:language added when missing (default: en)")
	fmt.Fprintln(w, "      --stylesheet <file>    CSS used for missing stylesheets")
	fmt.Fprintln(w, "      --skip-valid           Copy books that already validate")
	fmt.Fprintln(w, "      --no-validate          Apply every rule once, skip epubcheck")
	fmt.Fprintln(w)
	printValidatorUsage(w)
	printCommonUsage(w)
}

// printCheckUsage prints usage for the check command.
func printCheckUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: epubfix check <book.epub|dir>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Validate books with epubcheck without modifying them.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -w, --workers <n>          Books checked in parallel (0 = auto)")
	fmt.Fprintln(w)
	printValidatorUsage(w)
	printCommonUsage(w)
}

// printRulesUsage prints usage for the rules command.
func printRulesUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: epubfix rules")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "List repair rules in the order they are applied, with the epubcheck")
	fmt.Fprintln(w, "codes each one addresses.")
}

// printConfigUsage prints usage for the config command.
func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: epubfix config [-c <name|path>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the configuration that results from defaults, the config file,")
	fmt.Fprintln(w, "and EPUBFIX_* environment variables.")
}

func printValidatorUsage(w io.Writer) {
	fmt.Fprintln(w, "Validator:")
	fmt.Fprintln(w, "      --jar <path>           Path to epubcheck.jar")
	fmt.Fprintln(w, "      --java <path>          Java executable (default: java)")
	fmt.Fprintln(w, "  -t, --timeout <d>          Timeout per epubcheck run (e.g., 90s, 2m)")
	fmt.Fprintln(w)
}

func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -c, --config <name>        Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet                Only show errors")
	fmt.Fprintln(w, "  -v, --verbose              Show changes and all validator messages")
	fmt.Fprintln(w, "      --log-format <f>       Log format: text, json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  EPUBFIX_CONFIG, EPUBFIX_JAR, EPUBFIX_JAVA, EPUBFIX_TIMEOUT,")
	fmt.Fprintln(w, "  EPUBFIX_MAX_ITERATIONS, EPUBFIX_WORKERS, EPUBFIX_LOG_LEVEL, EPUBFIX_LOG_FORMAT")
}

// runHelp prints help for a command and returns the exit code.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}
	switch args[0] {
	case "fix":
		printFixUsage(env.Stdout)
	case "check":
		printCheckUsage(env.Stdout)
	case "rules":
		printRulesUsage(env.Stdout)
	case "config":
		printConfigUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: epubfix version")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: epubfix help [command]")
	default:
		fmt.Fprintf(env.Stderr, "epubfix: unknown command %q\n\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
