// Package epubfix repairs ePub files so that they pass epubcheck.
//
// A repair is a loop: the archive is extracted into a temporary [Workspace],
// a list of textual [Rule] values is applied to the contained XHTML, OPF, NCX
// and CSS files, the workspace is repacked, and the result is handed to a
// [Validator]. The loop ends when the validator reports no errors, when no
// rule addresses the reported message codes, or when the iteration cap is
// reached.
//
// # Repairing a book
//
// Use [Fixer] with an [EpubCheck] validator:
//
//	f := &epubfix.Fixer{
//	    Validator: &epubfix.EpubCheck{Jar: "/opt/epubcheck/epubcheck.jar"},
//	    Rules:     epubfix.DefaultRules(epubfix.RuleOptions{}),
//	}
//	res, err := f.Fix(ctx, "book.epub", "book_fixed.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Passed(), len(res.Passes))
//
// A Fixer without a Validator applies every rule once and repacks the book.
//
// # Rules
//
// Each rule is an independent substitution (string in, string out) or a
// book-level fix that needs to see several files at once, such as dropping
// fragment identifiers that point at ids which do not exist. Every rule
// declares the epubcheck message codes it addresses; after the first pass
// only the rules matching the last report are re-applied. See [DefaultRules]
// for the full list and their order.
//
// # Validator output
//
// [ParseReport] reads epubcheck's plain-text output. Lines have the form
//
//	ERROR(RSC-005): book.epub/OEBPS/ch01.xhtml(12,40): Error while parsing file: ...
//
// and are turned into [Message] values with archive-internal paths.
//
// # Error Handling
//
// The package defines sentinel errors for common failure cases:
//   - [ErrDRMProtected] – the file is DRM encrypted and cannot be repaired
//   - [ErrInvalidEPub] – the archive has no locatable OPF package
//   - [ErrUnsafePath] – an archive entry escapes the extraction root
//   - [ErrValidatorNotFound] – the java binary or epubcheck jar is missing
//   - [ErrValidatorFailed] – epubcheck exited abnormally without a report
//   - [ErrNoProgress] – a pass changed nothing or no rule matches the report
//   - [ErrIterationLimit] – the book is still invalid after the last pass
package epubfix
