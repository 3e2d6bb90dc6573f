package epubfix

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// missingStylesheetsRule creates stub files for stylesheets that documents
// link to but the archive lacks, and declares referenced stylesheets that
// are missing from the manifest.
type missingStylesheetsRule struct {
	content string
}

func (r *missingStylesheetsRule) Name() string { return "missing-stylesheets" }
func (r *missingStylesheetsRule) Description() string {
	return "create stub CSS for linked but absent stylesheets and add them to the manifest"
}
func (r *missingStylesheetsRule) Codes() []string { return []string{"RSC-007", "RSC-008"} }

// Apply implements Rule.
func (r *missingStylesheetsRule) Apply(ws *Workspace) ([]Change, error) {
	var changes []Change

	referenced := make(map[string]bool)
	for _, doc := range ws.Paths(KindXHTML) {
		data, err := ws.ReadFile(doc)
		if err != nil {
			return changes, err
		}
		for _, tag := range linkTagPattern.FindAllString(string(data), -1) {
			href, ok := attrValue(tag, "href")
			if !ok || !isStylesheetHref(href) || hasURIScheme(href) {
				continue
			}
			target := resolveRelativePath(doc, stripQueryAndFragment(href))
			if target != "" {
				referenced[target] = true
			}
		}
	}

	targets := make([]string, 0, len(referenced))
	for t := range referenced {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, t := range targets {
		if ws.Exists(t) {
			continue
		}
		if err := ws.WriteFile(t, []byte(r.content)); err != nil {
			return changes, err
		}
		changes = append(changes, Change{Rule: r.Name(), Path: t, Note: "created stub"})
	}

	declared, err := r.declare(ws, targets)
	if err != nil {
		return changes, err
	}
	return append(changes, declared...), nil
}

// declare adds manifest items for the targets that the OPF does not list.
func (r *missingStylesheetsRule) declare(ws *Workspace, targets []string) ([]Change, error) {
	pkg, err := ws.loadPackage()
	if err != nil {
		return nil, nil
	}
	hrefs := pkg.manifestHrefs(ws.OPFPath())
	ids := pkg.manifestIDs()

	var items strings.Builder
	for _, t := range targets {
		if hrefs[ws.lookup(t)] || hrefs[t] {
			continue
		}
		id := uniqueID(ids, "css")
		ids[id] = true
		fmt.Fprintf(&items, `  <item id="%s" href="%s" media-type="text/css"/>`+"\n  ", id, relativeHref(ws.OPFPath(), ws.lookup(t)))
	}
	if items.Len() == 0 {
		return nil, nil
	}

	data, err := ws.ReadFile(ws.OPFPath())
	if err != nil {
		return nil, err
	}
	s := string(data)
	at := strings.LastIndex(s, "</manifest>")
	if at == -1 {
		return nil, nil
	}
	s = s[:at] + items.String() + s[at:]
	if err := ws.WriteFile(ws.OPFPath(), []byte(s)); err != nil {
		return nil, err
	}
	return []Change{{Rule: r.Name(), Path: ws.OPFPath(), Note: "declared stylesheets in manifest"}}, nil
}

// uniqueID returns prefix-N for the smallest N not present in ids.
func uniqueID(ids map[string]bool, prefix string) string {
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s-%d", prefix, n)
		if !ids[id] {
			return id
		}
	}
}

// stripQueryAndFragment removes any "?query" or "#fragment" suffix.
func stripQueryAndFragment(href string) string {
	if i := strings.IndexAny(href, "?#"); i != -1 {
		return href[:i]
	}
	return href
}

// fragmentLinkPattern matches href/src attributes whose value carries a fragment.
var fragmentLinkPattern = regexp.MustCompile(`(\s(?:href|src)\s*=\s*)("[^"#]*#[^"]*"|'[^'#]*#[^']*')`)

// fragmentIDsRule drops fragment identifiers that point at ids the target
// document does not define. Links to documents outside the workspace, or to
// non-XHTML resources, are left alone.
type fragmentIDsRule struct{}

func (fragmentIDsRule) Name() string { return "fragment-ids" }
func (fragmentIDsRule) Description() string {
	return "drop #fragment from links whose target document lacks that id"
}
func (fragmentIDsRule) Codes() []string { return []string{"RSC-012"} }

// Apply implements Rule.
func (r fragmentIDsRule) Apply(ws *Workspace) ([]Change, error) {
	index := make(map[string]map[string]bool)
	for _, doc := range ws.Paths(KindXHTML) {
		data, err := ws.ReadFile(doc)
		if err != nil {
			return nil, err
		}
		// A partial id set would drop valid fragments; links into a
		// document that cannot be scanned are left alone.
		ids, err := collectIDs(data)
		if err != nil {
			continue
		}
		index[doc] = ids
	}

	var changes []Change
	docs := append(ws.Paths(KindXHTML), ws.Paths(KindNCX)...)
	for _, doc := range docs {
		data, err := ws.ReadFile(doc)
		if err != nil {
			return changes, err
		}
		fixed := fragmentLinkPattern.ReplaceAllStringFunc(string(data), func(m string) string {
			sub := fragmentLinkPattern.FindStringSubmatch(m)
			quote := sub[2][:1]
			value := sub[2][1 : len(sub[2])-1]
			if repl, ok := r.resolve(ws, index, doc, value); ok {
				return sub[1] + quote + repl + quote
			}
			return m
		})
		if fixed == string(data) {
			continue
		}
		if err := ws.WriteFile(doc, []byte(fixed)); err != nil {
			return changes, err
		}
		changes = append(changes, Change{Rule: r.Name(), Path: doc})
	}
	return changes, nil
}

// resolve returns the replacement link value when the fragment of value
// does not exist in its target document.
func (fragmentIDsRule) resolve(ws *Workspace, index map[string]map[string]bool, doc, value string) (string, bool) {
	target, frag, _ := strings.Cut(value, "#")
	if hasURIScheme(target) || strings.HasPrefix(target, "//") {
		return "", false
	}

	targetPath := doc
	if target != "" {
		targetPath = ws.lookup(resolveRelativePath(doc, stripQueryAndFragment(target)))
	}
	ids, ok := index[targetPath]
	if !ok {
		return "", false
	}

	if decoded, err := url.PathUnescape(frag); err == nil {
		frag = decoded
	}
	if frag != "" && ids[frag] {
		return "", false
	}
	if target == "" {
		// A bare "#missing" has nothing left to point at but the document.
		return relativeHref(doc, doc), true
	}
	return target, true
}
