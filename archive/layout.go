package archive

import (
	"path"
	"strings"

	"github.com/input-output-hk/planvault/plan"
)

// EntryRoot returns the leading directory shared by every entry of an
// archive written with its corpus-root folder ("data/Day/20250101.md"), or
// "" when entries start at the content root. A shared folder that is itself
// a category is never a root.
func EntryRoot(names []string) string {
	root := ""
	for _, name := range names {
		segs := plan.Segments(EntryTarget(name, ""))
		if len(segs) == 0 || segs[0] == "." {
			continue
		}
		if len(segs) == 1 && !strings.HasSuffix(name, "/") {
			return ""
		}
		switch {
		case root == "":
			root = segs[0]
		case segs[0] != root:
			return ""
		}
	}
	if _, ok := plan.ParseCategory(root); ok {
		return ""
	}
	return root
}

// EntryTarget maps an archive entry to its slash separated path below the
// content root, dropping root when the entry sits inside it.
func EntryTarget(name, root string) string {
	rel := strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, `\`, "/")), "./")
	if root != "" {
		rel = strings.TrimPrefix(rel, root+"/")
	}
	return rel
}

// DuplicateTargets returns the targets, in first-seen order, that more than
// one .md entry of names resolves to.
func DuplicateTargets(names []string) []string {
	root := EntryRoot(names)
	seen := make(map[string]int, len(names))
	var dups []string
	for _, name := range names {
		if strings.HasSuffix(name, "/") || path.Ext(name) != plan.Ext {
			continue
		}
		target := EntryTarget(name, root)
		seen[target]++
		if seen[target] == 2 {
			dups = append(dups, target)
		}
	}
	return dups
}
