// Package archive packages a plan corpus into a deflate compressed zip
// archive, validates archives, and extracts archive entries safely.
//
// Archives are laid out category first:
//
//	Day/20251019.md
//	Week/20251019.md
//	Month/202510.md
//	Year/2025.md
//
// Entries whose category segment is preceded by other segments (as produced
// by exports that included the corpus root, e.g. "data/Day/20251019.md") are
// accepted and anchored at the category segment on extraction.
//
// The content root is a directory inside a go-billy filesystem, so the same
// code serves the host filesystem and in-memory filesystems used in tests.
package archive
