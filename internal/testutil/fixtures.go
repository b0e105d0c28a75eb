package testutil

import (
	"bytes"
	"io"
	iofs "io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"
)

// Entry is one archive entry. Names are written verbatim so tests can craft
// hostile archives.
type Entry struct {
	Name    string
	Content string
}

// SampleCorpus is a small valid corpus covering all four categories.
func SampleCorpus() map[string]string {
	return map[string]string{
		"Day/20251019.md":  "# Sunday\n- rest\n",
		"Day/20251020.md":  "# Monday\n- standup\n- review\n",
		"Week/20251019.md": "# Week 42\n",
		"Month/202510.md":  "# October\n",
		"Year/2025.md":     "# 2025\n- ship planvault\n",
	}
}

// BuildZip returns a deflate compressed archive holding entries in order.
// Names ending in "/" are written as directory entries.
func BuildZip(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	return BuildZipWithComment(t, "", entries...)
}

// BuildZipWithComment is BuildZip with an archive comment, which tests use
// to pad an archive to an exact size.
func BuildZipWithComment(t *testing.T, comment string, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if strings.HasSuffix(e.Name, "/") {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: method})
		if err != nil {
			t.Fatalf("CreateHeader(%q) failed: %v", e.Name, err)
		}
		if e.Content != "" {
			if _, err := io.WriteString(w, e.Content); err != nil {
				t.Fatalf("write %q failed: %v", e.Name, err)
			}
		}
	}
	if comment != "" {
		if err := zw.SetComment(comment); err != nil {
			t.Fatalf("SetComment failed: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close failed: %v", err)
	}
	return buf.Bytes()
}

// Entries converts a corpus map into sorted archive entries, optionally
// placing them below prefix.
func Entries(corpus map[string]string, prefix string) []Entry {
	names := make([]string, 0, len(corpus))
	for name := range corpus {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		out = append(out, Entry{Name: path.Join(prefix, name), Content: corpus[name]})
	}
	return out
}

// WriteCorpus writes corpus below root in fsys.
func WriteCorpus(t *testing.T, fsys billy.Filesystem, root string, corpus map[string]string) {
	t.Helper()
	for name, content := range corpus {
		p := path.Join(root, name)
		if err := fsys.MkdirAll(path.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll(%q) failed: %v", path.Dir(p), err)
		}
		if err := util.WriteFile(fsys, p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%q) failed: %v", p, err)
		}
	}
}

// ReadCorpus returns every regular file below root as a map from slash
// separated relative path to content. A missing root yields nil.
func ReadCorpus(t *testing.T, fsys billy.Filesystem, root string) map[string]string {
	t.Helper()
	if _, err := fsys.Stat(root); err != nil {
		return nil
	}

	out := map[string]string{}
	prefix := strings.TrimSuffix(filepath.ToSlash(root), "/") + "/"
	err := util.Walk(fsys, root, func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := util.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		out[strings.TrimPrefix(filepath.ToSlash(p), prefix)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %q failed: %v", root, err)
	}
	return out
}

// ZipNames lists the file entry names of an archive.
func ZipNames(t *testing.T, data []byte) []string {
	t.Helper()
	files, _ := zipEntries(t, data)
	return files
}

// ZipDirs lists the directory entry names of an archive.
func ZipDirs(t *testing.T, data []byte) []string {
	t.Helper()
	_, dirs := zipEntries(t, data)
	return dirs
}

func zipEntries(t *testing.T, data []byte) (files, dirs []string) {
	t.Helper()
	zr, _ := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if zr == nil {
		t.Fatalf("zip.NewReader failed")
	}
	files, dirs = []string{}, []string{}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			dirs = append(dirs, f.Name)
			continue
		}
		files = append(files, f.Name)
	}
	return files, dirs
}
