package gdrive

import (
	"context"
	"crypto/md5" //nolint:gosec // md5Checksum emulation.
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type fakeFile struct {
	ID       string
	Name     string
	Parent   string
	MimeType string
	Data     []byte
	Created  time.Time
	Modified time.Time
}

// fakeDrive is an in-memory Drive v3 REST server covering the calls the
// backend makes: files.list, files.create, files.update, files.get with
// alt=media and files.delete.
type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]*fakeFile
	nextID int

	// failures is consumed one entry per request before normal handling; a
	// non-zero entry is returned as an API error with that status.
	failures []int
	// reason is the error reason attached to injected failures.
	reason string

	requests int
}

var (
	qName      = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	qParent    = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	qMimeEq    = regexp.MustCompile(`mimeType = '([^']*)'`)
	qMimeNotEq = regexp.MustCompile(`mimeType != '([^']*)'`)
)

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: make(map[string]*fakeFile)}
}

// newTestBackend starts a fake server and returns a backend talking to it.
func newTestBackend(t *testing.T, fd *fakeDrive, opts ...Option) *Backend {
	t.Helper()
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	opts = append([]Option{WithRetry(3, time.Millisecond)}, opts...)
	return New(svc, opts...)
}

func (fd *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.requests++

	if len(fd.failures) > 0 {
		code := fd.failures[0]
		fd.failures = fd.failures[1:]
		if code != 0 {
			writeError(w, code, fd.reason)
			return
		}
	}

	p := r.URL.Path
	p = strings.TrimPrefix(p, "/upload")
	p = strings.TrimPrefix(p, "/drive/v3")

	switch {
	case p == "/files" && r.Method == http.MethodGet:
		fd.list(w, r)
	case p == "/files" && r.Method == http.MethodPost:
		fd.create(w, r)
	case strings.HasPrefix(p, "/files/"):
		id := strings.TrimPrefix(p, "/files/")
		f, ok := fd.files[id]
		if !ok {
			writeError(w, http.StatusNotFound, "notFound")
			return
		}
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("alt") == "media" {
				_, _ = w.Write(f.Data)
				return
			}
			writeJSON(w, toDrive(f))
		case http.MethodPatch:
			_, data, err := readBody(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "badRequest")
				return
			}
			f.Data = data
			f.Modified = time.Now().UTC()
			writeJSON(w, toDrive(f))
		case http.MethodDelete:
			delete(fd.files, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "badRequest")
		}
	default:
		writeError(w, http.StatusNotFound, "notFound")
	}
}

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var name, parent string
	if m := qName.FindStringSubmatch(q); m != nil {
		name = unescape(m[1])
	}
	if m := qParent.FindStringSubmatch(q); m != nil {
		parent = unescape(m[1])
	}
	mimeEq := qMimeEq.FindStringSubmatch(q)
	mimeNotEq := qMimeNotEq.FindStringSubmatch(q)

	var out []*drive.File
	for _, f := range fd.files {
		if name != "" && f.Name != name {
			continue
		}
		if parent != "" && f.Parent != parent {
			continue
		}
		if mimeEq != nil && f.MimeType != mimeEq[1] {
			continue
		}
		if mimeNotEq != nil && f.MimeType == mimeNotEq[1] {
			continue
		}
		out = append(out, toDrive(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, &drive.FileList{Files: out})
}

func (fd *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	meta, data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "badRequest")
		return
	}
	fd.nextID++
	f := &fakeFile{
		ID:       fmt.Sprintf("id-%d", fd.nextID),
		Name:     meta.Name,
		MimeType: meta.MimeType,
		Data:     data,
		Created:  time.Now().UTC(),
		Modified: time.Now().UTC(),
	}
	if len(meta.Parents) > 0 {
		f.Parent = meta.Parents[0]
	}
	fd.files[f.ID] = f
	writeJSON(w, toDrive(f))
}

// readBody decodes either a plain JSON metadata body or a multipart/related
// upload carrying metadata and media.
func readBody(r *http.Request) (*drive.File, []byte, error) {
	meta := &drive.File{}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, err
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, meta); err != nil {
				return nil, nil, err
			}
		}
		return meta, nil, nil
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	if err := json.NewDecoder(part).Decode(meta); err != nil {
		return nil, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

func toDrive(f *fakeFile) *drive.File {
	sum := md5.Sum(f.Data) //nolint:gosec // see import
	return &drive.File{
		Id:           f.ID,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Parents:      []string{f.Parent},
		Size:         int64(len(f.Data)),
		CreatedTime:  f.Created.Format(time.RFC3339Nano),
		ModifiedTime: f.Modified.Format(time.RFC3339Nano),
		Md5Checksum:  hex.EncodeToString(sum[:]),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": fmt.Sprintf("injected %d %s", code, reason),
			"errors": []map[string]any{
				{"reason": reason, "message": reason, "domain": "usageLimits"},
			},
		},
	})
}

func unescape(s string) string {
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(s)
}
