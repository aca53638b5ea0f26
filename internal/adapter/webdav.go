package adapter

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/models"
)

type webDAVAdapter struct {
	client *resty.Client

	// requestRoot is prepended to object paths on outgoing requests; it is
	// relative to the client's base URL. rootPath is the server-absolute
	// form (endpoint path included) used to match hrefs in multistatus
	// responses, which servers return absolute.
	requestRoot string
	rootPath    string

	maxFileSize int64
	logger      *logger.Logger

	mu        sync.Mutex
	knownDirs map[string]bool
}

// NewWebDAV builds a WebDAV adapter from the given sync configuration.
// All object paths are resolved under cfg.RemotePath on the endpoint.
func NewWebDAV(cfg models.SyncConfig, log *logger.Logger) (RemoteAdapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("webdav adapter: empty endpoint")
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("webdav adapter: parse endpoint: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(timeout)
	if cfg.Username != "" {
		cli.SetBasicAuth(cfg.Username, cfg.Password)
	}

	return &webDAVAdapter{
		client:      cli,
		requestRoot: path.Join("/", cfg.RemotePath),
		rootPath:    path.Join("/", base.Path, cfg.RemotePath),
		maxFileSize: cfg.MaxFileSize,
		logger:      log,
		knownDirs:   map[string]bool{},
	}, nil
}

func (w *webDAVAdapter) Upload(ctx context.Context, p string, content []byte, prevRemoteHash string) (string, error) {
	if w.maxFileSize > 0 && int64(len(content)) > w.maxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrSizeLimit, p, len(content), w.maxFileSize)
	}
	if err := w.ensureCollections(ctx, path.Dir(p)); err != nil {
		return "", err
	}

	req := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(content)
	if prevRemoteHash == "" {
		req.SetHeader("If-None-Match", "*")
	} else {
		req.SetHeader("If-Match", quoteETag(prevRemoteHash))
	}

	resp, err := req.Put(w.objectURL(p))
	if err != nil {
		return "", &TransientError{Op: "upload " + p, Err: err}
	}
	if err = mapWebDAVError("upload "+p, resp); err != nil {
		return "", err
	}

	if etag := normalizeETag(resp.Header().Get("ETag")); etag != "" {
		return etag, nil
	}
	// Some servers omit the ETag on PUT. Fall back to a content hash so the
	// stored remote hash is still stable for unchanged content.
	w.logger.Debug().Str("path", p).Msg("server returned no ETag on PUT, using content hash")
	return contentHash(content), nil
}

func (w *webDAVAdapter) Download(ctx context.Context, p string) ([]byte, error) {
	resp, err := w.client.R().SetContext(ctx).Get(w.objectURL(p))
	if err != nil {
		return nil, &TransientError{Op: "download " + p, Err: err}
	}
	if err = mapWebDAVError("download "+p, resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (w *webDAVAdapter) List(ctx context.Context, prefix string) ([]models.RemoteObject, error) {
	var objects []models.RemoteObject

	// Depth: infinity is commonly disabled, so walk collections one
	// level at a time.
	queue := []string{path.Join("/", prefix)}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		ms, err := w.propfind(ctx, dir)
		if err != nil {
			// A missing collection simply has nothing to list yet.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}

		for _, r := range ms.Responses {
			rel, ok := w.relativePath(r.Href)
			if !ok || rel == strings.TrimPrefix(dir, "/") {
				continue
			}
			prop := r.firstProp()
			if prop.isCollection() {
				queue = append(queue, path.Join("/", rel))
				continue
			}
			objects = append(objects, models.RemoteObject{
				Path:       rel,
				Hash:       normalizeETag(prop.ETag),
				ModifiedAt: parseHTTPDate(prop.LastModified),
				Size:       prop.ContentLength,
			})
		}
	}

	w.logger.Debug().Str("prefix", prefix).Int("objects", len(objects)).Msg("listed remote objects")
	return objects, nil
}

func (w *webDAVAdapter) Delete(ctx context.Context, p string) error {
	resp, err := w.client.R().SetContext(ctx).Delete(w.objectURL(p))
	if err != nil {
		return &TransientError{Op: "delete " + p, Err: err}
	}
	// A missing object is the desired end state.
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return mapWebDAVError("delete "+p, resp)
}

func (w *webDAVAdapter) Probe(ctx context.Context) error {
	resp, err := w.client.R().SetContext(ctx).Execute(http.MethodOptions, escapePath(w.requestRoot))
	if err != nil {
		return &TransientError{Op: "probe", Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		// The root collection may not exist yet; reachability and
		// credentials are what the probe verifies.
		return nil
	}
	return mapWebDAVError("probe", resp)
}

// ──────────────────────────── internals ────────────────────────────

func (w *webDAVAdapter) objectURL(p string) string {
	return escapePath(path.Join(w.requestRoot, p))
}

// ensureCollections issues MKCOL for every ancestor of dir, outermost
// first. Already-existing collections answer 405 and are remembered.
func (w *webDAVAdapter) ensureCollections(ctx context.Context, dir string) error {
	dir = path.Join("/", dir)

	var ancestors []string
	for d := dir; d != "/" && d != "."; d = path.Dir(d) {
		ancestors = append([]string{d}, ancestors...)
	}

	for _, d := range ancestors {
		w.mu.Lock()
		known := w.knownDirs[d]
		w.mu.Unlock()
		if known {
			continue
		}

		resp, err := w.client.R().SetContext(ctx).Execute("MKCOL", escapePath(path.Join(w.requestRoot, d)))
		if err != nil {
			return &TransientError{Op: "mkcol " + d, Err: err}
		}
		switch resp.StatusCode() {
		case http.StatusCreated, http.StatusMethodNotAllowed, http.StatusMovedPermanently:
			w.mu.Lock()
			w.knownDirs[d] = true
			w.mu.Unlock()
		default:
			if err = mapWebDAVError("mkcol "+d, resp); err != nil {
				return err
			}
		}
	}
	return nil
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getetag/>
    <d:getlastmodified/>
    <d:getcontentlength/>
  </d:prop>
</d:propfind>`

func (w *webDAVAdapter) propfind(ctx context.Context, dir string) (*multistatus, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Depth", "1").
		SetHeader("Content-Type", "application/xml").
		SetBody(propfindBody).
		Execute("PROPFIND", escapePath(path.Join(w.requestRoot, dir)))
	if err != nil {
		return nil, &TransientError{Op: "list " + dir, Err: err}
	}
	if err = mapWebDAVError("list "+dir, resp); err != nil {
		return nil, err
	}

	var ms multistatus
	if err = xml.Unmarshal(resp.Body(), &ms); err != nil {
		return nil, fmt.Errorf("decode propfind response for %s: %w", dir, err)
	}
	return &ms, nil
}

// relativePath converts an href from a multistatus response into a path
// relative to the configured remote root. Hrefs arrive either as absolute
// paths or, from some servers, as full URLs.
func (w *webDAVAdapter) relativePath(href string) (string, bool) {
	if strings.Contains(href, "://") {
		if u, err := url.Parse(href); err == nil {
			href = u.EscapedPath()
		}
	}

	unescaped, err := url.PathUnescape(href)
	if err != nil {
		unescaped = href
	}
	unescaped = strings.TrimSuffix(unescaped, "/")

	root := strings.TrimSuffix(w.rootPath, "/")
	if !strings.HasPrefix(unescaped, root) {
		return "", false
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(unescaped, root), "/")
	if rel == "" {
		return "", false
	}
	return rel, true
}

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string        `xml:"href"`
	Propstats []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Prop davProp `xml:"prop"`
}

type davProp struct {
	ResourceType struct {
		Collection *struct{} `xml:"collection"`
	} `xml:"resourcetype"`
	ETag          string `xml:"getetag"`
	LastModified  string `xml:"getlastmodified"`
	ContentLength int64  `xml:"getcontentlength"`
}

func (r davResponse) firstProp() davProp {
	if len(r.Propstats) == 0 {
		return davProp{}
	}
	return r.Propstats[0].Prop
}

func (p davProp) isCollection() bool {
	return p.ResourceType.Collection != nil
}

func mapWebDAVError(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusBadRequest {
		return nil
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrAuthentication)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case code == http.StatusPreconditionFailed:
		return fmt.Errorf("%s: %w", op, ErrRemoteConflict)
	case code == http.StatusRequestEntityTooLarge || code == http.StatusInsufficientStorage:
		return fmt.Errorf("%s: %w", op, ErrSizeLimit)
	case code >= http.StatusInternalServerError || code == http.StatusTooManyRequests:
		return &TransientError{Op: op, Err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(resp.Body())))}
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(code)
	}
	return fmt.Errorf("%s: http %d: %s", op, code, body)
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func normalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func parseHTTPDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{http.TimeFormat, time.RFC1123Z, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
