package corpus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/versereader/core/errors"
)

// DefaultFetchTimeout bounds a single corpus download.
const DefaultFetchTimeout = 30 * time.Second

// maxDocumentBytes caps a decoded corpus document.
const maxDocumentBytes = 64 << 20

var (
	versionPattern = regexp.MustCompile(`^[a-z0-9_-]{1,16}$`)
	xzMagic        = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
)

// Fetcher retrieves the whole XML document of a translation.
type Fetcher interface {
	Fetch(ctx context.Context, version string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, version string) ([]byte, error)

// Fetch calls f(ctx, version).
func (f FetcherFunc) Fetch(ctx context.Context, version string) ([]byte, error) {
	return f(ctx, version)
}

// ValidateVersion checks that a translation code is safe to use in a path.
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return errors.NewValidation("version", fmt.Sprintf("invalid translation code %q", version))
	}
	return nil
}

// HTTPFetcher downloads {BaseURL}/{version}.xml.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher creates an HTTPFetcher with the default timeout.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  http.DefaultClient,
		Timeout: DefaultFetchTimeout,
	}
}

// URL returns the document location for a translation.
func (f *HTTPFetcher) URL(version string) string {
	return strings.TrimRight(f.BaseURL, "/") + "/" + version + ".xml"
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, version string) ([]byte, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := f.URL(version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errors.CorpusFetchError{Version: version, URL: url, Err: err}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &errors.CorpusFetchError{Version: version, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errors.CorpusFetchError{Version: version, URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, &errors.CorpusFetchError{Version: version, URL: url, Err: err}
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, &errors.CorpusFetchError{Version: version, URL: url, Err: err}
	}
	return doc, nil
}

// DirFetcher reads {Root}/{version}.xml, falling back to {version}.xml.xz.
type DirFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (f *DirFetcher) Fetch(ctx context.Context, version string) ([]byte, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &errors.CorpusFetchError{Version: version, Err: err}
	}

	var lastErr error
	for _, name := range []string{version + ".xml", version + ".xml.xz"} {
		path := filepath.Join(f.Root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, &errors.CorpusFetchError{Version: version, URL: path, Err: err}
		}
		return doc, nil
	}
	return nil, &errors.CorpusFetchError{Version: version, URL: f.Root, Err: lastErr}
}

// decodeDocument transparently decompresses xz payloads.
func decodeDocument(data []byte) ([]byte, error) {
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	if !bytes.HasPrefix(data, xzMagic) {
		return data, nil
	}

	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening xz stream: %w", err)
	}
	out, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing xz stream: %w", err)
	}
	if len(out) > maxDocumentBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	return out, nil
}
