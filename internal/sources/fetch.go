package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// FetchSpec names the remote sources and where their copies cache.
type FetchSpec struct {
	TreatyURL string
	AidURL    string
	WBBaseURL string
	WBPerSec  float64 // API request budget

	RawDir  string
	YearMin int
	YearMax int

	Log *slog.Logger
}

// FetchAll ensures a cached copy of every remote source: the treaty status
// page, the CRS extract, and the two World Bank indicator fetches. Cache-if-
// absent and at-most-once; any failure is immediately fatal to the run, and
// nothing retries.
func FetchAll(ctx context.Context, spec FetchSpec) error {
	if err := os.MkdirAll(spec.RawDir, 0o755); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	treaty := filepath.Join(spec.RawDir, FileTreaty)
	if err := ensureFile(treaty, spec.Log, func() error {
		return fetchTreatyPage(ctx, spec.TreatyURL, treaty)
	}); err != nil {
		return fmt.Errorf("fetch treaty page: %w", err)
	}

	aid := filepath.Join(spec.RawDir, FileAid)
	if err := ensureFile(aid, spec.Log, func() error {
		return downloadFile(ctx, spec.AidURL, aid)
	}); err != nil {
		return fmt.Errorf("fetch aid extract: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(spec.WBPerSec), 1)
	for _, ind := range []string{WBIndicatorGDP, WBIndicatorPop} {
		dest := filepath.Join(spec.RawDir, WBFile(ind))
		if err := ensureFile(dest, spec.Log, func() error {
			return fetchWorldBank(ctx, spec, ind, limiter, dest)
		}); err != nil {
			return fmt.Errorf("fetch indicator %s: %w", ind, err)
		}
	}
	return nil
}

// ensureFile runs fetch only when dest is absent. A partial file from a
// failed fetch is removed so the next run does not mistake it for a cache
// hit.
func ensureFile(dest string, log *slog.Logger, fetch func() error) error {
	if _, err := os.Stat(dest); err == nil {
		log.Debug("cache hit, skipping fetch", slog.String("file", filepath.Base(dest)))
		return nil
	}
	log.Info("fetching", slog.String("file", filepath.Base(dest)))
	if err := fetch(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// fetchTreatyPage renders the protocol status page in a headless browser
// (the participant table is script-rendered) and caches its HTML.
func fetchTreatyPage(ctx context.Context, url, dest string) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var page string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`table`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &page, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("render %s: %w", url, err)
	}
	return os.WriteFile(dest, []byte(page), 0o644)
}

func downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status for %s: %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write file %s: %w", dest, err)
	}
	return nil
}

// wbMeta is the first element of an API response pair.
type wbMeta struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// fetchWorldBank pages through one indicator for all countries in the panel
// year range and caches the merged [metadata, entries] response.
func fetchWorldBank(ctx context.Context, spec FetchSpec, indicator string, limiter *rate.Limiter, dest string) error {
	var meta json.RawMessage
	var entries []json.RawMessage

	for page := 1; ; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		url := fmt.Sprintf("%s/country/all/indicator/%s?format=json&date=%d:%d&per_page=1000&page=%d",
			spec.WBBaseURL, indicator, spec.YearMin, spec.YearMax, page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("request %s: %w", url, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("bad status for %s: %s", url, resp.Status)
		}

		var pair []json.RawMessage
		if err := json.Unmarshal(body, &pair); err != nil {
			return fmt.Errorf("decode %s: %w", url, err)
		}
		if len(pair) < 2 {
			return fmt.Errorf("%s: response has no entry array", url)
		}
		var m wbMeta
		if err := json.Unmarshal(pair[0], &m); err != nil {
			return fmt.Errorf("decode meta %s: %w", url, err)
		}
		var pageEntries []json.RawMessage
		if err := json.Unmarshal(pair[1], &pageEntries); err != nil {
			return fmt.Errorf("decode entries %s: %w", url, err)
		}

		meta = pair[0]
		entries = append(entries, pageEntries...)
		if page >= m.Pages {
			break
		}
	}

	merged, err := json.Marshal([]any{meta, entries})
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return os.WriteFile(dest, merged, 0o644)
}
