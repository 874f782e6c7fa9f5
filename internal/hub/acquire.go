package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ProgressFunc receives acquisition progress in the range (0, 1]. It is
// invoked synchronously once per required file, in increasing order,
// terminating at 1.0.
type ProgressFunc func(fraction float64)

// Acquire fetches the required file set for id into dest.
//
// If force is true, any existing dest tree is deleted first. If force is
// false and the marker file already exists, Acquire reports completion with
// a single onProgress(1.0) call and performs no I/O. Otherwise each missing
// file is fetched to a temporary file and atomically renamed into place;
// files already present are skipped. Any non-2xx response aborts with a
// DownloadFailed error naming the file and status, leaving dest as-is for
// retry or force-clean. Cancellation is honored between files.
func (c *Client) Acquire(ctx context.Context, id, dest string, force bool, onProgress ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	if force {
		if err := os.RemoveAll(dest); err != nil {
			return downloadFailedError{file: dest, reason: fmt.Sprintf("clean destination: %v", err)}
		}
	}
	marker := filepath.Join(dest, MarkerFile)
	if !force {
		if _, err := os.Stat(marker); err == nil {
			onProgress(1.0)
			return nil
		}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return downloadFailedError{file: dest, reason: fmt.Sprintf("create destination: %v", err)}
	}

	total := len(RequiredFiles)
	for i, file := range RequiredFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(dest, file)
		if _, err := os.Stat(target); err != nil {
			if err := c.fetchFile(ctx, id, file, target); err != nil {
				return err
			}
		}
		onProgress(float64(i+1) / float64(total))
	}
	return nil
}

// fetchFile downloads a single file to a temp path in the same directory and
// renames it into place, so target is either fully present or absent.
func (c *Client) fetchFile(ctx context.Context, id, file, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(id, file), nil)
	if err != nil {
		return downloadFailedError{file: file, reason: err.Error()}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return downloadFailedError{file: file, reason: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return downloadFailedError{file: file, reason: "unexpected status " + resp.Status}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return downloadFailedError{file: file, reason: fmt.Sprintf("create temp: %v", err)}
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return downloadFailedError{file: file, reason: fmt.Sprintf("write: %v", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return downloadFailedError{file: file, reason: fmt.Sprintf("close: %v", err)}
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return downloadFailedError{file: file, reason: fmt.Sprintf("rename: %v", err)}
	}
	return nil
}
