package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Get issues a GET through the source's client with its required request
// headers. Server-side errors are retried a few times; client errors are not.
func (r *Remote) Get(ctx context.Context, url string) (*http.Response, error) {
	return fetch(ctx, r.client, url, r.headers)
}

// DefaultGet issues a GET through the shared default client with no
// source-specific headers. Used for stub sources.
func DefaultGet(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return fetch(ctx, client, url, nil)
}

func fetch(ctx context.Context, client *http.Client, url string, headers http.Header) (*http.Response, error) {
	var resp *http.Response

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			for k, vals := range headers {
				for _, v := range vals {
					req.Header.Add(k, v)
				}
			}

			resp, err = client.Do(req)
			if err != nil {
				return err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				resp.Body.Close()
				return fmt.Errorf("GET %s: %s", url, resp.Status)
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return retry.Unrecoverable(fmt.Errorf("GET %s: %s", url, resp.Status))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
