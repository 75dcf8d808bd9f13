// Package httputil provides retry helpers for HTTP clients.
//
// [Retry] re-runs an operation while it fails with a [RetryableError],
// doubling the delay between attempts. Callers decide what is transient;
// the usual choice is network errors, 5xx responses and 429 responses:
//
//	err := httputil.Retry(ctx, httputil.DefaultPolicy(), func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    defer resp.Body.Close()
//	    if resp.StatusCode >= 500 {
//	        return &httputil.RetryableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
//	    }
//	    return nil
//	})
//
// A RetryableError may carry the server's Retry-After hint, which replaces
// the computed delay for that attempt when it is longer.
package httputil
