package ports

import "net/http"

// HTTPClient is the transport the gateway status client sends requests on.
// *http.Client satisfies it; tests substitute a round-trip stub.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
