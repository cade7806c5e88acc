package middleware

import (
	"net/http"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// Transport is an http.RoundTripper that authenticates outgoing requests
// with the manager's access token. A 401 answer to an authenticated request
// runs the manager's expiry sequence; the response is returned unchanged.
type Transport struct {
	Manager *goAuthClient.Manager
	// Base performs the request. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// NewClient returns an http.Client using a Transport for m.
func NewClient(m *goAuthClient.Manager) *http.Client {
	return &http.Client{Transport: &Transport{Manager: m}}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	token := ""
	if t.Manager != nil && req.Header.Get("Authorization") == "" {
		token = t.Manager.AccessToken()
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if token != "" && resp.StatusCode == http.StatusUnauthorized {
		t.Manager.HandleSessionExpired("unauthorized")
	}
	return resp, nil
}
