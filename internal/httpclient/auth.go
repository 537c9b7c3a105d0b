package httpclient

import "net/http"

// AuthProvider decorates outgoing requests with credentials.
type AuthProvider interface {
	Apply(req *http.Request) error
}

// BearerTokenAuth sets "Authorization: Bearer <token>". Used for webhook
// receivers that require a shared secret.
type BearerTokenAuth struct {
	Token string
}

func (a *BearerTokenAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// APIKeyAuth sets a fixed header, as hosted mirror-node providers expect.
type APIKeyAuth struct {
	Header string
	Key    string
}

func (a *APIKeyAuth) Apply(req *http.Request) error {
	req.Header.Set(a.Header, a.Key)
	return nil
}
