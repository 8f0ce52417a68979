package metrics

import (
	"net/http"
	"strings"
	"time"
)

// RequestWatcher measures outgoing calls of a provider SDK by wrapping its transport.
type RequestWatcher struct {
	name string
	next http.RoundTripper
}

func NewRequestWatcher(name string) *RequestWatcher {
	return &RequestWatcher{
		name: name,
		next: http.DefaultTransport,
	}
}

func (m *RequestWatcher) RoundTrip(r *http.Request) (*http.Response, error) {
	var err error
	defer func(start time.Time) {
		CollectRequestsMetric(m.name, methodAlias(r), err, start)
	}(time.Now())

	resp, err := m.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// methodAlias keeps label cardinality low: "POST /v1/subscriptions/sub_123" becomes "post_subscriptions".
func methodAlias(r *http.Request) string {
	if alias := r.Header.Get("alias"); alias != "" {
		return alias
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	resource := parts[0]
	if len(parts) > 1 {
		resource = parts[1]
	}

	return strings.ToLower(r.Method) + "_" + resource
}
