package noderunner

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// secretPattern matches {{{secret::KEY}}} placeholders in a node's source
// code. Resolution is a single pass: the value substituted in for KEY is
// never itself re-scanned for further placeholders.
var secretPattern = regexp.MustCompile(`\{\{\{secret::([^}]*)\}\}\}`)

// SecretResolver preprocesses a node's code before dispatch, resolving
// every {{{secret::KEY}}} placeholder against the Secret Manager.
type SecretResolver struct {
	baseURL string
	client  *http.Client
}

// NewSecretResolver builds a resolver pointed at the Secret Manager's
// base URL (spec.md §6.7's secret_manager_url).
func NewSecretResolver(baseURL string) *SecretResolver {
	return &SecretResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type secretResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Resolve substitutes every placeholder in s. The whole operation fails
// fast on the first unresolvable key: a non-200 response, a missing value
// field, or an empty value (spec.md §4.5).
func (r *SecretResolver) Resolve(s string) (string, error) {
	var resolveErr error
	out := secretPattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		key := secretPattern.FindStringSubmatch(match)[1]
		value, err := r.fetch(key)
		if err != nil {
			resolveErr = err
			return match
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

func (r *SecretResolver) fetch(key string) (string, error) {
	url := fmt.Sprintf("%s/get/%s", r.baseURL, key)
	resp, err := r.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrSecretResolution, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %q: status %d", ErrSecretResolution, key, resp.StatusCode)
	}

	var body secretResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %q: decode: %v", ErrSecretResolution, key, err)
	}
	if body.Value == "" {
		return "", fmt.Errorf("%w: %q: empty value", ErrSecretResolution, key)
	}
	return body.Value, nil
}
