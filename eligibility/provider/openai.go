package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// ClientConfig selects how the OpenAI client reaches the model: the public API, a gateway exposing the
// same API under BaseURL, or an Azure OpenAI deployment.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	AzureEndpoint   string
	AzureAPIVersion string
}

func (c ClientConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("missing API key")
	}
	if c.AzureEndpoint != "" && c.AzureAPIVersion == "" {
		return errors.New("azure endpoint requires an API version")
	}
	if c.AzureEndpoint != "" && c.BaseURL != "" {
		return errors.New("use only one of base URL or azure endpoint")
	}
	return nil
}

// RequestOptions builds the client options for c.
func (c ClientConfig) RequestOptions() []option.RequestOption {
	if c.AzureEndpoint != "" {
		return []option.RequestOption{
			azure.WithEndpoint(c.AzureEndpoint, c.AzureAPIVersion),
			azure.WithAPIKey(c.APIKey),
		}
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return opts
}

func NewClient(c ClientConfig) (*openai.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	client := openai.NewClient(c.RequestOptions()...)
	return &client, nil
}

// RetryPolicy lists how long to wait before each retry. The number of attempts is one more than the
// longer schedule.
type RetryPolicy struct {
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
}

// DefaultRetryPolicy backs off past a one-minute rate-limit window and retries server errors quickly.
var DefaultRetryPolicy = RetryPolicy{
	RateLimitWaits:   []time.Duration{65 * time.Second, 100 * time.Second},
	ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second},
}

func (p RetryPolicy) attempts() int {
	n := len(p.RateLimitWaits)
	if len(p.ServerErrorWaits) > n {
		n = len(p.ServerErrorWaits)
	}
	return n + 1
}

// ResponseCreator is the subset of the Responses service used here.
type ResponseCreator interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// CallWithPolicy creates a response, retrying rate-limit and server errors per policy. Waits stop early
// when ctx is done.
func CallWithPolicy(ctx context.Context, svc ResponseCreator, params responses.ResponseNewParams, policy RetryPolicy) (*responses.Response, error) {
	attempts := policy.attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := svc.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var waits []time.Duration
		switch classify(err) {
		case failureRateLimited:
			waits = policy.RateLimitWaits
		case failureServer:
			waits = policy.ServerErrorWaits
		default:
			return nil, err
		}
		if attempt >= len(waits) {
			return nil, err
		}
		if err := sleep(ctx, waits[attempt]); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type failure int

const (
	failurePermanent failure = iota
	failureRateLimited
	failureServer
)

// classify prefers the API status code and falls back to the message for errors raised by gateways
// that do not return an OpenAI error body.
func classify(err error) failure {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return failureRateLimited
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return failureServer
		}
		return failurePermanent
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return failureRateLimited
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"),
		strings.Contains(msg, "internal server error"), strings.Contains(msg, "server_error"):
		return failureServer
	}
	return failurePermanent
}

// GenerateSchema reflects T into a strict structured-output schema: every object closes
// additionalProperties and lists all of its properties as required.
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("GenerateSchema: marshal: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		return nil, fmt.Errorf("GenerateSchema: unmarshal: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	makeStrict(schema)
	return schema, nil
}

// MustGenerateSchema is GenerateSchema for package-level schema variables.
func MustGenerateSchema[T any]() map[string]any {
	schema, err := GenerateSchema[T]()
	if err != nil {
		panic(err)
	}
	return schema
}

func makeStrict(node map[string]any) {
	props, _ := node["properties"].(map[string]any)
	if t, _ := node["type"].(string); t == "object" {
		node["additionalProperties"] = false
		if len(props) > 0 {
			node["required"] = slices.Sorted(maps.Keys(props))
		}
	}
	for _, p := range props {
		if child, ok := p.(map[string]any); ok {
			makeStrict(child)
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		makeStrict(items)
	}
}
