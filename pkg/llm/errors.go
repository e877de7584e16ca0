package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a provider failure for callers that map it to a response.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransient
	KindQuota
	KindAuth
	KindMalformed
	KindTimeout
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuota:
		return "quota"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	case KindTimeout:
		return "timeout"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

type Stage string

const (
	StageEmbedding  Stage = "embedding"
	StageGeneration Stage = "generation"
)

var (
	ErrNoProvider        = errors.New("no provider configured")
	ErrNonJSONResponse   = errors.New("provider returned a non-JSON response")
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ProviderError is a single failed attempt against one provider.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ChainError reports that every configured provider failed.
type ChainError struct {
	Failures []*ProviderError
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Failures))
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
		names[i] = f.Provider
	}
	return fmt.Sprintf("all providers failed [%s]: %s",
		strings.Join(names, ", "), strings.Join(parts, "; "))
}

// Kind picks the most actionable failure: quota, then auth, then timeout.
func (e *ChainError) Kind() ErrorKind {
	seen := make(map[ErrorKind]bool)
	for _, f := range e.Failures {
		seen[f.Kind] = true
	}
	for _, k := range []ErrorKind{KindQuota, KindAuth, KindTimeout} {
		if seen[k] {
			return k
		}
	}
	return KindTransient
}

func (e *ChainError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// StageError labels an error with the pipeline stage it came from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// DimensionError is returned when a provider emits a vector shorter than required.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, want %d", e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// KindOf reports the provider failure kind carried by err, or KindUnknown when
// err did not come from a provider.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrNoProvider) {
		return KindConfig
	}

	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.Kind()
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}

	return KindUnknown
}

// StageOf returns the stage label attached to err, if any.
func StageOf(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

var statusPattern = regexp.MustCompile(`status code:? (\d{3})`)

func classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrNonJSONResponse) || errors.Is(err, ErrMalformedResponse) {
		return KindMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.HTTPStatusCode, fmt.Sprintf("%v %s %s", apiErr.Code, apiErr.Type, apiErr.Message))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode < 300 {
			return KindMalformed
		}
		return kindForStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}

	return classifyMessage(err.Error())
}

func kindForStatus(status int, detail string) ErrorKind {
	detail = strings.ToLower(detail)
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(detail, "insufficient_quota"):
		return KindQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindTransient
	}
}

// classifyMessage handles SDKs that only surface status codes in the error text.
func classifyMessage(msg string) ErrorKind {
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		if status, err := strconv.Atoi(m[1]); err == nil {
			return kindForStatus(status, msg)
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "insufficient_quota", "resource_exhausted", "quota", "rate limit", "error 429"):
		return KindQuota
	case containsAny(lower, "api key not valid", "permission_denied", "unauthenticated", "error 401", "error 403"):
		return KindAuth
	case containsAny(lower, "deadline exceeded", "timeout"):
		return KindTimeout
	default:
		return KindTransient
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
