package sources

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseWithStatus(code int, retryAfter string) *http.Response {
	h := http.Header{}
	if retryAfter != "" {
		h.Set("Retry-After", retryAfter)
	}
	return &http.Response{StatusCode: code, Header: h}
}

func TestClassifyHTTPStatus_TooManyRequestsCarriesRetryAfter(t *testing.T) {
	err := classifyHTTPStatus(responseWithStatus(429, "2"), errors.New("throttled"))
	rl, ok := AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, rl.RetryAfter)
}

func TestClassifyHTTPStatus_MissingRetryAfterDefaultsToOneSecond(t *testing.T) {
	err := classifyHTTPStatus(responseWithStatus(429, ""), errors.New("throttled"))
	rl, ok := AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, time.Second, rl.RetryAfter)
}

func TestClassifyHTTPStatus_ClientErrorIsPermanent(t *testing.T) {
	err := classifyHTTPStatus(responseWithStatus(404, ""), errors.New("not found"))
	assert.True(t, IsPermanent(err))
	_, ok := AsRateLimit(err)
	assert.False(t, ok)
}

func TestClassifyHTTPStatus_ServerErrorStaysRetryable(t *testing.T) {
	err := classifyHTTPStatus(responseWithStatus(502, ""), errors.New("bad gateway"))
	assert.False(t, IsPermanent(err))
	_, ok := AsRateLimit(err)
	assert.False(t, ok)
}

func TestPermanent_WrappingPreservesChain(t *testing.T) {
	sentinel := errors.New("bad credentials")
	err := Permanent(sentinel)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, sentinel)

	assert.NoError(t, Permanent(nil))
}
