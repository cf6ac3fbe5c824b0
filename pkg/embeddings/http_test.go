package embeddings

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDoer struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.responses[i], nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestHTTPEmbedder_ReturnsVectorsInRequestOrder(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{
		jsonResponse(http.StatusOK, `{"data":[{"index":1,"embedding":[0.2,0.3]},{"index":0,"embedding":[0.1,0.1]}]}`),
	}}
	h := &HTTPEmbedder{endpoint: "https://example.test/embed", client: doer, maxRetries: 1}

	out, err := h.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float64{0.1, 0.1}, out[0])
	assert.Equal(t, []float64{0.2, 0.3}, out[1])
}

func TestHTTPEmbedder_RetriesOnServerError(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{
		jsonResponse(http.StatusInternalServerError, ``),
		jsonResponse(http.StatusOK, `{"data":[{"index":0,"embedding":[0.5]}]}`),
	}}
	h := &HTTPEmbedder{endpoint: "https://example.test/embed", client: doer, maxRetries: 2}

	out, err := h.EmbedBatch(context.Background(), []string{"only"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5}}, out)
	assert.Equal(t, 2, doer.calls)
}

func TestHTTPEmbedder_NonRetryableStatusFailsImmediately(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{
		jsonResponse(http.StatusUnauthorized, ``),
		jsonResponse(http.StatusOK, `{}`),
	}}
	h := &HTTPEmbedder{endpoint: "https://example.test/embed", client: doer, maxRetries: 3}

	_, err := h.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.Equal(t, 1, doer.calls)
}

func TestHTTPEmbedder_EmptyBatchIsNoop(t *testing.T) {
	h := &HTTPEmbedder{endpoint: "https://example.test/embed", client: &fakeDoer{}}
	out, err := h.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
