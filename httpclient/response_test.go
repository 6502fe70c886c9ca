package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       Status
		wantString   string
		wantCategory StatusCategory
		wantSuccess  bool
	}{
		{
			name:         "given 200 without reason, then uses standard text",
			status:       Status{Code: http.StatusOK},
			wantString:   "200 OK",
			wantCategory: CategorySuccess,
			wantSuccess:  true,
		},
		{
			name:         "given 404 with custom reason, then keeps reason",
			status:       Status{Code: http.StatusNotFound, Reason: "Nope"},
			wantString:   "404 Nope",
			wantCategory: CategoryClientError,
		},
		{
			name:         "given 503, then server error",
			status:       Status{Code: http.StatusServiceUnavailable},
			wantString:   "503 Service Unavailable",
			wantCategory: CategoryServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantString, tt.status.String())
			assert.Equal(t, tt.wantCategory, tt.status.Category())
			assert.Equal(t, tt.wantSuccess, tt.status.IsSuccess())
		})
	}
}

func TestResponse_Bytes(t *testing.T) {
	body := &trackingBody{Reader: bytes.NewBufferString("payload")}
	resp := NewResponse(NewRequest("GET", nil), Status{Code: 200}, Headers{}, body)

	first, err := resp.Bytes()
	require.NoError(t, err)
	second, err := resp.Bytes()
	require.NoError(t, err)

	assert.Equal(t, "payload", string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, body.closes)

	require.NoError(t, resp.Close())
	assert.Equal(t, 1, body.closes)

	replay, err := io.ReadAll(resp.Body())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(replay))
}

func TestResponse_Body_TakeOnce(t *testing.T) {
	body := &trackingBody{Reader: bytes.NewBufferString("stream")}
	resp := NewResponse(NewRequest("GET", nil), Status{Code: 200}, Headers{}, body)

	stream := resp.Body()
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "stream", string(data))

	again, err := io.ReadAll(resp.Body())
	require.NoError(t, err)
	assert.Empty(t, again)

	empty, err := resp.Bytes()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestResponse_Close_Once(t *testing.T) {
	body := &trackingBody{Reader: bytes.NewBufferString("unread")}
	resp := NewResponse(NewRequest("GET", nil), Status{Code: 200}, Headers{}, body)

	require.NoError(t, resp.Close())
	require.NoError(t, resp.Close())

	assert.Equal(t, 1, body.closes)
}

func TestNewResponse_NilBody(t *testing.T) {
	resp := NewResponse(NewRequest("GET", nil), Status{Code: 204}, Headers{}, nil)

	data, err := resp.Bytes()

	require.NoError(t, err)
	assert.Empty(t, data)
}
