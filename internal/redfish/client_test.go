package redfish

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redfish-mockup-creator/pkg/jsontree"
)

func newTestClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.Host = srv.URL
	opts.HTTPClient = srv.Client()
	if opts.UserAgent == "" {
		opts.UserAgent = "test-agent"
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func TestGetParsesJSONAndSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "root", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("OData-Version", "4.0")
		w.Header().Add("Allow", "GET")
		w.Header().Add("Allow", "HEAD")
		_, _ = w.Write([]byte(`{"@odata.id": "/redfish/v1/Systems", "Name": "Systems"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{User: "root", Password: "secret", Auth: AuthBasic})
	resp, err := c.Get(context.Background(), "/redfish/v1/Systems", GetOptions{})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.NoError(t, resp.ParseErr)

	obj, ok := resp.JSON.(*jsontree.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"@odata.id", "Name"}, obj.Keys())
	assert.Equal(t, "GET, HEAD", headerValue(resp.Headers, "Allow"))
	assert.Greater(t, resp.Elapsed, time.Duration(0))
	assert.GreaterOrEqual(t, resp.Elapsed, resp.HeaderLatency)
}

func TestGetUnauthenticatedAndXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok)
		assert.Equal(t, "application/xml", r.Header.Get("Accept"))
		assert.Equal(t, "4.0", r.Header.Get("OData-Version"))
		_, _ = w.Write([]byte(`<edmx:Edmx/>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{User: "root", Password: "secret"})
	resp, err := c.Get(context.Background(), "/redfish/v1/$metadata", GetOptions{XML: true, Unauthenticated: true})
	require.NoError(t, err)
	assert.Nil(t, resp.JSON)
	assert.Equal(t, `<edmx:Edmx/>`, resp.Text())
}

func TestGetReportsParseErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"broken": `))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, Options{}).Get(context.Background(), "/redfish/v1", GetOptions{})
	require.NoError(t, err)
	assert.Error(t, resp.ParseErr)
	assert.Nil(t, resp.JSON)
}

func TestGetReturnsNon2xxWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, Options{}).Get(context.Background(), "/redfish/v1/Nope", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Nil(t, resp.JSON)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{MaxRetries: 2, RetryBackoff: time.Millisecond})
	resp, err := c.Get(context.Background(), "/redfish/v1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{MaxRetries: 1, RetryBackoff: time.Millisecond})
	resp, err := c.Get(context.Background(), "/redfish/v1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSessionLoginAndLogout(t *testing.T) {
	var deleted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/redfish/v1/SessionService/Sessions":
			var creds map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "root", creds["UserName"])
			assert.Equal(t, "secret", creds["Password"])
			w.Header().Set(HeaderAuthToken, "tok-1")
			w.Header().Set(HeaderLocation, "http://"+r.Host+"/redfish/v1/SessionService/Sessions/7")
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet:
			assert.Equal(t, "tok-1", r.Header.Get(HeaderAuthToken))
			_, ok := r.Header["Authorization"]
			assert.False(t, ok)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/redfish/v1/SessionService/Sessions/7":
			assert.Equal(t, "tok-1", r.Header.Get(HeaderAuthToken))
			deleted.Store(true)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{User: "root", Password: "secret", Auth: AuthSession})
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "/redfish/v1/SessionService/Sessions"))
	_, err := c.Get(ctx, "/redfish/v1/Systems", GetOptions{})
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	assert.True(t, deleted.Load())

	// second logout is a no-op
	require.NoError(t, c.Logout(ctx))
}

func TestSessionLoginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{User: "root", Password: "bad", Auth: AuthSession})
	err := c.Login(context.Background(), "/redfish/v1/SessionService/Sessions")
	assert.True(t, errors.Is(err, ErrLoginFailed))
}

func TestLoginIsNoopForBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Options{Auth: AuthBasic})
	require.NoError(t, c.Login(context.Background(), "/redfish/v1/SessionService/Sessions"))
	require.NoError(t, c.Logout(context.Background()))
}

func TestReadBodyDecodesCompression(t *testing.T) {
	payload := []byte(`{"Name": "compressed"}`)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write(payload)
	require.NoError(t, zw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	require.NoError(t, bw.Close())

	for encoding, body := range map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", encoding)
			_, _ = w.Write(body)
		}))
		resp, err := newTestClient(t, srv, Options{}).Get(context.Background(), "/redfish/v1", GetOptions{})
		srv.Close()
		require.NoError(t, err, encoding)
		assert.Equal(t, string(payload), resp.Text(), encoding)
	}
}

func TestReadBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, Options{MaxBodyBytes: 16}).Get(context.Background(), "/redfish/v1", GetOptions{})
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func TestBaseURL(t *testing.T) {
	got, err := baseURL("10.0.0.1:8000", false)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8000", got)

	got, err = baseURL("bmc.example", true)
	require.NoError(t, err)
	assert.Equal(t, "https://bmc.example", got)

	got, err = baseURL("https://bmc.example/redfish", false)
	require.NoError(t, err)
	assert.Equal(t, "https://bmc.example", got)

	_, err = baseURL(" ", false)
	assert.Error(t, err)
}

func TestPacerSpacesRequests(t *testing.T) {
	assert.Nil(t, NewPacer(PacerSettings{}))

	p := NewPacer(PacerSettings{Delay: 20 * time.Millisecond})
	require.NotNil(t, p)
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	slow := NewPacer(PacerSettings{Delay: time.Hour})
	require.NoError(t, slow.Wait(ctx))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, slow.Wait(cancelled), context.Canceled)
}
