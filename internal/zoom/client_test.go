package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-lms/backend/config"
)

type fakeZoom struct {
	tokenCalls atomic.Int32
	apiCalls   atomic.Int32
	expiresIn  int
	handler    func(w http.ResponseWriter, r *http.Request, call int32)
}

func (f *fakeZoom) server(t *testing.T) (*httptest.Server, config.ZoomConfig) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "account_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "acct", r.FormValue("account_id"))
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: fmt.Sprintf("tok-%d", n),
			TokenType:   "bearer",
			ExpiresIn:   f.expiresIn,
		})
	})
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		f.handler(w, r, f.apiCalls.Add(1))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, config.ZoomConfig{
		AccountID:    "acct",
		ClientID:     "client",
		ClientSecret: "secret",
		UserID:       "me",
		APIBaseURL:   srv.URL + "/v2",
		OAuthURL:     srv.URL + "/oauth/token",
		TimeoutSec:   5,
	}
}

func fastRetry() Option {
	return WithRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestListRecordings_FollowsPagination(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		assert.Equal(t, "/v2/users/me/recordings", r.URL.Path)
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-03-08", r.URL.Query().Get("to"))
		assert.Equal(t, "300", r.URL.Query().Get("page_size"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("next_page_token") {
		case "":
			fmt.Fprint(w, `{"next_page_token":"p2","meetings":[{"id":111,"topic":"A"}]}`)
		case "p2":
			fmt.Fprint(w, `{"next_page_token":"","meetings":[{"id":"222","topic":"B"}]}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("next_page_token"))
		}
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	meetings, err := c.ListRecordings(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.Equal(t, ID("111"), meetings[0].ID)
	assert.Equal(t, ID("222"), meetings[1].ID)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestListRecordings_RepeatedPageTokenStops(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		fmt.Fprint(w, `{"next_page_token":"same","meetings":[{"id":1}]}`)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	meetings, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, meetings, 2)
	assert.Equal(t, int32(2), f.apiCalls.Load())
}

func TestListRecordings_InvertedWindowIsEmpty(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		fmt.Fprint(w, `{"meetings":[{"id":7}]}`)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	from := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	meetings, err := c.ListRecordings(context.Background(), from, to)
	require.NoError(t, err)
	assert.Empty(t, meetings)
	assert.Equal(t, int32(0), f.apiCalls.Load())
	assert.Equal(t, int32(0), f.tokenCalls.Load())

	// same calendar day with a later from clock time is still queried
	day := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	meetings, err = c.ListRecordings(context.Background(), day.Add(18*time.Hour), day.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Len(t, meetings, 1)
	assert.Equal(t, int32(1), f.apiCalls.Load())
}

func TestAccessToken_CachedUntilMargin(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		fmt.Fprint(w, `{"meetings":[]}`)
	}
	_, cfg := f.server(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient(cfg, nil, fastRetry(), WithClock(func() time.Time { return now }))

	ctx := context.Background()
	_, err := c.ListRecordings(ctx, now, now)
	require.NoError(t, err)
	_, err = c.ListRecordings(ctx, now, now)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	// inside the safety margin the token is replaced
	now = now.Add(3600*time.Second - 30*time.Second)
	_, err = c.ListRecordings(ctx, now, now)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestDo_UnauthorizedRefreshesOnce(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, call int32) {
		if call == 1 {
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"meetings":[{"id":5}]}`)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	meetings, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, meetings, 1)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestDo_PersistentUnauthorizedFails(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	_, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), f.apiCalls.Load())
}

func TestDo_RetriesServerErrors(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, call int32) {
		if call < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"meetings":[{"id":9}]}`)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	meetings, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, meetings, 1)
	assert.Equal(t, int32(3), f.apiCalls.Load())
}

func TestDo_ClientErrorIsPermanent(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":1001,"message":"User does not exist"}`)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	_, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Body, "User does not exist")
	assert.Equal(t, int32(1), f.apiCalls.Load())
}

func TestExchangeToken_BadCredentials(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		t.Error("api must not be called without a token")
	}
	_, cfg := f.server(t)
	cfg.ClientSecret = "wrong"
	c := NewClient(cfg, nil, fastRetry())

	_, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestExchangeToken_NotConfigured(t *testing.T) {
	c := NewClient(config.ZoomConfig{APIBaseURL: "http://127.0.0.1:0"}, nil, fastRetry())
	_, err := c.ListRecordings(context.Background(), time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateMeeting(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/users/me/meetings", r.URL.Path)
		var req CreateMeetingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Intro to Networking", req.Topic)
		assert.Equal(t, 2, req.Type)
		assert.Equal(t, "2024-03-01T10:00:00Z", req.StartTime)
		assert.Equal(t, 120, req.Duration)
		assert.Equal(t, "cloud", req.Settings.AutoRecording)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":987654321,"topic":"Intro to Networking","join_url":"https://zoom.us/j/987654321","start_url":"https://zoom.us/s/987654321"}`)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	m, err := c.CreateMeeting(context.Background(), "Intro to Networking", "",
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), 120)
	require.NoError(t, err)
	assert.Equal(t, ID("987654321"), m.ID)
	assert.Equal(t, "https://zoom.us/j/987654321", m.JoinURL)
}

func TestCreateMeeting_ServerErrorNotRetried(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	_, err := c.CreateMeeting(context.Background(), "x", "", time.Now(), 30)
	require.Error(t, err)
	assert.Equal(t, int32(1), f.apiCalls.Load())
}

func TestDownload(t *testing.T) {
	f := &fakeZoom{expiresIn: 3600}
	f.handler = func(w http.ResponseWriter, r *http.Request, call int32) {
		if call == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		fmt.Fprint(w, "video-bytes")
	}
	srv, cfg := f.server(t)
	c := NewClient(cfg, nil, fastRetry())

	body, _, err := c.Download(context.Background(), srv.URL+"/v2/rec/download/abc")
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(b))
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":85746065,"b":"abc==","c":null}`), &v))
	assert.Equal(t, ID("85746065"), v.A)
	assert.Equal(t, ID("abc=="), v.B)
	assert.Equal(t, ID(""), v.C)
}

func TestTokenCacheFresh(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, TokenCache{}.Fresh(now, time.Minute))
	tc := TokenCache{Token: "t", ExpiresAt: now.Add(2 * time.Minute)}
	assert.True(t, tc.Fresh(now, time.Minute))
	assert.False(t, tc.Fresh(now.Add(time.Minute), time.Minute))
}
