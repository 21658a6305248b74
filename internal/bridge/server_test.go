package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type rawResponse struct {
	URL           string          `json:"url"`
	CorrelationID json.RawMessage `json:"correlationId"`
	Body          struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	} `json:"body"`
}

func startServer(t *testing.T, router *Router) (*Server, string) {
	t.Helper()
	srv := NewServer(router, Config{WriteTimeout: 2 * time.Second})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func recv(t *testing.T, c *websocket.Conn) (rawResponse, map[string]json.RawMessage) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)

	var resp rawResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	return resp, fields
}

func echoRouter() *Router {
	r := NewRouter()
	r.Handle("/echo", func(_ context.Context, req *Request) (any, error) {
		var body map[string]any
		if err := req.Decode(&body); err != nil {
			return nil, err
		}
		return body, nil
	})
	r.Handle("/nothing", func(context.Context, *Request) (any, error) { return nil, nil })
	r.Handle("/fail", func(context.Context, *Request) (any, error) {
		return nil, errors.New("window not found")
	})
	r.Handle("/panic", func(context.Context, *Request) (any, error) { panic("boom") })
	return r
}

func TestMalformedRequest(t *testing.T) {
	_, url := startServer(t, echoRouter())
	c := dial(t, url)

	for _, msg := range []string{`{not json`, `{"correlationId":"x"}`, `{"url":42}`} {
		send(t, c, msg)
		resp, fields := recv(t, c)
		assert.Equal(t, UnknownRoute, resp.URL, msg)
		assert.NotContains(t, fields, "correlationId", msg)
		assert.False(t, resp.Body.Success, msg)
		assert.NotEmpty(t, resp.Body.Error, msg)
	}

	// The connection survives protocol errors.
	send(t, c, `{"url":"/nothing","correlationId":"after"}`)
	resp, _ := recv(t, c)
	assert.True(t, resp.Body.Success)
}

func TestUnhandledRoute(t *testing.T) {
	_, url := startServer(t, echoRouter())
	c := dial(t, url)

	send(t, c, `{"url":"/does/not/exist","correlationId":"c1"}`)
	resp, _ := recv(t, c)
	assert.Equal(t, "/does/not/exist", resp.URL)
	assert.JSONEq(t, `"c1"`, string(resp.CorrelationID))
	assert.False(t, resp.Body.Success)
	assert.Contains(t, resp.Body.Error, "unhandled route")
}

func TestCorrelationIDEchoedVerbatim(t *testing.T) {
	_, url := startServer(t, echoRouter())
	c := dial(t, url)

	tests := []struct {
		name    string
		msg     string
		present bool
		want    string
	}{
		{"string", `{"url":"/nothing","correlationId":"abc-123"}`, true, `"abc-123"`},
		{"absent", `{"url":"/nothing"}`, false, ""},
		{"null", `{"url":"/nothing","correlationId":null}`, true, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, c, tt.msg)
			resp, fields := recv(t, c)
			raw, ok := fields["correlationId"]
			assert.Equal(t, tt.present, ok)
			if tt.present {
				assert.JSONEq(t, tt.want, string(raw))
			}
			assert.Equal(t, "/nothing", resp.URL)
			assert.True(t, resp.Body.Success)
		})
	}
}

func TestSuccessAndHandlerError(t *testing.T) {
	_, url := startServer(t, echoRouter())
	c := dial(t, url)

	send(t, c, `{"url":"/echo","correlationId":"1","body":{"a":1}}`)
	resp, _ := recv(t, c)
	assert.True(t, resp.Body.Success)
	assert.JSONEq(t, `{"a":1}`, string(resp.Body.Data))

	send(t, c, `{"url":"/nothing","correlationId":"2"}`)
	_, fields := recv(t, c)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["body"], &body))
	assert.NotContains(t, body, "data")

	send(t, c, `{"url":"/fail","correlationId":"3"}`)
	resp, _ = recv(t, c)
	assert.False(t, resp.Body.Success)
	assert.Equal(t, "window not found", resp.Body.Error)

	send(t, c, `{"url":"/panic","correlationId":"4"}`)
	resp, _ = recv(t, c)
	assert.False(t, resp.Body.Success)
	assert.Contains(t, resp.Body.Error, "boom")
}

func TestResponsesMayArriveOutOfOrder(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter()
	r.Handle("/slow", func(ctx context.Context, _ *Request) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "slow", nil
	})
	r.Handle("/fast", func(context.Context, *Request) (any, error) { return "fast", nil })

	_, url := startServer(t, r)
	c := dial(t, url)

	send(t, c, `{"url":"/slow","correlationId":"s"}`)
	send(t, c, `{"url":"/fast","correlationId":"f"}`)

	first, _ := recv(t, c)
	assert.JSONEq(t, `"f"`, string(first.CorrelationID))
	close(release)
	second, _ := recv(t, c)
	assert.JSONEq(t, `"s"`, string(second.CorrelationID))
}

func TestPingAnsweredWhileHandlerPending(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter()
	r.Handle("/block", func(context.Context, *Request) (any, error) {
		<-release
		return nil, nil
	})
	_, url := startServer(t, r)
	c := dial(t, url)

	pong := make(chan string, 1)
	c.SetPongHandler(func(s string) error {
		pong <- s
		return nil
	})

	send(t, c, `{"url":"/block","correlationId":"b"}`)
	require.NoError(t, c.WriteControl(websocket.PingMessage, []byte("hello"), time.Now().Add(time.Second)))

	got := make(chan rawResponse, 1)
	go func() {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var resp rawResponse
		if json.Unmarshal(data, &resp) == nil {
			got <- resp
		}
	}()

	select {
	case s := <-pong:
		assert.Equal(t, "hello", s)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong while a handler was pending")
	}
	close(release)

	select {
	case resp := <-got:
		assert.JSONEq(t, `"b"`, string(resp.CorrelationID))
	case <-time.After(5 * time.Second):
		t.Fatal("no response after release")
	}
}

func TestBinaryMessagesIgnored(t *testing.T) {
	_, url := startServer(t, echoRouter())
	c := dial(t, url)

	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	send(t, c, `{"url":"/nothing","correlationId":"t"}`)
	resp, _ := recv(t, c)
	assert.JSONEq(t, `"t"`, string(resp.CorrelationID))
}

func TestThenRunsAfterWrite(t *testing.T) {
	ran := make(chan struct{})
	r := NewRouter()
	r.Handle("/exit", func(context.Context, *Request) (any, error) {
		return Then(nil, func() { close(ran) }), nil
	})
	_, url := startServer(t, r)
	c := dial(t, url)

	send(t, c, `{"url":"/exit","correlationId":"e"}`)
	resp, _ := recv(t, c)
	assert.True(t, resp.Body.Success)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("follow-up did not run")
	}
}

func TestConcurrentClients(t *testing.T) {
	r := NewRouter()
	r.Handle("/id", func(_ context.Context, req *Request) (any, error) {
		var body struct{ N int }
		if err := req.Decode(&body); err != nil {
			return nil, err
		}
		return body.N, nil
	})
	_, url := startServer(t, r)

	const clients, perClient = 8, 25
	var g errgroup.Group
	for i := 0; i < clients; i++ {
		g.Go(func() error {
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			for n := 0; n < perClient; n++ {
				msg := fmt.Sprintf(`{"url":"/id","correlationId":"%d-%d","body":{"N":%d}}`, i, n, n)
				if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return err
				}
			}
			seen := make(map[string]bool)
			for n := 0; n < perClient; n++ {
				_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
				_, data, err := c.ReadMessage()
				if err != nil {
					return err
				}
				var resp rawResponse
				if err := json.Unmarshal(data, &resp); err != nil {
					return err
				}
				var id string
				if err := json.Unmarshal(resp.CorrelationID, &id); err != nil {
					return err
				}
				var got int
				if err := json.Unmarshal(resp.Body.Data, &got); err != nil {
					return err
				}
				if want := fmt.Sprintf("%d-%d", i, got); id != want {
					return fmt.Errorf("correlation %s carried data %d", id, got)
				}
				seen[id] = true
			}
			if len(seen) != perClient {
				return fmt.Errorf("client %d: %d distinct responses", i, len(seen))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := NewServer(echoRouter(), Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	c := dial(t, "ws://"+ln.Addr().String())
	send(t, c, `{"url":"/nothing"}`)
	recv(t, c)
	assert.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, srv.Connections())

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = c.ReadMessage()
	assert.Error(t, err, "client should see the connection close")
}

func TestLateConnectionClosedDuringShutdown(t *testing.T) {
	srv, url := startServer(t, echoRouter())
	srv.mu.Lock()
	srv.closing = true
	srv.mu.Unlock()

	c := dial(t, url)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, srv.Connections())

	waited := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("late connection kept the server waiting")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewServer(NewRouter(), Config{}).Config()
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, int64(DefaultReadLimit), cfg.ReadLimit)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}
