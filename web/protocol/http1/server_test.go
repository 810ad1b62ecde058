package http1

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pkge "github.com/caiflower/rawhttp/pkg/e"
	golocalv1 "github.com/caiflower/rawhttp/pkg/golocal/v1"
	"github.com/caiflower/rawhttp/web/e"
	"github.com/caiflower/rawhttp/web/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHandler struct {
	handle func(req *Request) error
	allow  func(req *Request) bool

	mu   sync.Mutex
	errs []error
}

func (h *testHandler) Handle(req *Request) error {
	return h.handle(req)
}

func (h *testHandler) HandleException(ctx context.Context, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *testHandler) HandleContinue(req *Request) bool {
	if h.allow == nil {
		return true
	}
	return h.allow(req)
}

func (h *testHandler) exceptions() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func writeBody(req *Request, code int, body string) error {
	if err := req.Reply(code, "", int64(len(body))); err != nil {
		return err
	}
	out, err := req.OutputStream()
	if err != nil {
		return err
	}
	if _, err = io.WriteString(out, body); err != nil {
		return err
	}
	return out.Close()
}

func serve(t *testing.T, h Handler, opts ...func(s *Server)) (net.Conn, <-chan error) {
	client, server := net.Pipe()
	srv := &Server{Handler: h, Name: "test"}
	for _, opt := range opts {
		opt(srv)
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(context.Background(), server)
	}()
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, done
}

func send(t *testing.T, c net.Conn, s string) {
	_, err := io.WriteString(c, s)
	require.NoError(t, err)
}

func readN(t *testing.T, c net.Conn, n int) string {
	buf := make([]byte, n)
	_, err := io.ReadFull(c, buf)
	require.NoError(t, err)
	return string(buf)
}

func readAll(t *testing.T, c net.Conn) string {
	b, err := io.ReadAll(c)
	require.NoError(t, err)
	return string(b)
}

func wait(t *testing.T, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestShouldKeepAlive(t *testing.T) {
	cases := []struct {
		version string
		method  string
		headers map[string]string
		want    bool
	}{
		{protocol.HTTP11, "GET", nil, true},
		{protocol.HTTP11, "GET", map[string]string{"Connection": "close"}, false},
		{protocol.HTTP11, "POST", map[string]string{"connection": "Close"}, false},
		{protocol.HTTP11, "POST", nil, true},
		{protocol.HTTP10, "GET", nil, false},
		{protocol.HTTP10, "GET", map[string]string{"Connection": "Keep-Alive"}, true},
		{protocol.HTTP10, "GET", map[string]string{"Connection": "keep-alive"}, true},
		{protocol.HTTP10, "POST", map[string]string{"Connection": "Keep-Alive", "Content-Length": "0"}, true},
		{protocol.HTTP10, "POST", map[string]string{"Connection": "Keep-Alive"}, false},
		{protocol.HTTP10, "GET", map[string]string{"Connection": "Keep-Alive", "Transfer-Encoding": "chunked"}, false},
	}

	for _, c := range cases {
		h := protocol.NewHeaderSet()
		for k, v := range c.headers {
			h.Add(k, v)
		}
		assert.Equal(t, c.want, ShouldKeepAlive(c.version, c.method, h), "%s %s %v", c.version, c.method, c.headers)
	}
}

func TestServeKeepAliveGet(t *testing.T) {
	var paths []string
	h := &testHandler{handle: func(req *Request) error {
		paths = append(paths, req.Path()+"|"+req.RawQuery())
		return writeBody(req, 200, "hello")
	}}
	client, done := serve(t, h)

	want := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 5\r\n\r\nhello"
	send(t, client, "GET /a?x=1 HTTP/1.1\r\nHost: localhost\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))

	// 同一连接上的第二个请求，前面的空行被跳过
	send(t, client, "\r\nGET /b HTTP/1.1\r\nHost: localhost\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))

	_ = client.Close()
	assert.Nil(t, wait(t, done))
	assert.Equal(t, []string{"/a|x=1", "/b|"}, paths)
	assert.Empty(t, h.exceptions())
}

func TestServeResponseHeaders(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		assert.Nil(t, req.AddHeader("Content-Type", "text/plain"))
		assert.Nil(t, req.AddHeader("X-Echo", req.Get("x-echo")))
		return writeBody(req, 201, "ok")
	}}
	client, _ := serve(t, h)

	want := "HTTP/1.1 201 Created\r\nServer: test\r\nContent-Type: text/plain\r\nX-Echo: v1\r\nContent-length: 2\r\n\r\nok"
	send(t, client, "PUT /x HTTP/1.1\r\nX-Echo: v1\r\nContent-Length: 0\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))
}

func TestServeHTTP10(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		return writeBody(req, 200, "hello")
	}}
	client, done := serve(t, h)

	send(t, client, "GET / HTTP/1.0\r\n\r\n")
	assert.Equal(t, "HTTP/1.0 200 OK\r\nServer: test\r\nConnection: close\r\nContent-length: 5\r\n\r\nhello", readAll(t, client))
	assert.Nil(t, wait(t, done))
}

func TestServeHTTP10KeepAlive(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		return writeBody(req, 200, "hello")
	}}
	client, done := serve(t, h)

	want := "HTTP/1.0 200 OK\r\nServer: test\r\nConnection: Keep-Alive\r\nContent-length: 5\r\n\r\nhello"
	for i := 0; i < 2; i++ {
		send(t, client, "GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n")
		assert.Equal(t, want, readN(t, client, len(want)))
	}
	_ = client.Close()
	assert.Nil(t, wait(t, done))
}

func TestServeUnknownLength(t *testing.T) {
	streaming := func(req *Request) error {
		if err := req.Reply(200, "OK", -1); err != nil {
			return err
		}
		out, err := req.OutputStream()
		if err != nil {
			return err
		}
		_, _ = io.WriteString(out, "hello")
		return out.Close()
	}

	t.Run("chunked", func(t *testing.T) {
		client, _ := serve(t, &testHandler{handle: streaming})
		want := "HTTP/1.1 200 OK\r\nServer: test\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"
		for i := 0; i < 2; i++ {
			send(t, client, "GET / HTTP/1.1\r\n\r\n")
			assert.Equal(t, want, readN(t, client, len(want)))
		}
	})

	t.Run("chunking disabled", func(t *testing.T) {
		client, done := serve(t, &testHandler{handle: streaming}, func(s *Server) {
			s.DisableChunked = true
		})
		send(t, client, "GET / HTTP/1.1\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 200 OK\r\nServer: test\r\nConnection: close\r\n\r\nhello", readAll(t, client))
		assert.Nil(t, wait(t, done))
	})

	t.Run("http/1.0 keep-alive", func(t *testing.T) {
		client, done := serve(t, &testHandler{handle: streaming})
		send(t, client, "GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n")
		assert.Equal(t, "HTTP/1.0 200 OK\r\nServer: test\r\nConnection: close\r\n\r\nhello", readAll(t, client))
		assert.Nil(t, wait(t, done))
	})
}

func TestServeBufferedOutput(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		assert.Nil(t, req.BufferOutput())
		if err := req.Reply(200, "", -1); err != nil {
			return err
		}
		out, err := req.OutputStream()
		if err != nil {
			return err
		}
		_, _ = io.WriteString(out, "abc")
		_, _ = io.WriteString(out, "def")
		return out.Close()
	}}
	client, done := serve(t, h)

	want := "HTTP/1.0 200 OK\r\nServer: test\r\nConnection: Keep-Alive\r\nContent-length: 6\r\n\r\nabcdef"
	send(t, client, "GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))

	wantHead := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 6\r\n\r\n"
	send(t, client, "HEAD / HTTP/1.1\r\n\r\n")
	assert.Equal(t, wantHead, readN(t, client, len(wantHead)))

	_ = client.Close()
	assert.Nil(t, wait(t, done))
}

func TestServeHead(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		return writeBody(req, 200, "hello")
	}}
	client, _ := serve(t, h)

	wantHead := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 5\r\n\r\n"
	send(t, client, "HEAD / HTTP/1.1\r\n\r\n")
	assert.Equal(t, wantHead, readN(t, client, len(wantHead)))

	want := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 5\r\n\r\nhello"
	send(t, client, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))
}

func TestServeRequestBody(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		if req.Body() == nil {
			return writeBody(req, 200, "<nil>")
		}
		b, err := io.ReadAll(req.Body())
		if err != nil {
			return err
		}
		return writeBody(req, 200, strings.ToUpper(string(b)))
	}}
	client, _ := serve(t, h)

	want := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 5\r\n\r\nHELLO"
	send(t, client, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	assert.Equal(t, want, readN(t, client, len(want)))

	send(t, client, "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nhel\r\n2;x=y\r\nlo\r\n0\r\nX-T: 1\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))

	// 没有帧信息的请求体按零长度处理
	wantNil := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 5\r\n\r\n<nil>"
	send(t, client, "POST / HTTP/1.1\r\n\r\n")
	assert.Equal(t, wantNil, readN(t, client, len(wantNil)))
}

func TestServeUndrainedBody(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		return writeBody(req, 200, "ok")
	}}
	client, done := serve(t, h)

	send(t, client, "POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nServer: test\r\nConnection: close\r\nContent-length: 2\r\n\r\nok", readAll(t, client))
	assert.Nil(t, wait(t, done))
}

func TestServeContinue(t *testing.T) {
	h := &testHandler{
		handle: func(req *Request) error {
			b, _ := io.ReadAll(req.Body())
			return writeBody(req, 200, string(b))
		},
		allow: func(req *Request) bool {
			return req.Path() == "/ok"
		},
	}

	t.Run("approved", func(t *testing.T) {
		client, _ := serve(t, h)
		send(t, client, "POST /ok HTTP/1.1\r\nContent-Length: 3\r\nExpect: 100-continue\r\n\r\n")
		assert.Equal(t, continueLine, readN(t, client, len(continueLine)))

		send(t, client, "abc")
		want := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 3\r\n\r\nabc"
		assert.Equal(t, want, readN(t, client, len(want)))
	})

	t.Run("declined", func(t *testing.T) {
		client, done := serve(t, h)
		send(t, client, "POST /no HTTP/1.1\r\nContent-Length: 3\r\nExpect: 100-continue\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 417 Expectation Failed\r\nServer: test\r\nConnection: close\r\nContent-length: 0\r\n\r\n", readAll(t, client))
		assert.Nil(t, wait(t, done))
	})

	t.Run("declined with reply", func(t *testing.T) {
		h := &testHandler{allow: func(req *Request) bool {
			_ = writeBody(req, 413, "too big")
			return false
		}}
		client, done := serve(t, h)
		send(t, client, "POST / HTTP/1.1\r\nContent-Length: 99999\r\nExpect: 100-continue\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 413 Request Entity Too Large\r\nServer: test\r\nConnection: close\r\nContent-length: 7\r\n\r\ntoo big", readAll(t, client))
		assert.Nil(t, wait(t, done))
	})
}

func TestServeDefaultReply(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		return nil
	}}
	client, _ := serve(t, h)

	want := "HTTP/1.1 500 Internal Server Error\r\nServer: test\r\nContent-length: 0\r\n\r\n"
	for i := 0; i < 2; i++ {
		send(t, client, "GET / HTTP/1.1\r\n\r\n")
		assert.Equal(t, want, readN(t, client, len(want)))
	}
}

func TestServeHandlerFailure(t *testing.T) {
	failure := errors.New("boom")

	t.Run("error", func(t *testing.T) {
		h := &testHandler{handle: func(req *Request) error {
			return failure
		}}
		client, done := serve(t, h)
		send(t, client, "GET / HTTP/1.1\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 500 Internal Server Error\r\nServer: test\r\nConnection: close\r\nContent-length: 0\r\n\r\n", readAll(t, client))
		assert.Nil(t, wait(t, done))
		assert.Equal(t, []error{failure}, h.exceptions())
	})

	t.Run("panic", func(t *testing.T) {
		h := &testHandler{handle: func(req *Request) error {
			panic("handler exploded")
		}}
		client, done := serve(t, h)
		send(t, client, "GET / HTTP/1.1\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 500 Internal Server Error\r\nServer: test\r\nConnection: close\r\nContent-length: 0\r\n\r\n", readAll(t, client))
		assert.Nil(t, wait(t, done))

		errs := h.exceptions()
		require.Len(t, errs, 1)
		var pe *pkge.PanicError
		assert.True(t, errors.As(errs[0], &pe))
		assert.Equal(t, "handler exploded", pe.Value)
	})
}

func TestServeReportsWriteFailure(t *testing.T) {
	hangup := make(chan struct{})
	h := &testHandler{handle: func(req *Request) error {
		<-hangup
		return nil
	}}
	client, done := serve(t, h)

	send(t, client, "GET / HTTP/1.1\r\n\r\n")
	_ = client.Close()
	close(hangup)

	err := wait(t, done)
	require.Error(t, err)
	errs := h.exceptions()
	require.Len(t, errs, 1)
	assert.Equal(t, err, errs[0])
}

type brokenConn struct {
	net.Conn
	err error
}

func (c brokenConn) Read(p []byte) (int, error) {
	return 0, c.err
}

func TestServeReportsReadFailure(t *testing.T) {
	reset := errors.New("connection reset by peer")
	h := &testHandler{handle: func(req *Request) error {
		t.Error("handler must not run")
		return nil
	}}
	client, server := net.Pipe()
	defer client.Close()

	srv := &Server{Handler: h, Name: "test"}
	err := srv.Serve(context.Background(), brokenConn{Conn: server, err: reset})
	assert.Equal(t, reset, err)
	assert.Equal(t, []error{reset}, h.exceptions())
}

func TestServeShortBody(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		_ = req.Reply(200, "OK", 10)
		out, _ := req.OutputStream()
		_, _ = io.WriteString(out, "hello")
		return out.Close()
	}}
	client, done := serve(t, h)

	send(t, client, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 10\r\n\r\nhello", readAll(t, client))
	assert.Nil(t, wait(t, done))
}

func TestServeBadRequest(t *testing.T) {
	for _, input := range []string{
		"BOGUS\r\n\r\n",
		"GET / HTTP/2.0\r\n\r\n",
		"GET / HTTP/1.1\r\nNoColon\r\n\r\n",
		"POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n",
	} {
		h := &testHandler{handle: func(req *Request) error {
			t.Errorf("handler must not run for %q", input)
			return nil
		}}
		client, done := serve(t, h)
		send(t, client, input)
		assert.Equal(t, "HTTP/1.1 400 Bad Request\r\nServer: test\r\nConnection: close\r\nContent-length: 0\r\n\r\n", readAll(t, client))

		err := wait(t, done)
		assert.True(t, e.IsProtocol(err), "%q: %v", input, err)
		require.Len(t, h.exceptions(), 1)
		assert.True(t, e.IsProtocol(h.exceptions()[0]))
	}
}

func TestRequestUsage(t *testing.T) {
	h := &testHandler{handle: func(req *Request) error {
		_, err := req.OutputStream()
		assert.True(t, e.IsUsage(err))

		assert.True(t, e.IsUsage(req.AddHeader("Content-Length", "3")))
		assert.Nil(t, req.Reply(200, "OK", 2))
		assert.True(t, e.IsUsage(req.Reply(200, "OK", 2)))
		assert.True(t, req.Replied())

		out, err := req.OutputStream()
		require.NoError(t, err)
		assert.True(t, e.IsUsage(req.AddHeader("X-Late", "1")))

		_, err = io.WriteString(out, "abc")
		assert.True(t, e.IsOutputLimit(err))
		_, err = io.WriteString(out, "ab")
		assert.Nil(t, err)

		assert.True(t, req.Close())
		assert.True(t, req.Close())
		assert.Nil(t, out.Close())

		_, err = io.WriteString(out, "x")
		assert.True(t, e.IsUsage(err))
		return nil
	}}
	client, _ := serve(t, h)

	want := "HTTP/1.1 200 OK\r\nServer: test\r\nContent-length: 2\r\n\r\nab"
	send(t, client, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))
}

func TestServeTraceID(t *testing.T) {
	ids := make(chan [2]string, 2)
	h := &testHandler{handle: func(req *Request) error {
		ids <- [2]string{req.TraceID(), golocalv1.GetTraceID()}
		return writeBody(req, 204, "")
	}}
	client, _ := serve(t, h, func(s *Server) {
		s.HeaderTraceID = "X-Request-Id"
	})

	want := "HTTP/1.1 204 No Content\r\nServer: test\r\n\r\n"
	send(t, client, "GET / HTTP/1.1\r\nX-Request-Id: req-1\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))
	assert.Equal(t, [2]string{"req-1", "req-1"}, <-ids)

	send(t, client, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, want, readN(t, client, len(want)))
	generated := <-ids
	assert.NotEmpty(t, generated[0])
	assert.Equal(t, generated[0], generated[1])
}
