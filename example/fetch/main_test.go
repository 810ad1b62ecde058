package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/caiflower/rawhttp/web/protocol"
	"github.com/caiflower/rawhttp/web/protocol/http1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http1.Server{Name: "fetch-test", Handler: http1.HandlerFunc(func(req *http1.Request) error {
		body, _ := io.ReadAll(req.Body())
		text := req.Method() + " " + req.Get("X-Token") + " " + string(body)
		_ = req.Reply(200, "OK", int64(len(text)))
		out, _ := req.OutputStream()
		_, _ = io.WriteString(out, text)
		return out.Close()
	})}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = srv.Serve(context.Background(), conn)
	}()

	buf := &bytes.Buffer{}
	err = fetch("http://"+ln.Addr().String()+"/x", "PUT", protocol.HTTP11, []string{"X-Token: t1"}, "payload", true, time.Second, buf)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nServer: fetch-test\r\nConnection: close\r\nContent-length: 14\r\n\r\nPUT t1 payload", buf.String())
}

func TestHeaderFlags(t *testing.T) {
	var h headerFlags
	assert.Nil(t, h.Set("A: 1"))
	assert.NotNil(t, h.Set("broken"))
	assert.Equal(t, "A: 1", h.String())
}
