/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package http1

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	pkge "github.com/caiflower/rawhttp/pkg/e"
	golocalv1 "github.com/caiflower/rawhttp/pkg/golocal/v1"
	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/pkg/tools"
	"github.com/caiflower/rawhttp/web/e"
	"github.com/caiflower/rawhttp/web/network"
	"github.com/caiflower/rawhttp/web/protocol"
)

const continueLine = protocol.HTTP11 + " 100 Continue" + protocol.CRLF + protocol.CRLF

type Server struct {
	Handler        Handler
	Name           string // Server头部，为空不输出
	DisableChunked bool
	HeaderTraceID  string
	BufferSize     int
	Logger         logger.ILog

	// OnRequestDone 每个请求关闭后回调
	OnRequestDone func(req *Request)
}

type conn struct {
	srv *Server
	raw net.Conn
	br  *bufio.Reader
	lr  *protocol.LineReader
	w   *network.Writer
}

func (s *Server) logger() logger.ILog {
	if s.Logger != nil {
		return s.Logger
	}
	return logger.DefaultLogger()
}

// Serve 在一个连接上循环处理请求直到不能复用，返回前关闭连接。对端正常断开时返回nil。
func (s *Server) Serve(ctx context.Context, raw net.Conn) error {
	size := s.BufferSize
	if size <= 0 {
		size = network.DefaultBufferSize
	}
	br := bufio.NewReaderSize(raw, size)
	c := &conn{
		srv: s,
		raw: raw,
		br:  br,
		lr:  protocol.NewLineReader(br),
		w:   network.NewWriter(raw, size),
	}

	defer func() {
		_ = raw.Close()
	}()

	golocalv1.PutContext(ctx)
	for {
		req, err := c.readRequest(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if e.IsProtocol(err) {
				s.logger().Warn("bad request from %s. Error: %s", raw.RemoteAddr(), err.Error())
				c.badRequest()
			} else {
				s.logger().Warn("read request from %s failed. Error: %s", raw.RemoteAddr(), err.Error())
			}
			s.Handler.HandleException(ctx, err)
			return err
		}

		keep := s.dispatch(req)
		if s.OnRequestDone != nil {
			s.OnRequestDone(req)
		}
		if !keep {
			return req.err
		}
	}
}

func (c *conn) readRequest(ctx context.Context) (*Request, error) {
	var (
		line string
		err  error
	)
	// 跳过请求之间的空行
	for line == "" {
		if line, err = c.lr.ReadLine(); err != nil {
			return nil, err
		}
	}

	rl, err := protocol.ParseRequestLine(line)
	if err != nil {
		return nil, err
	}
	header := protocol.NewHeaderSet()
	if err = header.Parse(c.br); err != nil {
		return nil, err
	}
	header.AddInternal(protocol.KeyMethod, rl.Method)
	header.AddInternal(protocol.KeyTarget, rl.Target)
	header.AddInternal(protocol.KeyProtocol, rl.Version)

	req := newRequest(ctx, c, rl, header)
	req.keep = ShouldKeepAlive(rl.Version, rl.Method, header)
	if req.body, err = c.bindBody(rl.Version, header); err != nil {
		return nil, err
	}

	traceID := ""
	if c.srv.HeaderTraceID != "" {
		traceID = header.Value(c.srv.HeaderTraceID)
	}
	if traceID == "" {
		traceID = tools.UUID()
	}
	req.traceID = traceID
	golocalv1.PutTraceID(traceID)
	return req, nil
}

// ShouldKeepAlive 解析请求后的连接复用判定。
// HTTP/1.0 需要 Connection: Keep-Alive，且请求体长度明确或没有请求体；HTTP/1.1 除非 Connection: close。
func ShouldKeepAlive(version, method string, header *protocol.HeaderSet) bool {
	if version == protocol.HTTP10 {
		if !header.Contains(protocol.HeaderConnection, protocol.ConnectionKeepAlive) {
			return false
		}
		if header.Has(protocol.HeaderContentLength) {
			return true
		}
		return !header.Has(protocol.HeaderTransferEncoding) && !protocol.MethodHasBody(method)
	}
	return !header.Contains(protocol.HeaderConnection, protocol.ConnectionClose)
}

// bindBody 没有帧信息的请求体按零长度处理，不读到EOF
func (c *conn) bindBody(version string, header *protocol.HeaderSet) (io.Reader, error) {
	if version == protocol.HTTP11 && header.Contains(protocol.HeaderTransferEncoding, protocol.EncodingChunked) {
		return network.NewChunkedReader(c.br), nil
	}
	if !header.Has(protocol.HeaderContentLength) {
		return nil, nil
	}
	n, err := header.GetLong(protocol.HeaderContentLength, 0)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, e.NewProtocolError(fmt.Sprintf("negative Content-Length %d", n), nil)
	}
	return network.NewLimitedReader(c.br, n), nil
}

func (s *Server) dispatch(req *Request) bool {
	if req.header.Contains(protocol.HeaderExpect, protocol.ExpectContinue) {
		if !s.askContinue(req) {
			if !req.Replied() {
				_ = req.Reply(http.StatusExpectationFailed, "", 0)
			}
			req.Close()
			req.keep = false
			s.reportWriteError(req, nil)
			return false
		}
		if err := req.c.writeContinue(); err != nil {
			req.fail(err)
			s.reportWriteError(req, nil)
			return false
		}
	}

	err := s.invoke(req)
	if err != nil {
		req.keep = false
		s.Handler.HandleException(req.ctx, err)
	}
	keep := req.Close()
	s.reportWriteError(req, err)
	return keep
}

// reportWriteError 引擎自身写出响应失败时上报，handlerErr已上报过则跳过
func (s *Server) reportWriteError(req *Request, handlerErr error) {
	if req.err == nil || req.err == handlerErr {
		return
	}
	s.logger().Warn("write response to %s failed. Error: %s", req.c.raw.RemoteAddr(), req.err.Error())
	s.Handler.HandleException(req.ctx, req.err)
}

func (s *Server) askContinue(req *Request) (ok bool) {
	defer pkge.OnPanic(func(r interface{}, stack []byte) {
		s.logger().Error("continue check panic: %v\n%s", r, stack)
		s.Handler.HandleException(req.ctx, &pkge.PanicError{Value: r, Stack: stack})
		ok = false
	})
	return s.Handler.HandleContinue(req)
}

func (s *Server) invoke(req *Request) (err error) {
	defer pkge.OnPanic(func(r interface{}, stack []byte) {
		s.logger().Error("handler panic: %v\n%s", r, stack)
		err = &pkge.PanicError{Value: r, Stack: stack}
	})
	return s.Handler.Handle(req)
}

func (c *conn) writeContinue() error {
	if _, err := c.w.WriteString(continueLine); err != nil {
		return err
	}
	return c.w.Flush()
}

// badRequest 尽力回复400并关闭
func (c *conn) badRequest() {
	c.w.Reset()
	status := protocol.StatusLine{Version: protocol.HTTP11, Code: http.StatusBadRequest, Reason: http.StatusText(http.StatusBadRequest)}
	header := protocol.NewHeaderSet()
	if c.srv.Name != "" {
		header.Add(protocol.HeaderServer, c.srv.Name)
	}
	header.Add(protocol.HeaderConnection, protocol.ConnectionClose)
	header.Add(protocol.HeaderContentLengthOut, "0")

	_, _ = c.w.WriteString(status.String() + protocol.CRLF + header.String() + protocol.CRLF)
	_ = c.w.Flush()
}
