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

package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/web/e"
	"github.com/caiflower/rawhttp/web/network"
	"github.com/caiflower/rawhttp/web/protocol"
)

var UserAgent = "rawhttp-client/1.0"

type State int

const (
	Unconnected State = iota
	Connected
	RequestHeadersSent
	RequestBodySent
	ResponseStatusParsed
	ResponseHeadersParsed
	Streaming
	Closed
)

var stateNames = [...]string{"Unconnected", "Connected", "RequestHeadersSent", "RequestBodySent",
	"ResponseStatusParsed", "ResponseHeadersParsed", "Streaming", "Closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Request 一次HTTP/1.x请求，独占一条连接，不复用
type Request struct {
	url     *url.URL
	method  string
	version string
	Dialer  net.Dialer
	Logger  logger.ILog

	state   State
	conn    net.Conn
	br      *bufio.Reader
	w       *network.Writer
	pending *protocol.HeaderSet
	length  int64
	chunked bool
	body    *bodyWriter
	resp    *Response
}

// NewRequest method为空时使用GET，version为空时使用HTTP/1.1
func NewRequest(rawURL, method, version string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, e.NewError(e.Usage, fmt.Sprintf("invalid url %q", rawURL), err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, e.NewUsageError(fmt.Sprintf("unsupported url %q, only http://host[:port]/path is supported", rawURL))
	}
	if method == "" {
		method = protocol.MethodGet
	}
	if version == "" {
		version = protocol.HTTP11
	}
	if version, err = protocol.ParseVersion(version); err != nil {
		return nil, e.NewError(e.Usage, "invalid version", err)
	}

	return &Request{
		url:     u,
		method:  strings.ToUpper(method),
		version: version,
		Logger:  logger.DefaultLogger(),
		pending: protocol.NewHeaderSet(),
		length:  -1,
	}, nil
}

func (r *Request) State() State {
	return r.state
}

func (r *Request) Method() string {
	return r.method
}

func (r *Request) URL() *url.URL {
	return r.url
}

func (r *Request) Version() string {
	return r.version
}

func (r *Request) address() string {
	if r.url.Port() != "" {
		return r.url.Host
	}
	return net.JoinHostPort(r.url.Hostname(), "80")
}

// Connect 建立连接并写出请求行、Host、User-Agent，HTTP/1.1还会写出 Connection: close
func (r *Request) Connect(ctx context.Context) error {
	if r.state != Unconnected {
		return e.NewUsageError("request already connected")
	}

	conn, err := r.Dialer.DialContext(ctx, "tcp", r.address())
	if err != nil {
		return fmt.Errorf("connect %s: %w", r.address(), err)
	}
	r.conn = conn
	r.br = bufio.NewReader(conn)
	r.w = network.NewWriter(conn, network.DefaultBufferSize)
	r.state = Connected

	line := protocol.RequestLine{Method: r.method, Target: r.url.RequestURI(), Version: r.version}
	header := protocol.NewHeaderSet()
	header.Add(protocol.HeaderHost, r.url.Host)
	header.Add(protocol.HeaderUserAgent, UserAgent)
	if r.version == protocol.HTTP11 {
		header.Add(protocol.HeaderConnection, protocol.ConnectionClose)
	}
	r.pending.Each(func(key, value string) bool {
		header.Add(key, value)
		return true
	})
	r.pending.Reset()

	if _, err = r.w.WriteString(line.String() + protocol.CRLF + header.String()); err != nil {
		return r.fail(err)
	}
	return nil
}

// AddHeader 只能在请求头结束前调用。Content-Length会限制请求体输出流。
func (r *Request) AddHeader(key, value string) error {
	if r.state > Connected {
		return e.NewUsageError(fmt.Sprintf("header %s added after request headers were sent", key))
	}

	switch {
	case strings.EqualFold(key, protocol.HeaderContentLength):
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return e.NewUsageError(fmt.Sprintf("invalid Content-Length %q", value))
		}
		r.length = n
	case strings.EqualFold(key, protocol.HeaderTransferEncoding):
		r.chunked = protocol.ContainsToken(value, protocol.EncodingChunked)
	}

	if r.state == Unconnected {
		r.pending.Add(key, value)
		return nil
	}
	if _, err := r.w.WriteString(key + ": " + value + protocol.CRLF); err != nil {
		return r.fail(err)
	}
	return nil
}

// OutputStream 结束请求头并返回请求体输出流。声明了Content-Length时按长度限制，
// HTTP/1.1未声明长度时使用chunked。
func (r *Request) OutputStream() (io.WriteCloser, error) {
	switch {
	case r.state == RequestHeadersSent && r.body != nil:
		return r.body, nil
	case r.state != Connected:
		return nil, e.NewUsageError(fmt.Sprintf("output stream not available in state %s", r.state))
	}

	if r.length < 0 && !r.chunked {
		if r.version != protocol.HTTP11 {
			return nil, e.NewUsageError("HTTP/1.0 request body needs Content-Length")
		}
		if _, err := r.w.WriteString(protocol.HeaderTransferEncoding + ": " + protocol.EncodingChunked + protocol.CRLF); err != nil {
			return nil, r.fail(err)
		}
		r.chunked = true
	}
	if err := r.endHeaders(); err != nil {
		return nil, err
	}

	if r.chunked {
		if err := r.w.SetChunked(true); err != nil {
			return nil, r.fail(err)
		}
	} else {
		r.w.SetLimit(r.length)
	}
	r.body = &bodyWriter{r: r}
	return r.body, nil
}

func (r *Request) endHeaders() error {
	if _, err := r.w.WriteString(protocol.CRLF); err != nil {
		return r.fail(err)
	}
	r.state = RequestHeadersSent
	return nil
}

// finishBody 结束请求体并刷出
func (r *Request) finishBody() error {
	if r.state != RequestHeadersSent {
		return nil
	}
	if err := r.w.Finish(); err != nil {
		return r.fail(err)
	}
	if !r.w.Complete() {
		return e.NewUsageError(fmt.Sprintf("request body incomplete, %d of %d bytes written", r.w.Written(), r.w.Limit()))
	}
	r.w.SetLimit(-1)
	r.state = RequestBodySent
	return nil
}

// Response 必要时先结束请求，然后读取响应状态行和头部，跳过100 Continue
func (r *Request) Response() (*Response, error) {
	if r.resp != nil {
		return r.resp, nil
	}

	switch r.state {
	case Unconnected, Closed:
		return nil, e.NewUsageError(fmt.Sprintf("response not available in state %s", r.state))
	case Connected:
		if err := r.endHeaders(); err != nil {
			return nil, err
		}
		// 声明了chunked但未写请求体时，由finishBody补发结束块
		if r.chunked {
			if err := r.w.SetChunked(true); err != nil {
				return nil, r.fail(err)
			}
		} else {
			r.w.SetLimit(r.length)
		}
	}
	if err := r.finishBody(); err != nil {
		return nil, err
	}

	lr := protocol.NewLineReader(r.br)
	for {
		line, err := lr.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = e.NewProtocolError("connection closed before response", io.ErrUnexpectedEOF)
			}
			return nil, r.fail(err)
		}
		status, err := protocol.ParseStatusLine(line)
		if err != nil {
			return nil, r.fail(err)
		}
		r.state = ResponseStatusParsed

		header := protocol.NewHeaderSet()
		if err = header.Parse(r.br); err != nil {
			return nil, r.fail(err)
		}
		r.state = ResponseHeadersParsed

		if status.Code == 100 {
			r.Logger.Debug("%s %s got 100 Continue", r.method, r.url)
			continue
		}

		header.AddInternal(protocol.KeyProtocol, status.Version)
		header.AddInternal(protocol.KeyStatus, strconv.Itoa(status.Code))
		header.AddInternal(protocol.KeyReason, status.Reason)

		resp := &Response{StatusLine: status, Header: header}
		if err = r.bindBody(resp); err != nil {
			return nil, r.fail(err)
		}
		r.resp = resp
		r.state = Streaming
		return resp, nil
	}
}

func (r *Request) bindBody(resp *Response) error {
	code := resp.Code
	if r.method == protocol.MethodHead || code < 200 || code == 204 || code == 304 {
		resp.Body = network.NewLimitedReader(r.br, 0)
		return nil
	}
	if resp.Version == protocol.HTTP11 && resp.Header.Contains(protocol.HeaderTransferEncoding, protocol.EncodingChunked) {
		resp.chunked = network.NewChunkedReader(r.br)
		resp.Body = resp.chunked
		return nil
	}
	if resp.Header.Has(protocol.HeaderContentLength) {
		n, err := resp.Header.GetLong(protocol.HeaderContentLength, 0)
		if err != nil {
			return err
		}
		if n < 0 {
			return e.NewProtocolError(fmt.Sprintf("negative Content-Length %d", n), nil)
		}
		resp.Body = network.NewLimitedReader(r.br, n)
		return nil
	}
	resp.Body = r.br
	return nil
}

func (r *Request) fail(err error) error {
	_ = r.Close()
	return err
}

// Close 关闭连接，可重复调用
func (r *Request) Close() error {
	if r.state == Closed {
		return nil
	}
	r.state = Closed
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

type bodyWriter struct {
	r *Request
}

func (b *bodyWriter) Write(p []byte) (int, error) {
	if b.r.state != RequestHeadersSent {
		return 0, e.NewUsageError(fmt.Sprintf("request body closed in state %s", b.r.state))
	}
	return b.r.w.Write(p)
}

// Close 结束请求体，不关闭连接
func (b *bodyWriter) Close() error {
	return b.r.finishBody()
}
