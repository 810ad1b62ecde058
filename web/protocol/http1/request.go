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
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/caiflower/rawhttp/web/e"
	"github.com/caiflower/rawhttp/web/network"
	"github.com/caiflower/rawhttp/web/protocol"
)

// Request 一次请求及其响应。只在所属连接的协程内使用。
type Request struct {
	c       *conn
	ctx     context.Context
	line    protocol.RequestLine
	header  *protocol.HeaderSet
	body    io.Reader
	traceID string
	keep    bool

	replied    bool
	code       int
	reason     string
	length     int64
	respHeader *protocol.HeaderSet
	buffered   bool
	committed  bool
	chunked    bool
	out        *network.Writer
	stream     *outputStream
	closed     bool
	err        error
}

func newRequest(ctx context.Context, c *conn, line protocol.RequestLine, header *protocol.HeaderSet) *Request {
	return &Request{
		c:          c,
		ctx:        ctx,
		line:       line,
		header:     header,
		length:     -1,
		respHeader: protocol.NewHeaderSet(),
	}
}

func (r *Request) Method() string {
	return r.line.Method
}

func (r *Request) Target() string {
	return r.line.Target
}

// Path 去掉查询串后的target
func (r *Request) Path() string {
	path, _, _ := strings.Cut(r.line.Target, "?")
	return path
}

func (r *Request) RawQuery() string {
	_, query, _ := strings.Cut(r.line.Target, "?")
	return query
}

func (r *Request) Version() string {
	return r.line.Version
}

func (r *Request) Header() *protocol.HeaderSet {
	return r.header
}

func (r *Request) Get(key string) string {
	return r.header.Value(key)
}

// Body 请求体，没有Content-Length也不是chunked时为nil
func (r *Request) Body() io.Reader {
	return r.body
}

func (r *Request) RemoteAddr() net.Addr {
	return r.c.raw.RemoteAddr()
}

func (r *Request) Context() context.Context {
	return r.ctx
}

func (r *Request) TraceID() string {
	return r.traceID
}

func (r *Request) Replied() bool {
	return r.replied
}

// KeepAlive 当前判定的连接复用结果，Close之后为最终结果
func (r *Request) KeepAlive() bool {
	return r.keep
}

// Status 已回复的状态码，未回复时为0
func (r *Request) Status() int {
	return r.code
}

// Reply 设置响应状态，length<0表示长度未知。每个请求只能调用一次。
func (r *Request) Reply(code int, reason string, length int64) error {
	if r.closed {
		return e.NewUsageError("reply on closed request")
	}
	if r.replied {
		return e.NewUsageError(fmt.Sprintf("request already replied with %d", r.code))
	}
	if code < 100 || code > 999 {
		return e.NewUsageError(fmt.Sprintf("invalid status code %d", code))
	}
	if reason == "" {
		reason = http.StatusText(code)
	}
	r.replied = true
	r.code = code
	r.reason = reason
	r.length = length
	return nil
}

// AddHeader 添加响应头部，必须在获取输出流之前。帧相关头部由引擎生成。
func (r *Request) AddHeader(key, value string) error {
	if r.committed || r.stream != nil {
		return e.NewUsageError(fmt.Sprintf("header %s added after output started", key))
	}
	if strings.EqualFold(key, protocol.HeaderContentLength) || strings.EqualFold(key, protocol.HeaderTransferEncoding) {
		return e.NewUsageError(fmt.Sprintf("header %s is derived from Reply length", key))
	}
	if strings.EqualFold(key, protocol.HeaderConnection) {
		if protocol.ContainsToken(value, protocol.ConnectionClose) {
			r.keep = false
		}
		return nil
	}
	r.respHeader.Add(key, value)
	return nil
}

// BufferOutput 长度未知的响应先缓存在内存，关闭时按Content-length输出，连接可复用
func (r *Request) BufferOutput() error {
	if r.stream != nil || r.committed {
		return e.NewUsageError("output already started")
	}
	r.buffered = true
	return nil
}

// OutputStream 提交响应头部并返回响应体输出流，关闭输出流即关闭请求
func (r *Request) OutputStream() (io.WriteCloser, error) {
	if !r.replied {
		return nil, e.NewUsageError("output stream requested before reply")
	}
	if r.closed {
		return nil, e.NewUsageError("output stream requested on closed request")
	}
	if r.stream != nil {
		return r.stream, nil
	}

	if r.buffered && r.length < 0 {
		r.out = network.NewStandaloneWriter()
	} else if err := r.commit(); err != nil {
		r.fail(err)
		return nil, err
	}
	r.stream = &outputStream{r: r}
	return r.stream, nil
}

// Close 结束请求：未回复时补发500，完成帧并刷出，返回连接能否复用。可重复调用。
func (r *Request) Close() bool {
	if r.closed {
		return r.keep
	}
	r.closed = true

	if !r.replied {
		_ = r.Reply(http.StatusInternalServerError, "", 0)
	}

	w := r.c.w
	if r.buffered && !r.committed {
		var body []byte
		if r.out != nil {
			body = r.out.Bytes()
		}
		if r.length < 0 {
			r.length = int64(len(body))
		}
		if err := r.commit(); err != nil {
			r.fail(err)
			return false
		}
		if !r.noBody() {
			if _, err := w.Write(body); err != nil {
				r.fail(err)
				return false
			}
		}
	} else if err := r.commit(); err != nil {
		r.fail(err)
		return false
	}

	if err := w.Finish(); err != nil {
		r.fail(err)
		return false
	}
	if !w.Complete() {
		r.keep = false
	}
	w.SetLimit(-1)
	return r.keep
}

func (r *Request) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.keep = false
	r.closed = true
}

func (r *Request) noBody() bool {
	return r.line.Method == protocol.MethodHead || !bodyAllowed(r.code)
}

func bodyAllowed(code int) bool {
	return code >= 200 && code != http.StatusNoContent && code != http.StatusNotModified
}

// commit 写出状态行和头部，并按帧方式设置连接输出流
func (r *Request) commit() error {
	if r.committed {
		return nil
	}
	r.committed = true

	if d, ok := r.body.(network.Drainer); ok && !d.Drained() {
		r.keep = false
	}

	var framing string
	switch {
	case !bodyAllowed(r.code):
	case r.length >= 0:
		framing = protocol.HeaderContentLengthOut + ": " + strconv.FormatInt(r.length, 10)
	case r.line.Version == protocol.HTTP11 && !r.c.srv.DisableChunked:
		framing = protocol.HeaderTransferEncoding + ": " + protocol.EncodingChunked
		r.chunked = true
	default:
		r.keep = false
	}

	w := r.c.w
	w.SetLimit(-1)
	sb := strings.Builder{}
	sb.WriteString(r.line.Version + " " + strconv.Itoa(r.code) + " " + r.reason + protocol.CRLF)
	if name := r.c.srv.Name; name != "" {
		sb.WriteString(protocol.HeaderServer + ": " + name + protocol.CRLF)
	}
	switch {
	case !r.keep:
		sb.WriteString(protocol.HeaderConnection + ": " + protocol.ConnectionClose + protocol.CRLF)
	case r.line.Version == protocol.HTTP10:
		sb.WriteString(protocol.HeaderConnection + ": " + protocol.ConnectionKeepAlive + protocol.CRLF)
	}
	sb.WriteString(r.respHeader.String())
	if framing != "" {
		sb.WriteString(framing + protocol.CRLF)
	}
	sb.WriteString(protocol.CRLF)

	if _, err := w.WriteString(sb.String()); err != nil {
		return err
	}

	switch {
	case r.noBody():
		r.chunked = false
		w.SetLimit(0)
	case r.chunked:
		return w.SetChunked(true)
	case r.length >= 0:
		w.SetLimit(r.length)
	}
	return nil
}

type outputStream struct {
	r *Request
}

func (s *outputStream) Write(p []byte) (int, error) {
	r := s.r
	if r.closed {
		return 0, e.NewUsageError("write on closed request")
	}
	if r.out != nil {
		return r.out.Write(p)
	}
	// HEAD和无响应体的状态码丢弃写入
	if r.noBody() {
		return len(p), nil
	}
	return r.c.w.Write(p)
}

func (s *outputStream) Close() error {
	r := s.r
	if r.closed {
		return r.err
	}
	r.Close()
	return r.err
}
