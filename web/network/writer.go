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

package network

import (
	"errors"
	"fmt"
	"io"

	"github.com/caiflower/rawhttp/web/e"
)

const (
	DefaultBufferSize = 4096

	hexChars = "0123456789abcdef"
)

var (
	ErrWriterClosed = errors.New("network: writer closed")

	lastChunk = []byte("0\r\n\r\n")
)

type flusher interface {
	Flush() error
}

// Writer 带缓冲的输出流，可选字节数上限。
//
// 绑定sink时缓冲区写满即刷出；不绑定sink时（standalone）缓冲区无限增长，
// 用于必须先得到长度才能写头部的场景。
//
// 开启chunked后每次刷出组成一个分块：缓冲区头部预留
// hexDigits(size)+2 字节，尾部预留2字节，长度前缀倒写进预留区，
// 分块无需二次拷贝。
type Writer struct {
	sink    io.Writer
	buf     []byte
	reserve int
	pos     int

	limit   int64
	count   int64
	chunked bool
	closed  bool
}

func NewWriter(sink io.Writer, size int) *Writer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	reserve := hexDigits(size) + 2
	return &Writer{
		sink:    sink,
		buf:     make([]byte, reserve+size+2),
		reserve: reserve,
		pos:     reserve,
		limit:   -1,
	}
}

func NewStandaloneWriter() *Writer {
	return &Writer{limit: -1}
}

func hexDigits(n int) int {
	digits := 1
	for n >= 16 {
		n >>= 4
		digits++
	}
	return digits
}

func (w *Writer) standalone() bool {
	return w.sink == nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	if w.limit >= 0 && w.count+int64(len(p)) > w.limit {
		return 0, e.NewError(e.OutputLimitExceeded,
			fmt.Sprintf("writing %d bytes exceeds limit %d, %d already written", len(p), w.limit, w.count), nil)
	}

	if w.standalone() {
		w.buf = append(w.buf, p...)
		w.count += int64(len(p))
		return len(p), nil
	}

	written := 0
	end := len(w.buf) - 2
	for len(p) > 0 {
		if w.pos == end {
			if err := w.flushBuffer(); err != nil {
				return written, err
			}
		}
		n := copy(w.buf[w.pos:end], p)
		w.pos += n
		w.count += int64(n)
		written += n
		p = p[n:]
	}
	return written, nil
}

func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// flushBuffer 把缓冲数据交给sink，chunked时加上分块框架
func (w *Writer) flushBuffer() error {
	n := w.pos - w.reserve
	if n == 0 {
		return nil
	}

	start, end := w.reserve, w.pos
	if w.chunked {
		start -= 2
		w.buf[start] = '\r'
		w.buf[start+1] = '\n'
		for v := n; ; v >>= 4 {
			start--
			w.buf[start] = hexChars[v&0xf]
			if v < 16 {
				break
			}
		}
		w.buf[end] = '\r'
		w.buf[end+1] = '\n'
		end += 2
	}

	w.pos = w.reserve
	_, err := w.sink.Write(w.buf[start:end])
	return err
}

func (w *Writer) Flush() error {
	if w.standalone() {
		return nil
	}
	if err := w.flushBuffer(); err != nil {
		return err
	}
	if f, ok := w.sink.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// SetChunked 切换分块编码，切换前先按当前模式刷出缓冲数据
func (w *Writer) SetChunked(on bool) error {
	if on == w.chunked {
		return nil
	}
	if on && w.standalone() {
		return e.NewUsageError("standalone writer can not be chunked")
	}
	if err := w.flushBuffer(); err != nil {
		return err
	}
	w.chunked = on
	return nil
}

func (w *Writer) Chunked() bool {
	return w.chunked
}

// Finish 结束分块输出：刷出剩余数据并写出 "0\r\n\r\n"，之后回到普通模式
func (w *Writer) Finish() error {
	if !w.chunked {
		return w.Flush()
	}
	if err := w.flushBuffer(); err != nil {
		return err
	}
	w.chunked = false
	if _, err := w.sink.Write(lastChunk); err != nil {
		return err
	}
	if f, ok := w.sink.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close 结束分块、刷出缓冲并关闭sink
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.Finish()
	w.closed = true
	if c, ok := w.sink.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// SetLimit n>=0 时从此刻开始计数并限制最多写入n字节，n<0取消限制
func (w *Writer) SetLimit(n int64) {
	w.limit = n
	w.count = 0
}

func (w *Writer) Limit() int64 {
	return w.limit
}

// Complete 未设置上限，或恰好写满上限时为true
func (w *Writer) Complete() bool {
	return w.limit < 0 || w.count == w.limit
}

// Written 自创建、Reset或SetLimit以来写入的字节数
func (w *Writer) Written() int64 {
	return w.count
}

func (w *Writer) Bytes() []byte {
	if w.standalone() {
		return w.buf
	}
	return w.buf[w.reserve:w.pos]
}

func (w *Writer) Len() int {
	return len(w.Bytes())
}

// Reset 丢弃缓冲数据并清除上限、分块和关闭状态
func (w *Writer) Reset() {
	if w.standalone() {
		w.buf = w.buf[:0]
	} else {
		w.pos = w.reserve
	}
	w.limit = -1
	w.count = 0
	w.chunked = false
	w.closed = false
}
