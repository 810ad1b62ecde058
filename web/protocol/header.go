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

package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/caiflower/rawhttp/web/e"
	"golang.org/x/exp/constraints"
)

type Header struct {
	Key   string
	Value string
}

// HeaderSet 按到达顺序保存的头部，附带大小写无关的查找索引。
// 索引同时保存原始key和小写key；AddInternal写入的合成头部只进索引。
type HeaderSet struct {
	entries []Header
	index   map[string]string
}

func NewHeaderSet() *HeaderSet {
	return &HeaderSet{index: make(map[string]string)}
}

func (h *HeaderSet) Reset() {
	h.entries = h.entries[:0]
	if h.index == nil {
		h.index = make(map[string]string)
		return
	}
	for k := range h.index {
		delete(h.index, k)
	}
}

func (h *HeaderSet) Add(key, value string) {
	h.entries = append(h.entries, Header{Key: key, Value: value})
	h.AddInternal(key, value)
}

func (h *HeaderSet) AddInternal(key, value string) {
	if h.index == nil {
		h.index = make(map[string]string)
	}
	h.index[key] = value
	if lower := strings.ToLower(key); lower != key {
		h.index[lower] = value
	}
}

func (h *HeaderSet) Get(key string) (string, bool) {
	if v, ok := h.index[key]; ok {
		return v, true
	}
	v, ok := h.index[strings.ToLower(key)]
	return v, ok
}

// Value 同Get，不存在时返回""
func (h *HeaderSet) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

func (h *HeaderSet) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

func (h *HeaderSet) GetInt(key string, def int) (int, error) {
	return parseNumber(h, key, def, strconv.IntSize)
}

func (h *HeaderSet) GetLong(key string, def int64) (int64, error) {
	return parseNumber(h, key, def, 64)
}

func parseNumber[T constraints.Signed](h *HeaderSet, key string, def T, bits int) (T, error) {
	v, ok := h.Get(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, bits)
	if err != nil {
		return def, e.NewProtocolError(fmt.Sprintf("header %s is not numeric: %q", key, v), err)
	}
	return T(n), nil
}

// Contains 判断逗号分隔的头部值中是否包含token，大小写无关
func (h *HeaderSet) Contains(key, token string) bool {
	v, ok := h.Get(key)
	return ok && ContainsToken(v, token)
}

// ContainsToken 逗号分隔的列表value中是否有与token大小写无关相等的一项
func ContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

func (h *HeaderSet) Len() int {
	return len(h.entries)
}

func (h *HeaderSet) Entries() []Header {
	entries := make([]Header, len(h.entries))
	copy(entries, h.entries)
	return entries
}

func (h *HeaderSet) Each(fn func(key, value string) bool) {
	for _, kv := range h.entries {
		if !fn(kv.Key, kv.Value) {
			return
		}
	}
}

// WriteTo 按到达顺序输出 "key: value\r\n"，合成头部不输出
func (h *HeaderSet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, kv := range h.entries {
		n, err := io.WriteString(w, kv.Key+": "+kv.Value+CRLF)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *HeaderSet) String() string {
	sb := strings.Builder{}
	_, _ = h.WriteTo(&sb)
	return sb.String()
}

// Parse 读取头部块直到空行，替换当前内容。不支持折行。
func (h *HeaderSet) Parse(r *bufio.Reader) error {
	h.Reset()

	var key, value []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return truncated(err, "header block")
		}
		switch c {
		case '\r':
			return expectLF(r)
		case '\n':
			return nil
		}

		key = key[:0]
		for c != ':' {
			if c == '\r' || c == '\n' {
				return e.NewProtocolError(fmt.Sprintf("header line without colon: %q", string(key)), nil)
			}
			key = append(key, c)
			if c, err = r.ReadByte(); err != nil {
				return truncated(err, "header name")
			}
		}

		name := strings.TrimSpace(string(key))
		if name == "" {
			return e.NewProtocolError("empty header name", nil)
		}

		value = value[:0]
	valueLoop:
		for {
			if c, err = r.ReadByte(); err != nil {
				return truncated(err, "header value")
			}
			switch c {
			case '\r':
				if err = expectLF(r); err != nil {
					return err
				}
				break valueLoop
			case '\n':
				break valueLoop
			}
			value = append(value, c)
		}

		h.Add(name, strings.TrimSpace(string(value)))
	}
}

func expectLF(r *bufio.Reader) error {
	c, err := r.ReadByte()
	if err != nil {
		return truncated(err, "line terminator")
	}
	if c != '\n' {
		return e.NewProtocolError(fmt.Sprintf("bare CR followed by %q", c), nil)
	}
	return nil
}

func truncated(err error, where string) error {
	if err == io.EOF {
		return e.NewProtocolError("unexpected end of stream in "+where, io.ErrUnexpectedEOF)
	}
	return err
}
