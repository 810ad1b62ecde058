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
	"io"
)

const initLineSize = 128

// LineReader 按行读取字节流，行以 \n、\r、\r\n 或流结束为界。
// 缓冲区归单个LineReader所有，不可在协程间共享。
type LineReader struct {
	r   *bufio.Reader
	buf []byte
}

func NewLineReader(r *bufio.Reader) *LineReader {
	return &LineReader{r: r}
}

func (lr *LineReader) Reader() *bufio.Reader {
	return lr.r
}

// ReadLine 返回不含行结束符的一行。流结束且未读到任何字节时返回io.EOF，
// 空行返回""和nil。
func (lr *LineReader) ReadLine() (string, error) {
	lr.buf = lr.buf[:0]
	for {
		c, err := lr.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(lr.buf) > 0 {
				return string(lr.buf), nil
			}
			return "", err
		}

		switch c {
		case '\n':
			return string(lr.buf), nil
		case '\r':
			if next, err := lr.r.Peek(1); err == nil && next[0] == '\n' {
				_, _ = lr.r.ReadByte()
			}
			return string(lr.buf), nil
		}
		lr.append(c)
	}
}

func (lr *LineReader) append(c byte) {
	if len(lr.buf) == cap(lr.buf) {
		size := cap(lr.buf) * 2
		if size == 0 {
			size = initLineSize
		}
		grown := make([]byte, len(lr.buf), size)
		copy(grown, lr.buf)
		lr.buf = grown
	}
	lr.buf = append(lr.buf, c)
}
