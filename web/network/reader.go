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
	"fmt"
	"io"
)

// Drainer 请求体是否已从共享连接流中读完
type Drainer interface {
	Drained() bool
}

// LimitedReader 读取Content-Length框定的请求体，提前EOF视为协议错误
type LimitedReader struct {
	r         io.Reader
	remaining int64
	err       error
}

func NewLimitedReader(r io.Reader, n int64) *LimitedReader {
	return &LimitedReader{r: r, remaining: n}
}

func (lr *LimitedReader) Read(p []byte) (int, error) {
	if lr.err != nil {
		return 0, lr.err
	}
	if lr.remaining <= 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > lr.remaining {
		p = p[:lr.remaining]
	}

	n, err := lr.r.Read(p)
	lr.remaining -= int64(n)
	if err == io.EOF {
		if lr.remaining > 0 {
			lr.err = premature(err, fmt.Sprintf("body, %d bytes missing", lr.remaining))
			return n, lr.err
		}
		err = nil
	}
	if err != nil {
		lr.err = err
	}
	return n, err
}

func (lr *LimitedReader) Remaining() int64 {
	return lr.remaining
}

func (lr *LimitedReader) Drained() bool {
	return lr.remaining <= 0
}
