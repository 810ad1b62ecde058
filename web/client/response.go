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
	"io"

	"github.com/caiflower/rawhttp/web/network"
	"github.com/caiflower/rawhttp/web/protocol"
)

type Response struct {
	protocol.StatusLine
	Header *protocol.HeaderSet
	// Body chunked已透明解码；没有Content-Length时读到连接关闭
	Body io.Reader

	chunked *network.ChunkedReader
}

func (r *Response) Get(key string) string {
	return r.Header.Value(key)
}

// Trailer chunked响应读完后的尾部头部，其它情况为空
func (r *Response) Trailer() *protocol.HeaderSet {
	if r.chunked == nil {
		return protocol.NewHeaderSet()
	}
	return r.chunked.Trailer()
}

func (r *Response) ReadAll() ([]byte, error) {
	return io.ReadAll(r.Body)
}
