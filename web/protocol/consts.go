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

const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"

	// 合成头部，只进入查找索引，不参与有序序列化
	KeyMethod   = ":method"
	KeyTarget   = ":target"
	KeyProtocol = ":protocol"
	KeyStatus   = ":status"
	KeyReason   = ":reason"

	HeaderHost             = "Host"
	HeaderServer           = "Server"
	HeaderUserAgent        = "User-Agent"
	HeaderConnection       = "Connection"
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderExpect           = "Expect"

	// 响应中由引擎写出的Content-length保持该拼写
	HeaderContentLengthOut = "Content-length"

	ConnectionClose     = "close"
	ConnectionKeepAlive = "Keep-Alive"
	EncodingChunked     = "chunked"
	ExpectContinue      = "100-continue"

	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
	MethodConnect = "CONNECT"

	CRLF = "\r\n"
)

// MethodHasBody 该方法的请求通常携带请求体
func MethodHasBody(method string) bool {
	switch method {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}
