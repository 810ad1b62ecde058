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
	"fmt"
	"strconv"
	"strings"

	"github.com/caiflower/rawhttp/web/e"
)

type RequestLine struct {
	Method  string
	Target  string
	Version string
}

type StatusLine struct {
	Version string
	Code    int
	Reason  string
}

// ParseVersion 只接受HTTP/1.x，1.0以外的次版本号按HTTP/1.1处理
func ParseVersion(s string) (string, error) {
	if !strings.HasPrefix(s, "HTTP/1.") || len(s) == len("HTTP/1.") {
		return "", e.NewProtocolError(fmt.Sprintf("unsupported protocol version %q", s), nil)
	}
	minor := s[len("HTTP/1."):]
	if _, err := strconv.ParseUint(minor, 10, 16); err != nil {
		return "", e.NewProtocolError(fmt.Sprintf("malformed protocol version %q", s), err)
	}
	if strings.TrimLeft(minor, "0") == "" {
		return HTTP10, nil
	}
	return HTTP11, nil
}

// ParseRequestLine 解析 "METHOD SP TARGET SP HTTP/1.x"
func ParseRequestLine(line string) (RequestLine, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return RequestLine{}, e.NewProtocolError(fmt.Sprintf("malformed request line %q", line), nil)
	}
	for _, c := range []byte(parts[0]) {
		if c < '!' || c > '~' {
			return RequestLine{}, e.NewProtocolError(fmt.Sprintf("malformed method %q", parts[0]), nil)
		}
	}
	version, err := ParseVersion(parts[2])
	if err != nil {
		return RequestLine{}, err
	}
	return RequestLine{Method: parts[0], Target: parts[1], Version: version}, nil
}

// ParseStatusLine 解析 "HTTP/1.x SP CODE [SP REASON]"
func ParseStatusLine(line string) (StatusLine, error) {
	versionStr, rest, ok := strings.Cut(line, " ")
	if !ok {
		return StatusLine{}, e.NewProtocolError(fmt.Sprintf("malformed status line %q", line), nil)
	}
	version, err := ParseVersion(versionStr)
	if err != nil {
		return StatusLine{}, err
	}
	codeStr, reason, _ := strings.Cut(rest, " ")
	if len(codeStr) != 3 {
		return StatusLine{}, e.NewProtocolError(fmt.Sprintf("malformed status code %q", codeStr), nil)
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 {
		return StatusLine{}, e.NewProtocolError(fmt.Sprintf("malformed status code %q", codeStr), err)
	}
	return StatusLine{Version: version, Code: code, Reason: reason}, nil
}

func (l RequestLine) String() string {
	return l.Method + " " + l.Target + " " + l.Version
}

func (l StatusLine) String() string {
	return l.Version + " " + strconv.Itoa(l.Code) + " " + l.Reason
}
