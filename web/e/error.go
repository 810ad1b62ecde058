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

package e

import (
	"errors"
	"net/http"
)

// Error 协议引擎的错误，Code为对端应收到的状态码
type Error interface {
	error
	GetCode() int
	GetType() string
	GetMessage() string
	GetCause() error
	Unwrap() error
}

type engineError struct {
	Code    int
	Type    string
	Message string
	Cause   error
}

func (e *engineError) GetCode() int {
	return e.Code
}

func (e *engineError) GetType() string {
	return e.Type
}

func (e *engineError) GetMessage() string {
	return e.Message
}

func (e *engineError) GetCause() error {
	return e.Cause
}

func (e *engineError) Unwrap() error {
	return e.Cause
}

func (e *engineError) Error() string {
	if e.Cause != nil {
		return e.Type + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Type + ": " + e.Message
}

type ErrorCode struct {
	Code int
	Type string
}

var (
	// Protocol 请求行、状态行、头部或分块格式错误，当前请求和连接不可恢复
	Protocol = &ErrorCode{Code: http.StatusBadRequest, Type: "ProtocolError"}
	// OutputLimitExceeded 写入超过声明的Content-Length
	OutputLimitExceeded = &ErrorCode{Code: http.StatusInternalServerError, Type: "OutputLimitExceeded"}
	// Usage API使用错误，如重复回复、回复发送后再添加头部
	Usage = &ErrorCode{Code: http.StatusInternalServerError, Type: "UsageError"}
)

func NewError(errCode *ErrorCode, msg string, cause error) Error {
	return &engineError{
		Code:    errCode.Code,
		Type:    errCode.Type,
		Message: msg,
		Cause:   cause,
	}
}

func NewProtocolError(msg string, cause error) Error {
	return NewError(Protocol, msg, cause)
}

func NewUsageError(msg string) Error {
	return NewError(Usage, msg, nil)
}

func Is(err error, errCode *ErrorCode) bool {
	var target Error
	if errors.As(err, &target) {
		return target.GetType() == errCode.Type
	}
	return false
}

func IsProtocol(err error) bool {
	return Is(err, Protocol)
}

func IsOutputLimit(err error) bool {
	return Is(err, OutputLimitExceeded)
}

func IsUsage(err error) bool {
	return Is(err, Usage)
}
