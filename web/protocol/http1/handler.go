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

	"github.com/caiflower/rawhttp/pkg/logger"
)

// Handler 应用层处理器。
//
// Handle 必须恰好调用一次 req.Reply，可在获取输出流前添加头部，写完响应体后关闭请求。
// 未回复就返回时引擎补发500。返回错误或panic会交给 HandleException，连接随后关闭。
//
// HandleContinue 在请求带 Expect: 100-continue 时先于 Handle 调用。返回false时
// 应已在其中回复最终状态，否则引擎补发417，连接随后关闭。
type Handler interface {
	Handle(req *Request) error
	HandleException(ctx context.Context, err error)
	HandleContinue(req *Request) bool
}

// HandlerFunc 把普通函数适配为Handler：异常写日志，100-continue一律放行
type HandlerFunc func(req *Request) error

func (f HandlerFunc) Handle(req *Request) error {
	return f(req)
}

func (f HandlerFunc) HandleException(ctx context.Context, err error) {
	logger.Error("handle request failed. Error: %s", err.Error())
}

func (f HandlerFunc) HandleContinue(req *Request) bool {
	return true
}
