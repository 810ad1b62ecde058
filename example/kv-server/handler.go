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

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/pkg/tools"
	"github.com/caiflower/rawhttp/web/protocol"
	"github.com/caiflower/rawhttp/web/protocol/http1"
	"github.com/patrickmn/go-cache"
)

const (
	kvPrefix     = "/kv/"
	maxValueSize = 1 << 20
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type putResult struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
	TTL  string `json:"ttl,omitempty"`
}

type stats struct {
	Keys        int         `json:"keys"`
	ActiveConns map[int]int `json:"activeConns"`
}

type kvHandler struct {
	store  *cache.Cache
	logger logger.ILog
	// activeConns 由服务器提供，测试中可为空
	activeConns func() map[int]int
}

func newKVHandler(store *cache.Cache) *kvHandler {
	return &kvHandler{store: store, logger: logger.DefaultLogger()}
}

func (h *kvHandler) Handle(req *http1.Request) error {
	path := req.Path()
	switch {
	case path == "/stats":
		if req.Method() != protocol.MethodGet {
			return h.methodNotAllowed(req, protocol.MethodGet)
		}
		s := stats{Keys: h.store.ItemCount()}
		if h.activeConns != nil {
			s.ActiveConns = h.activeConns()
		}
		return writeJSON(req, http.StatusOK, s)
	case strings.HasPrefix(path, kvPrefix) && len(path) > len(kvPrefix):
		return h.handleKey(req, strings.TrimPrefix(path, kvPrefix))
	default:
		return writeJSON(req, http.StatusNotFound, errorBody{Code: http.StatusNotFound, Message: "no route for " + path})
	}
}

func (h *kvHandler) handleKey(req *http1.Request, key string) error {
	switch req.Method() {
	case protocol.MethodGet, protocol.MethodHead:
		v, ok := h.store.Get(key)
		if !ok {
			return writeJSON(req, http.StatusNotFound, errorBody{Code: http.StatusNotFound, Message: "key " + key + " not found"})
		}
		value := v.([]byte)
		if err := req.AddHeader("Content-Type", "application/octet-stream"); err != nil {
			return err
		}
		return write(req, http.StatusOK, value)
	case protocol.MethodPut:
		return h.put(req, key)
	case protocol.MethodDelete:
		h.store.Delete(key)
		return write(req, http.StatusNoContent, nil)
	default:
		return h.methodNotAllowed(req, "GET, HEAD, PUT, DELETE")
	}
}

func (h *kvHandler) put(req *http1.Request, key string) error {
	if req.Body() == nil {
		return writeJSON(req, http.StatusLengthRequired, errorBody{Code: http.StatusLengthRequired, Message: "PUT needs Content-Length or chunked body"})
	}

	ttl := cache.NoExpiration
	query, err := url.ParseQuery(req.RawQuery())
	if err != nil {
		return writeJSON(req, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
	}
	if s := query.Get("ttl"); s != "" {
		if ttl, err = time.ParseDuration(s); err != nil || ttl <= 0 {
			return writeJSON(req, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: fmt.Sprintf("invalid ttl %q", s)})
		}
	}

	value, err := io.ReadAll(io.LimitReader(req.Body(), maxValueSize+1))
	if err != nil {
		return err
	}
	if len(value) > maxValueSize {
		return writeJSON(req, http.StatusRequestEntityTooLarge, errorBody{Code: http.StatusRequestEntityTooLarge, Message: "value too large"})
	}

	h.store.Set(key, value, ttl)
	h.logger.Debug("put key %s, %d bytes", key, len(value))

	result := putResult{Key: key, Size: len(value)}
	if ttl > 0 {
		result.TTL = ttl.String()
	}
	return writeJSON(req, http.StatusCreated, result)
}

func (h *kvHandler) methodNotAllowed(req *http1.Request, allow string) error {
	if err := req.AddHeader("Allow", allow); err != nil {
		return err
	}
	return writeJSON(req, http.StatusMethodNotAllowed, errorBody{Code: http.StatusMethodNotAllowed, Message: req.Method() + " not allowed"})
}

func (h *kvHandler) HandleException(ctx context.Context, err error) {
	h.logger.Error("kv request failed. Error: %s", err.Error())
}

// HandleContinue 声明的值过大时直接拒绝，不接收请求体
func (h *kvHandler) HandleContinue(req *http1.Request) bool {
	n, err := req.Header().GetLong(protocol.HeaderContentLength, 0)
	if err == nil && n <= maxValueSize {
		return true
	}
	_ = writeJSON(req, http.StatusRequestEntityTooLarge, errorBody{Code: http.StatusRequestEntityTooLarge, Message: "value too large"})
	return false
}

func writeJSON(req *http1.Request, code int, v interface{}) error {
	body, err := tools.ToByte(v)
	if err != nil {
		return err
	}
	if err = req.AddHeader("Content-Type", "application/json"); err != nil {
		return err
	}
	return write(req, code, body)
}

func write(req *http1.Request, code int, body []byte) error {
	if err := req.Reply(code, "", int64(len(body))); err != nil {
		return err
	}
	out, err := req.OutputStream()
	if err != nil {
		return err
	}
	if _, err = out.Write(body); err != nil {
		return err
	}
	return out.Close()
}
