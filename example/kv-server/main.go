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
	"time"

	"github.com/caiflower/rawhttp/global"
	"github.com/caiflower/rawhttp/global/config"
	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/pkg/tools"
	"github.com/caiflower/rawhttp/web/server/netx"
	"github.com/patrickmn/go-cache"
)

const shutdownTimeout = 10 * time.Second

// gracefulServer 退出时等待进行中的连接处理完
type gracefulServer struct {
	*netx.HttpServer
}

func (s gracefulServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("http server shutdown timeout. Error: %s", err.Error())
	}
}

func main() {
	defaultConfig := config.DefaultConfig{}
	if err := config.LoadDefaultConfig(&defaultConfig); err != nil {
		logger.Warn("load default config failed, using defaults. Error: %s", err.Error())
		_ = tools.DoTagFunc(&defaultConfig, []tools.TagFunc{tools.SetDefaultValueIfNil})
	}
	logger.InitLogger(&defaultConfig.LoggerConfig)
	defer logger.DefaultLogger().Close()

	handler := newKVHandler(cache.New(cache.NoExpiration, time.Minute))
	server := netx.NewHttpServer(defaultConfig.ServerConfig, handler)
	handler.activeConns = server.ActiveConns

	global.DefaultResourceManger.AddDaemon(gracefulServer{server})
	global.DefaultResourceManger.Signal()
}
