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

package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	golocalv1 "github.com/caiflower/rawhttp/pkg/golocal/v1"
	"github.com/caiflower/rawhttp/pkg/crontab"
	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/pkg/safego"
	"github.com/caiflower/rawhttp/pkg/tools"
	"github.com/caiflower/rawhttp/web/protocol"
	"github.com/caiflower/rawhttp/web/protocol/http1"
	"github.com/caiflower/rawhttp/web/server/config"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

var ErrServerStarted = errors.New("netx: server already started")

// HttpServer 多端口、多网卡监听的HTTP/1.x服务器，每个端口独立限制活跃连接数
type HttpServer struct {
	options *config.Options
	logger  logger.ILog
	handler http1.Handler
	engine  *http1.Server
	metric  *ServerMetric
	cron    *crontab.CronManger
	reject  []byte

	lock      sync.Mutex
	gates     []*gate
	listeners []net.Listener
	started   bool
	draining  int32
	workers   sync.WaitGroup
}

func NewHttpServer(options config.Options, handler http1.Handler) *HttpServer {
	_ = tools.DoTagFunc(&options, []tools.TagFunc{tools.SetDefaultValueIfNil})

	s := &HttpServer{
		options: &options,
		logger:  logger.DefaultLogger(),
		handler: handler,
	}

	var registerer prometheus.Registerer
	if options.EnableMetrics {
		registerer = prometheus.DefaultRegisterer
	}
	s.metric = NewServerMetric(options.Name, registerer)

	s.engine = &http1.Server{
		Handler:        handler,
		Name:           options.ServerName,
		DisableChunked: options.DisableChunked,
		HeaderTraceID:  options.HeaderTraceID,
		BufferSize:     options.BufferSize,
		Logger:         s.logger,
		OnRequestDone: func(req *http1.Request) {
			s.metric.request(req.Method(), req.Status())
		},
	}

	sb := strings.Builder{}
	sb.WriteString(protocol.HTTP11 + " 503 Service Unavailable" + protocol.CRLF)
	if options.ServerName != "" {
		sb.WriteString(protocol.HeaderServer + ": " + options.ServerName + protocol.CRLF)
	}
	sb.WriteString(protocol.HeaderConnection + ": " + protocol.ConnectionClose + protocol.CRLF)
	sb.WriteString(protocol.HeaderContentLengthOut + ": 0" + protocol.CRLF + protocol.CRLF)
	s.reject = []byte(sb.String())

	return s
}

func (s *HttpServer) Name() string {
	return fmt.Sprintf("RAW_HTTP_SERVER:%s", s.options.Name)
}

func (s *HttpServer) Options() config.Options {
	return *s.options
}

func (s *HttpServer) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started {
		return ErrServerStarted
	}

	ips, err := resolveInterfaces(context.Background(), s.options.Interfaces)
	if err != nil {
		return err
	}

	var (
		gates     []*gate
		listeners []net.Listener
	)
	for _, port := range s.options.Ports {
		g := newGate(port, s.options.MaxConnsPerPort)
		for _, ip := range ips {
			ln, err := listen(ip, port, s.options.Backlog)
			if err != nil {
				for _, opened := range listeners {
					_ = opened.Close()
				}
				return fmt.Errorf("listen on %s: %w", net.JoinHostPort(ip.String(), fmt.Sprint(port)), err)
			}
			g.listeners = append(g.listeners, ln)
			listeners = append(listeners, ln)
		}
		gates = append(gates, g)
	}

	if s.options.StatsCron != "" {
		c := crontab.NewCronTabManger(s.Name(), s.logger)
		if _, err = c.AddFunc(s.options.StatsCron, s.logStats); err != nil {
			for _, ln := range listeners {
				_ = ln.Close()
			}
			return fmt.Errorf("invalid statsCron %q: %w", s.options.StatsCron, err)
		}
		s.cron = c
		_ = c.Start()
	}

	s.started = true
	s.gates = gates
	s.listeners = listeners

	addrs := make([]string, 0, len(listeners))
	for _, ln := range listeners {
		addrs = append(addrs, ln.Addr().String())
	}
	s.logger.Info(
		"\n***************************** raw http server startup *******************************************\n"+
			"************* web service [name:%s] listening on %s *********\n"+
			"*************************************************************************************************", s.options.Name, strings.Join(addrs, ","))

	for _, g := range gates {
		for _, ln := range g.listeners {
			g, ln := g, ln
			safego.Go(func() {
				s.acceptLoop(g, ln)
			})
		}
	}
	return nil
}

// Addrs 实际监听的地址，端口为0时可用于获取系统分配的端口
func (s *HttpServer) Addrs() []net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// ActiveConns 各端口当前活跃连接数
func (s *HttpServer) ActiveConns() map[int]int {
	s.lock.Lock()
	defer s.lock.Unlock()
	active := make(map[int]int, len(s.gates))
	for _, g := range s.gates {
		active[g.port] += g.Active()
	}
	return active
}

func (s *HttpServer) isDraining() bool {
	return atomic.LoadInt32(&s.draining) == 1
}

func (s *HttpServer) acceptLoop(g *gate, ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isDraining() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				if delay == 0 {
					delay = minAcceptDelay
				} else if delay *= 2; delay > maxAcceptDelay {
					delay = maxAcceptDelay
				}
				s.logger.Warn("accept on %s failed, retrying in %s. Error: %s", ln.Addr(), delay, err.Error())
				time.Sleep(delay)
				continue
			}
			s.logger.Error("accept on %s stopped. Error: %s", ln.Addr(), err.Error())
			s.handler.HandleException(context.Background(), err)
			return
		}
		delay = 0
		s.admit(g, conn)
	}
}

func (s *HttpServer) admit(g *gate, conn net.Conn) {
	if !g.acquire() {
		s.metric.rejected(g.port)
		s.logger.Warn("port %d reached %d active connections, rejecting %s", g.port, g.ceiling, conn.RemoteAddr())
		s.rejectConn(conn)
		return
	}

	// draining与workers.Add在同一把锁内，Shutdown开始Wait后不会再有新的worker
	s.lock.Lock()
	if s.isDraining() {
		s.lock.Unlock()
		g.release()
		_ = conn.Close()
		return
	}
	s.workers.Add(1)
	s.lock.Unlock()

	s.metric.accepted(g.port)
	safego.Go(func() {
		defer s.workers.Done()
		defer s.metric.released(g.port)
		defer g.release()

		golocalv1.PutConnID(tools.GenerateId("conn"))
		if err := s.engine.Serve(context.Background(), conn); err != nil {
			s.logger.Debug("connection %s closed. Error: %s", conn.RemoteAddr(), err.Error())
		}
	})
}

// rejectConn 同步写出503后关闭，写超时由rejectTimeout限制
func (s *HttpServer) rejectConn(conn net.Conn) {
	if s.options.RejectTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.options.RejectTimeout))
	}
	if _, err := conn.Write(s.reject); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("write 503 to %s failed. Error: %s", conn.RemoteAddr(), err.Error())
	}
	_ = conn.Close()
}

func (s *HttpServer) logStats() {
	for port, active := range s.ActiveConns() {
		s.logger.Info("[%s] port %d active connections %d", s.options.Name, port, active)
	}
}

// Close 停止接收新连接，已建立的连接继续处理直到结束
func (s *HttpServer) Close() {
	s.logger.Info("      **** raw http server shutdown ****")
	s.lock.Lock()
	atomic.StoreInt32(&s.draining, 1)
	listeners := s.listeners
	s.listeners = nil
	c := s.cron
	s.cron = nil
	s.lock.Unlock()

	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			s.logger.Warn("close listener %s failed. Error: %s", ln.Addr(), err.Error())
		}
	}
	if c != nil {
		c.Close()
	}
}

// Shutdown 关闭监听并等待所有连接处理结束
func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.Close()

	done := make(chan struct{})
	safego.Go(func() {
		s.workers.Wait()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
