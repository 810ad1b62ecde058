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

package global

import (
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/pkg/syncx"
)

// DefaultResourceManger
// 用于守护进程的优雅退出，如HTTP Server、cron

type Resource interface {
	Close()
}

type DaemonResource interface {
	Resource
	Name() string
	Start() error
}

type entry struct {
	resource Resource
	daemon   DaemonResource
	order    int
}

func (en *entry) name() string {
	if en.daemon != nil {
		return en.daemon.Name()
	}
	return "resource"
}

type resourceManger struct {
	lock    sync.Locker
	entries []entry
	running bool
	signals chan os.Signal
}

var DefaultResourceManger = NewResourceManger()

func NewResourceManger() *resourceManger {
	return &resourceManger{lock: syncx.NewSpinLock(), signals: make(chan os.Signal, 1)}
}

func (rm *resourceManger) contains(r Resource) bool {
	for _, en := range rm.entries {
		if en.resource == r {
			return true
		}
	}
	return false
}

// Add 注册只需要关闭的资源，最后关闭
func (rm *resourceManger) Add(resource Resource) {
	rm.lock.Lock()
	defer rm.lock.Unlock()

	if !rm.contains(resource) {
		rm.entries = append(rm.entries, entry{resource: resource, order: 1000000000})
	}
}

// AddDaemonWithOrder order大的先启动、先关闭
func (rm *resourceManger) AddDaemonWithOrder(daemon DaemonResource, order int) {
	rm.lock.Lock()
	defer rm.lock.Unlock()

	if !rm.contains(daemon) {
		rm.entries = append(rm.entries, entry{resource: daemon, daemon: daemon, order: order})
	}
}

func (rm *resourceManger) AddDaemon(daemon DaemonResource) {
	rm.AddDaemonWithOrder(daemon, 100000)
}

// Signal 启动所有守护进程，阻塞到收到退出信号后依次关闭
func (rm *resourceManger) Signal() {
	if err := rm.start(); err != nil {
		logger.Fatal("Signal failed. Error: %s", err.Error())
		return
	}

	signal.Notify(rm.signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(rm.signals)

	s := <-rm.signals
	logger.Info("Accept signal %s. The application is shutting down...", s)
	rm.destroy()
}

func (rm *resourceManger) start() error {
	rm.lock.Lock()
	defer rm.lock.Unlock()
	if rm.running {
		return nil
	}
	rm.running = true

	sort.SliceStable(rm.entries, func(i, j int) bool {
		return rm.entries[i].order > rm.entries[j].order
	})
	for _, en := range rm.entries {
		if en.daemon == nil {
			continue
		}
		if err := en.daemon.Start(); err != nil {
			logger.Error("Start '%s' resource failed. Error: %s", en.name(), err.Error())
			return err
		}
		logger.Info("Start '%s' resource success.", en.name())
	}
	return nil
}

func (rm *resourceManger) destroy() {
	rm.lock.Lock()
	entries := append([]entry(nil), rm.entries...)
	rm.running = false
	rm.lock.Unlock()

	for _, en := range entries {
		en.resource.Close()
	}
}
