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

package crontab

import (
	"sync"

	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/robfig/cron/v3"
)

const timeStandard = "2006-01-02 15:04:05"

// CronManger 秒级cron调度，Close后不可再Start
type CronManger struct {
	name    string
	logger  logger.ILog
	cron    *cron.Cron
	lock    sync.Mutex
	running bool
	closed  bool
}

func NewCronTabManger(name string, log logger.ILog) *CronManger {
	if log == nil {
		log = logger.DefaultLogger()
	}
	return &CronManger{name: name, logger: log, cron: cron.New(cron.WithSeconds())}
}

func (c *CronManger) Name() string {
	return c.name
}

func (c *CronManger) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.running || c.closed {
		return nil
	}
	c.running = true
	c.cron.Start()
	return nil
}

// Close 停止调度并等待正在执行的任务结束
func (c *CronManger) Close() {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	running := c.running
	c.running = false
	c.lock.Unlock()

	if running {
		<-c.cron.Stop().Done()
	}
}

func (c *CronManger) AddCronJob(spec string, job cron.Job) (cron.EntryID, error) {
	eid, err := c.cron.AddJob(spec, job)
	if err != nil {
		c.logger.Error("[Crontab] [%s] add crontab failed. spec=%s. err=%v", c.name, spec, err)
		return eid, err
	}
	c.logger.Info("[Crontab] [%s] add crontab. spec=%s. jobId=%v", c.name, spec, eid)
	return eid, nil
}

func (c *CronManger) AddFunc(spec string, fn func()) (cron.EntryID, error) {
	return c.AddCronJob(spec, cron.FuncJob(fn))
}

func (c *CronManger) RemoveCronJob(id cron.EntryID) {
	c.cron.Remove(id)
}

// NextTime 任务下一次执行时间，调度未启动时为零值
func (c *CronManger) NextTime(id cron.EntryID) string {
	next := c.cron.Entry(id).Next
	if next.IsZero() {
		return ""
	}
	return next.Format(timeStandard)
}

func (c *CronManger) Len() int {
	return len(c.cron.Entries())
}
