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

package config

import (
	"time"

	"github.com/caiflower/rawhttp/pkg/tools"
)

type Option func(*Options) *Options

type Options struct {
	Name            string        `yaml:"name" default:"default"`
	Interfaces      []string      `yaml:"interfaces" default:"0.0.0.0"` // 监听的网卡地址或主机名
	Ports           []int         `yaml:"ports" default:"8080"`
	MaxConnsPerPort int           `yaml:"maxConnsPerPort"` // 每个端口的最大活跃连接数，0不限制
	Backlog         int           `yaml:"backlog" default:"128"`
	ServerName      string        `yaml:"serverName" default:"rawhttp"` // Server响应头
	DisableChunked  bool          `yaml:"disableChunked"`
	HeaderTraceID   string        `yaml:"headerTraceID" default:"X-Request-Id"`
	RejectTimeout   time.Duration `yaml:"rejectTimeout" default:"2s"` // 写503的超时时间
	BufferSize      int           `yaml:"bufferSize" default:"4096"`
	StatsCron       string        `yaml:"statsCron"` // 连接统计日志的cron表达式，为空不开启
	EnableMetrics   bool          `yaml:"enableMetrics"`
}

func NewOptions(opts ...Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		options = opt(options)
	}
	_ = tools.DoTagFunc(options, []tools.TagFunc{tools.SetDefaultValueIfNil})
	return options
}

// LoadOptions 从yaml文件读取配置并补齐默认值
func LoadOptions(file string) (*Options, error) {
	options := &Options{}
	if err := tools.LoadConfig(file, options); err != nil {
		return nil, err
	}
	return options, nil
}

func WithName(name string) Option {
	return func(opts *Options) *Options {
		opts.Name = name
		return opts
	}
}

func WithInterfaces(interfaces ...string) Option {
	return func(opts *Options) *Options {
		opts.Interfaces = interfaces
		return opts
	}
}

func WithPorts(ports ...int) Option {
	return func(opts *Options) *Options {
		opts.Ports = ports
		return opts
	}
}

func WithMaxConnsPerPort(n int) Option {
	return func(opts *Options) *Options {
		opts.MaxConnsPerPort = n
		return opts
	}
}

func WithBacklog(backlog int) Option {
	return func(opts *Options) *Options {
		opts.Backlog = backlog
		return opts
	}
}

func WithServerName(serverName string) Option {
	return func(opts *Options) *Options {
		opts.ServerName = serverName
		return opts
	}
}

func WithDisableChunked(disable bool) Option {
	return func(opts *Options) *Options {
		opts.DisableChunked = disable
		return opts
	}
}

func WithHeaderTraceID(headerTraceID string) Option {
	return func(opts *Options) *Options {
		opts.HeaderTraceID = headerTraceID
		return opts
	}
}

func WithRejectTimeout(timeout time.Duration) Option {
	return func(opts *Options) *Options {
		opts.RejectTimeout = timeout
		return opts
	}
}

func WithBufferSize(size int) Option {
	return func(opts *Options) *Options {
		opts.BufferSize = size
		return opts
	}
}

func WithStatsCron(spec string) Option {
	return func(opts *Options) *Options {
		opts.StatsCron = spec
		return opts
	}
}

func WithEnableMetrics(enable bool) Option {
	return func(opts *Options) *Options {
		opts.EnableMetrics = enable
		return opts
	}
}
