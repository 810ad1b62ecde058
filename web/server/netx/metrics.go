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
	"errors"
	"strconv"

	"github.com/caiflower/rawhttp/global/env"
	"github.com/prometheus/client_golang/prometheus"
)

type ServerMetric struct {
	connAccepted *prometheus.CounterVec
	connRejected *prometheus.CounterVec
	connActive   *prometheus.GaugeVec
	requestTotal *prometheus.CounterVec
}

func NewServerMetric(name string, registerer prometheus.Registerer) *ServerMetric {
	constLabels := prometheus.Labels{"server": name, "ip": env.GetLocalHostIP()}

	metric := &ServerMetric{
		connAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rawhttp_conn_accepted_total", Help: "accepted connections", ConstLabels: constLabels}, []string{"port"}),
		connRejected: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rawhttp_conn_rejected_total", Help: "connections rejected by admission control", ConstLabels: constLabels}, []string{"port"}),
		connActive:   prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "rawhttp_conn_active", Help: "active connections", ConstLabels: constLabels}, []string{"port"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rawhttp_request_total", Help: "completed requests", ConstLabels: constLabels}, []string{"method", "code"}),
	}

	if registerer != nil {
		metric.connAccepted = register(registerer, metric.connAccepted)
		metric.connRejected = register(registerer, metric.connRejected)
		metric.connActive = register(registerer, metric.connActive)
		metric.requestTotal = register(registerer, metric.requestTotal)
	}
	return metric
}

// register 同名指标已注册时复用已有的collector
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *ServerMetric) accepted(port int) {
	p := strconv.Itoa(port)
	m.connAccepted.WithLabelValues(p).Inc()
	m.connActive.WithLabelValues(p).Inc()
}

func (m *ServerMetric) released(port int) {
	m.connActive.WithLabelValues(strconv.Itoa(port)).Dec()
}

func (m *ServerMetric) rejected(port int) {
	m.connRejected.WithLabelValues(strconv.Itoa(port)).Inc()
}

func (m *ServerMetric) request(method string, code int) {
	m.requestTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
