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
	"net"
	"sync/atomic"
)

// gate 一个端口的准入控制，同一端口的所有监听共享计数
type gate struct {
	port      int
	ceiling   int32 // 0不限制
	active    int32
	listeners []net.Listener
}

func newGate(port, ceiling int) *gate {
	return &gate{port: port, ceiling: int32(ceiling)}
}

// acquire 活跃连接数低于上限时加一
func (g *gate) acquire() bool {
	for {
		n := atomic.LoadInt32(&g.active)
		if g.ceiling > 0 && n >= g.ceiling {
			return false
		}
		if atomic.CompareAndSwapInt32(&g.active, n, n+1) {
			return true
		}
	}
}

func (g *gate) release() {
	atomic.AddInt32(&g.active, -1)
}

func (g *gate) Active() int {
	return int(atomic.LoadInt32(&g.active))
}
