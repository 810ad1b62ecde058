//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

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
	"strconv"
)

// listen backlog由系统决定
func listen(ip net.IP, port, backlog int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
}
