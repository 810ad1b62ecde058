//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

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
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// listen 手动创建socket，net.Listen无法指定backlog
func listen(ip net.IP, port, backlog int) (net.Listener, error) {
	var (
		family = unix.AF_INET
		sa     unix.Sockaddr
	)
	if v4 := ip.To4(); v4 != nil {
		addr := &unix.SockaddrInet4{Port: port}
		copy(addr.Addr[:], v4)
		sa = addr
	} else {
		family = unix.AF_INET6
		addr := &unix.SockaddrInet6{Port: port}
		copy(addr.Addr[:], ip.To16())
		sa = addr
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err = setupSocket(fd, family); err == nil {
		if err = unix.Bind(fd, sa); err != nil {
			err = os.NewSyscallError("bind", err)
		} else if err = unix.Listen(fd, backlog); err != nil {
			err = os.NewSyscallError("listen", err)
		}
	}
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	f := os.NewFile(uintptr(fd), "tcp:"+net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	defer f.Close()
	return net.FileListener(f)
}

func setupSocket(fd, family int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	if family == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return os.NewSyscallError("setsockopt", err)
		}
	}
	return nil
}
