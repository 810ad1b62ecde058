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
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
)

// resolveInterfaces 解析配置的网卡地址和主机名，去重后按IP字节序排序，回环地址排在最后
func resolveInterfaces(ctx context.Context, names []string) ([]net.IP, error) {
	var (
		seen = make(map[string]struct{})
		ips  []net.IP
	)
	for _, name := range names {
		name = strings.TrimSpace(name)

		var candidates []net.IP
		switch ip := net.ParseIP(name); {
		case name == "":
			candidates = []net.IP{net.IPv4zero}
		case ip != nil:
			candidates = []net.IP{ip}
		default:
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("resolve interface %s: %w", name, err)
			}
			for _, addr := range addrs {
				candidates = append(candidates, addr.IP)
			}
		}

		for _, ip := range candidates {
			if v4 := ip.To4(); v4 != nil {
				ip = v4
			}
			key := string(ip)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			ips = append(ips, ip)
		}
	}

	sort.Slice(ips, func(i, j int) bool {
		li, lj := ips[i].IsLoopback(), ips[j].IsLoopback()
		if li != lj {
			return lj
		}
		return bytes.Compare(ips[i], ips[j]) < 0
	})
	return ips, nil
}
