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

package env

import (
	"net"
	"os"
)

var (
	LocalhostIP string
	ConfigPath  string
)

func init() {
	findLocalHostIP()
	initConfigPath()
}

func initConfigPath() {
	ConfigPath = os.Getenv("CONFIG_PATH")
	if ConfigPath == "" {
		ConfigPath = "./etc"
	}
}

// findLocalHostIP 取第一个非回环的IPv4地址，找不到时为空
func findLocalHostIP() {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return
	}

	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			LocalhostIP = ipnet.IP.String()
			return
		}
	}
}

func GetLocalHostIP() string {
	return LocalhostIP
}

func SetDefaultConfigPath(path string) {
	ConfigPath = path
}
