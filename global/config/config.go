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
	"github.com/caiflower/rawhttp/global/env"
	"github.com/caiflower/rawhttp/pkg/logger"
	"github.com/caiflower/rawhttp/pkg/tools"
	serverconfig "github.com/caiflower/rawhttp/web/server/config"
)

type DefaultConfig struct {
	LoggerConfig logger.Config         `yaml:"logger"`
	ServerConfig serverconfig.Options `yaml:"server"`
}

// LoadDefaultConfig 读取 $CONFIG_PATH/default.yaml
func LoadDefaultConfig(v *DefaultConfig) (err error) {
	err = tools.LoadConfig(env.ConfigPath+"/default.yaml", v)
	return
}
