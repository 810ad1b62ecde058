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

package safego

import (
	golocalv1 "github.com/caiflower/rawhttp/pkg/golocal/v1"
	"github.com/caiflower/rawhttp/pkg/e"
)

// Go 启动协程，拦截panic，并把当前协程的本地存储（traceID、context）带到新协程
func Go(fn func()) {
	local := golocalv1.GetLocalMap()
	go func() {
		golocalv1.PutLocalMap(local)
		defer golocalv1.Clean()
		defer e.OnError("safeGo")

		fn()
	}()
}
