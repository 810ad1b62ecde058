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

// fetch 用client包发起一次请求并把响应写到标准输出
//
//	fetch [-X PUT] [-H "Content-Type: text/plain"] [-d body] [-0] [-i] http://127.0.0.1:8080/kv/a
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caiflower/rawhttp/web/client"
	"github.com/caiflower/rawhttp/web/protocol"
)

type headerFlags []string

func (h *headerFlags) String() string {
	return strings.Join(*h, ", ")
}

func (h *headerFlags) Set(v string) error {
	if !strings.Contains(v, ":") {
		return fmt.Errorf("header %q must look like 'Key: value'", v)
	}
	*h = append(*h, v)
	return nil
}

func main() {
	var (
		method  = flag.String("X", "GET", "request method")
		data    = flag.String("d", "", "request body, sent with Content-Length")
		http10  = flag.Bool("0", false, "use HTTP/1.0")
		include = flag.Bool("i", false, "print status line and response headers")
		timeout = flag.Duration("t", 10*time.Second, "connect timeout")
		headers headerFlags
	)
	flag.Var(&headers, "H", "extra request header, repeatable")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fetch [flags] http://host[:port]/path")
		flag.PrintDefaults()
		os.Exit(2)
	}

	version := protocol.HTTP11
	if *http10 {
		version = protocol.HTTP10
	}
	if err := fetch(flag.Arg(0), *method, version, headers, *data, *include, *timeout, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fetch:", err)
		os.Exit(1)
	}
}

func fetch(url, method, version string, headers []string, data string, include bool, timeout time.Duration, w io.Writer) error {
	req, err := client.NewRequest(url, method, version)
	if err != nil {
		return err
	}
	defer req.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err = req.Connect(ctx); err != nil {
		return err
	}

	for _, h := range headers {
		key, value, _ := strings.Cut(h, ":")
		if err = req.AddHeader(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	if data != "" {
		if err = req.AddHeader(protocol.HeaderContentLength, strconv.Itoa(len(data))); err != nil {
			return err
		}
		out, err := req.OutputStream()
		if err != nil {
			return err
		}
		if _, err = io.WriteString(out, data); err != nil {
			return err
		}
		if err = out.Close(); err != nil {
			return err
		}
	}

	resp, err := req.Response()
	if err != nil {
		return err
	}
	if include {
		if _, err = fmt.Fprintf(w, "%s\r\n%s\r\n", resp.StatusLine, resp.Header); err != nil {
			return err
		}
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
