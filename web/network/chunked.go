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

package network

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/caiflower/rawhttp/web/e"
	"github.com/caiflower/rawhttp/web/protocol"
)

type ChunkState int

const (
	AwaitingChunkSize ChunkState = iota
	ReadingChunkData
	ReadingTrailer
	Done
)

func (s ChunkState) String() string {
	switch s {
	case AwaitingChunkSize:
		return "AwaitingChunkSize"
	case ReadingChunkData:
		return "ReadingChunkData"
	case ReadingTrailer:
		return "ReadingTrailer"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("ChunkState(%d)", int(s))
	}
}

// ChunkedReader 解码 Transfer-Encoding: chunked 的消息体，状态只向前推进
type ChunkedReader struct {
	r         *bufio.Reader
	state     ChunkState
	remaining int64
	trailer   *protocol.HeaderSet
	err       error
}

func NewChunkedReader(r *bufio.Reader) *ChunkedReader {
	return &ChunkedReader{r: r, trailer: protocol.NewHeaderSet()}
}

func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}

	for {
		switch cr.state {
		case Done:
			return 0, io.EOF
		case AwaitingChunkSize:
			size, err := cr.readSize()
			if err != nil {
				return 0, cr.fail(err)
			}
			if size == 0 {
				cr.state = ReadingTrailer
			} else {
				cr.remaining = size
				cr.state = ReadingChunkData
			}
		case ReadingTrailer:
			if err := cr.trailer.Parse(cr.r); err != nil {
				return 0, cr.fail(err)
			}
			cr.state = Done
			return 0, io.EOF
		case ReadingChunkData:
			if len(p) == 0 {
				return 0, nil
			}
			if int64(len(p)) > cr.remaining {
				p = p[:cr.remaining]
			}
			n, err := cr.r.Read(p)
			cr.remaining -= int64(n)
			if n == 0 && err != nil {
				return 0, cr.fail(premature(err, "chunk data"))
			}
			if cr.remaining == 0 {
				if err = cr.readCRLF(); err != nil {
					return n, cr.fail(err)
				}
				cr.state = AwaitingChunkSize
			}
			return n, nil
		}
	}
}

func (cr *ChunkedReader) fail(err error) error {
	cr.err = err
	return err
}

func (cr *ChunkedReader) readSize() (int64, error) {
	var size int64
	digits := 0
	for {
		c, err := cr.r.ReadByte()
		if err != nil {
			return 0, premature(err, "chunk size")
		}
		if v, ok := hexValue(c); ok {
			if size > math.MaxInt64>>4 {
				return 0, e.NewProtocolError("chunk size overflows int64", nil)
			}
			size = size<<4 | int64(v)
			digits++
			continue
		}
		if digits == 0 {
			return 0, e.NewProtocolError(fmt.Sprintf("invalid chunk size character %q", c), nil)
		}
		switch c {
		case '\r':
			return size, cr.expectLF()
		case ' ', '\t', ';':
			return size, cr.skipExtension()
		default:
			return 0, e.NewProtocolError(fmt.Sprintf("invalid character %q after chunk size", c), nil)
		}
	}
}

// skipExtension 丢弃分块扩展直到行尾
func (cr *ChunkedReader) skipExtension() error {
	for {
		c, err := cr.r.ReadByte()
		if err != nil {
			return premature(err, "chunk extension")
		}
		switch c {
		case '\r':
			return cr.expectLF()
		case '\n':
			return e.NewProtocolError("chunk size line terminated by bare LF", nil)
		}
	}
}

func (cr *ChunkedReader) expectLF() error {
	c, err := cr.r.ReadByte()
	if err != nil {
		return premature(err, "chunk size line")
	}
	if c != '\n' {
		return e.NewProtocolError(fmt.Sprintf("expected LF after CR, got %q", c), nil)
	}
	return nil
}

func (cr *ChunkedReader) readCRLF() error {
	c, err := cr.r.ReadByte()
	if err != nil {
		return premature(err, "chunk terminator")
	}
	if c != '\r' {
		return e.NewProtocolError(fmt.Sprintf("chunk data not followed by CRLF, got %q", c), nil)
	}
	return cr.expectLF()
}

func (cr *ChunkedReader) State() ChunkState {
	return cr.state
}

// Trailer 分块结束后的尾部头部，可能为空
func (cr *ChunkedReader) Trailer() *protocol.HeaderSet {
	return cr.trailer
}

func (cr *ChunkedReader) Done() bool {
	return cr.state == Done
}

func (cr *ChunkedReader) Drained() bool {
	return cr.Done()
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func premature(err error, where string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return e.NewProtocolError("unexpected end of stream in "+where, io.ErrUnexpectedEOF)
	}
	return err
}
