package protocol

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadLine(t *testing.T) {
	lr := NewLineReader(bufio.NewReader(strings.NewReader("a\r\nbb\ncc\rdd\r\r\n\nlast")))

	var lines []string
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			break
		}
		assert.Nil(t, err)
		lines = append(lines, line)
	}

	assert.Equal(t, []string{"a", "bb", "cc", "dd", "", "", "last"}, lines)
}

func TestReadLineEmptyInput(t *testing.T) {
	lr := NewLineReader(bufio.NewReader(strings.NewReader("")))
	line, err := lr.ReadLine()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "", line)
}

func TestReadLineTrailingCR(t *testing.T) {
	lr := NewLineReader(bufio.NewReader(strings.NewReader("GET / HTTP/1.1\r")))
	line, err := lr.ReadLine()
	assert.Nil(t, err)
	assert.Equal(t, "GET / HTTP/1.1", line)

	_, err = lr.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestReadLineGrows(t *testing.T) {
	long := strings.Repeat("x", 10*initLineSize+3)
	lr := NewLineReader(bufio.NewReaderSize(strings.NewReader(long+"\r\nnext\r\n"), 16))

	line, err := lr.ReadLine()
	assert.Nil(t, err)
	assert.Equal(t, long, line)

	line, err = lr.ReadLine()
	assert.Nil(t, err)
	assert.Equal(t, "next", line)
}
