package protocol

import (
	"bufio"
	"strings"
	"testing"

	"github.com/caiflower/rawhttp/web/e"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func parseHeaders(t *testing.T, raw string) (*HeaderSet, error) {
	t.Helper()
	h := NewHeaderSet()
	return h, h.Parse(bufio.NewReader(strings.NewReader(raw)))
}

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Header
	}{
		{
			name: "empty block",
			raw:  "\r\n",
			want: []Header{},
		},
		{
			name: "arrival order kept",
			raw:  "Host: example.com\r\nContent-Length: 5\r\nX-Trace:  abc  \r\nAccept: */*\r\n\r\n",
			want: []Header{
				{Key: "Host", Value: "example.com"},
				{Key: "Content-Length", Value: "5"},
				{Key: "X-Trace", Value: "abc"},
				{Key: "Accept", Value: "*/*"},
			},
		},
		{
			name: "bare LF terminators",
			raw:  "a: 1\nb: 2\n\n",
			want: []Header{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}},
		},
		{
			name: "duplicate keys",
			raw:  "Set-Cookie: a=1\r\nSet-Cookie: b=2\r\n\r\n",
			want: []Header{{Key: "Set-Cookie", Value: "a=1"}, {Key: "Set-Cookie", Value: "b=2"}},
		},
		{
			name: "empty value",
			raw:  "X-Empty:\r\n\r\n",
			want: []Header{{Key: "X-Empty", Value: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := parseHeaders(t, tt.raw)
			assert.Nil(t, err)
			if diff := cmp.Diff(tt.want, h.Entries()); diff != "" {
				t.Fatalf("entries mismatch (-want +got):\n%s", diff)
			}

			// 序列化后再次解析得到相同的键值序列
			again, err := parseHeaders(t, h.String()+CRLF)
			assert.Nil(t, err)
			if diff := cmp.Diff(h.Entries(), again.Entries()); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderSerialize(t *testing.T) {
	h := NewHeaderSet()
	h.Add("Server", "rawhttp")
	h.AddInternal(KeyStatus, "200")
	h.Add("Content-length", "5")

	assert.Equal(t, "Server: rawhttp\r\nContent-length: 5\r\n", h.String())
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "200", h.Value(KeyStatus))
}

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	h, err := parseHeaders(t, "Content-Type: text/plain\r\nconnection: Keep-Alive, Upgrade\r\n\r\n")
	assert.Nil(t, err)

	for _, key := range []string{"Content-Type", "content-type", "CONTENT-TYPE"} {
		v, ok := h.Get(key)
		assert.True(t, ok, key)
		assert.Equal(t, "text/plain", v)
	}
	assert.True(t, h.Contains("Connection", "keep-alive"))
	assert.True(t, h.Contains("CONNECTION", "upgrade"))
	assert.False(t, h.Contains("Connection", "close"))

	_, ok := h.Get("Missing")
	assert.False(t, ok)
	assert.False(t, h.Has("missing"))
}

func TestContainsToken(t *testing.T) {
	for _, c := range []struct {
		value, token string
		want         bool
	}{
		{"close", "close", true},
		{"Keep-Alive, Upgrade", "keep-alive", true},
		{" gzip ,Chunked", "chunked", true},
		{"chunked-ish", "chunked", false},
		{"", "close", false},
	} {
		assert.Equal(t, c.want, ContainsToken(c.value, c.token), "%q %q", c.value, c.token)
	}
}

func TestHeaderNumbers(t *testing.T) {
	h, err := parseHeaders(t, "Content-Length: 42\r\nBad: abc\r\nBig: 9000000000\r\n\r\n")
	assert.Nil(t, err)

	n, err := h.GetInt("content-length", -1)
	assert.Nil(t, err)
	assert.Equal(t, 42, n)

	n, err = h.GetInt("Absent", -1)
	assert.Nil(t, err)
	assert.Equal(t, -1, n)

	l, err := h.GetLong("Big", 0)
	assert.Nil(t, err)
	assert.Equal(t, int64(9000000000), l)

	_, err = h.GetInt("Bad", 0)
	assert.True(t, e.IsProtocol(err))
	_, err = h.GetLong("Bad", 0)
	assert.True(t, e.IsProtocol(err))
}

func TestHeaderParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "eof before colon", raw: "Host"},
		{name: "line without colon", raw: "Host example.com\r\n\r\n"},
		{name: "bare CR in value", raw: "Host: a\rb\r\n\r\n"},
		{name: "bare CR on blank line", raw: "Host: a\r\n\rX"},
		{name: "truncated value", raw: "Host: exa"},
		{name: "missing blank line", raw: "Host: a\r\n"},
		{name: "empty name", raw: ": v\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHeaders(t, tt.raw)
			assert.True(t, e.IsProtocol(err), "got %v", err)
		})
	}
}

func TestHeaderParseReplaces(t *testing.T) {
	h := NewHeaderSet()
	r := bufio.NewReader(strings.NewReader("A: 1\r\n\r\nB: 2\r\n\r\n"))

	assert.Nil(t, h.Parse(r))
	assert.Equal(t, "1", h.Value("a"))

	assert.Nil(t, h.Parse(r))
	assert.False(t, h.Has("A"))
	assert.Equal(t, "2", h.Value("b"))
	assert.Equal(t, 1, h.Len())
}
