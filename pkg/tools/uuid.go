package tools

import (
	"strings"

	"github.com/google/uuid"
)

// UUID 返回去掉'-'的uuid
func UUID() string {
	u, err := uuid.NewUUID()
	if err != nil {
		u = uuid.New()
	}
	return strings.Replace(u.String(), "-", "", 4)
}

// GenerateId 生成带前缀的id，如 conn-4f0c...
func GenerateId(prefix string) string {
	return prefix + "-" + UUID()
}
