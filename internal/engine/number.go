package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberGenerator produces human-readable, time-ordered instance numbers in
// the form <prefix>-<yyyymmdd>-<hhmmss>-<6 hex>, e.g.
// "WF-20250829-141530-9F21AC".
type NumberGenerator struct {
	prefix string
}

// NewNumberGenerator creates a generator with the given prefix, defaulting
// to "WF".
func NewNumberGenerator(prefix string) *NumberGenerator {
	if prefix == "" {
		prefix = "WF"
	}
	return &NumberGenerator{prefix: prefix}
}

// Next returns a fresh instance number for the given creation time.
func (g *NumberGenerator) Next(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", g.prefix, t.UTC().Format("20060102-150405"), suffix)
}
