// Package naming derives content file names from a prefix and a timestamp.
package naming

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "memo"

// Ext is the extension of every content file.
const Ext = ".txt"

const stampLayout = "2006-01-02-15-04-05"

// Name returns <prefix>-<YYYY-MM-DD>-<HH>-<MM>-<SS>.txt for t in t's location.
func Name(prefix string, t time.Time) string {
	return stem(prefix, t) + Ext
}

// MaxSuffix bounds the disambiguation counter.
const MaxSuffix = 10000

// ErrExhausted is returned when every suffix up to MaxSuffix is taken.
var ErrExhausted = errors.New("naming: no free name")

// Probe reports whether name is already used. An error aborts Unique.
type Probe func(name string) (bool, error)

// Unique returns Name(prefix, t) unless taken reports it as used, in which
// case it appends -1, -2, ... to the stem until a free name is found.
func Unique(prefix string, t time.Time, taken Probe) (string, error) {
	name := Name(prefix, t)
	if taken == nil {
		return name, nil
	}
	base := stem(prefix, t)
	for i := 0; i <= MaxSuffix; i++ {
		if i > 0 {
			name = base + "-" + strconv.Itoa(i) + Ext
		}
		used, err := taken(name)
		if err != nil {
			return "", fmt.Errorf("naming: probe %s: %w", name, err)
		}
		if !used {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrExhausted, base)
}

func stem(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "-" + t.Format(stampLayout)
}
