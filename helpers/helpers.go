package helpers

import (
	"strings"
	"time"

	"github.com/juju/errors"
)

// FoldErrors merges non-nil errors into one; nil when all are nil.
func FoldErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.New(strings.Join(ss, "\n"))
}

func IntSecondDefault(i int, def time.Duration) time.Duration {
	if i == 0 {
		return def
	}
	return time.Duration(i) * time.Second
}

func IntMillisecondDefault(i int, def time.Duration) time.Duration {
	if i == 0 {
		return def
	}
	return time.Duration(i) * time.Millisecond
}
