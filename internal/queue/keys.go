package queue

import "fmt"

type keySet struct {
	entries   string
	cleared   string
	persisted string
	clearedAt string
}

func newKeySet(namespace, userKey string) keySet {
	prefix := fmt.Sprintf("genqueue:%s", namespace)
	return keySet{
		entries:   fmt.Sprintf("%s:entries:%s", prefix, userKey),
		cleared:   fmt.Sprintf("%s:cleared:%s", prefix, userKey),
		persisted: fmt.Sprintf("%s:persisted:%s", prefix, userKey),
		clearedAt: fmt.Sprintf("%s:cleared_at:%s", prefix, userKey),
	}
}
