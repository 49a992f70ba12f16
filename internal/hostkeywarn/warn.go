// Package hostkeywarn provides a process-wide one-shot warning for SSH
// endpoints reached without host key verification.
package hostkeywarn

import (
	"log"
	"sync"
)

var once sync.Once

// LogInsecure emits a single warning the first time it is called. Every
// remote backend built without a known_hosts file calls it, and one line per
// process is enough.
func LogInsecure(address string) {
	once.Do(func() {
		log.Printf("[SSH] WARNING: host key verification is disabled (first endpoint: %s). Configure known_hosts for production use.", address)
	})
}
