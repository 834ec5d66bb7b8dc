package main

import (
	"sync"

	"github.com/akhenakh/sensorbridge"
)

// stopCommanders stops every command handler concurrently, a slow one does not delay the others.
func stopCommanders(commanders map[string]sensorbridge.Commander) {
	var wg sync.WaitGroup
	for _, c := range commanders {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stop()
		}()
	}
	wg.Wait()
}
