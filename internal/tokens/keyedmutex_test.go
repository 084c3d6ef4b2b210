package tokens

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("Same key is exclusive", func(t *testing.T) {
		k := newKeyedMutex()
		unlock := k.Lock("a")

		acquired := make(chan struct{})
		go func() {
			u := k.Lock("a")
			close(acquired)
			u()
		}()

		select {
		case <-acquired:
			t.Fatal("second Lock on the same key must block")
		case <-time.After(20 * time.Millisecond):
		}
		unlock()
		<-acquired
	})

	t.Run("Different keys do not block each other", func(t *testing.T) {
		k := newKeyedMutex()
		unlockA := k.Lock("a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			k.Lock("b")()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Lock on another key blocked")
		}
	})

	t.Run("Entries are released", func(t *testing.T) {
		k := newKeyedMutex()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k.Lock("shared")()
			}()
		}
		wg.Wait()
		assert.Equal(t, 0, k.size())
	})
}
