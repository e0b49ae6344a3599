package projector

import (
	"reflect"
	"sync"
	"testing"
)

func TestSortedUnique(t *testing.T) {
	got := sortedUnique([]string{"b", "a", "b", "c", "a"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("sortedUnique = %v", got)
	}
	if got := sortedUnique(nil); len(got) != 0 {
		t.Fatalf("empty input = %v", got)
	}
}

func TestKeyLockerSerializesSharedKeys(t *testing.T) {
	l := newKeyLocker()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"stream/x", "allocator/a"}
			if i%2 == 0 {
				keys = []string{"allocator/a", "stream/y", "allocator/a"}
			}
			unlock := l.Lock(keys)
			defer unlock()
			counter++
		}(i)
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if l.size() != 0 {
		t.Fatalf("locks leaked: %d", l.size())
	}
}
