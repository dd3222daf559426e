package testutil

import (
	"fmt"
	"sync"
)

// SequenceFacts generates predictable form values: every method counts on
// its own, so the first Name is "check name 1" and the first Domain is
// "domain-1.example.com" no matter what else was generated.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceFacts struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSequenceFacts creates a generator with every counter at zero.
func NewSequenceFacts() *SequenceFacts {
	return &SequenceFacts{counts: make(map[string]int)}
}

func (f *SequenceFacts) next(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[kind]++
	return f.counts[kind]
}

func (f *SequenceFacts) Name() string {
	return fmt.Sprintf("check name %d", f.next("name"))
}

func (f *SequenceFacts) Domain() string {
	return fmt.Sprintf("domain-%d.example.com", f.next("domain"))
}

func (f *SequenceFacts) URL() string {
	return fmt.Sprintf("https://site-%d.example.com/index.html", f.next("url"))
}

func (f *SequenceFacts) Port() string {
	return fmt.Sprintf("%d", 8000+f.next("port"))
}

func (f *SequenceFacts) Threshold() string {
	return fmt.Sprintf("%d", 20+f.next("threshold"))
}

func (f *SequenceFacts) Word() string {
	return fmt.Sprintf("word%d", f.next("word"))
}
