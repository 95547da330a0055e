package queue

import (
	"container/heap"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
)

// --- Priority Queue Implementation ---

// pqItem is a heap entry; seq breaks ties between equal depths in push order
type pqItem struct {
	workItem models.WorkItem
	seq      uint64
	index    int // The index of the item in the heap (required by heap interface)
}

// priorityQueue implements heap.Interface ordered by (depth, seq)
type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].workItem.Depth != pq[j].workItem.Depth {
		return pq[i].workItem.Depth < pq[j].workItem.Depth
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// Frontier is the crawl work queue: FIFO by depth, and FIFO by discovery order within a depth.
// Pushing items in nondecreasing depth order makes it a plain BFS queue; pushing a shallower item
// later still pops it before deeper ones.
// Not safe for concurrent use; the crawler drives it from a single goroutine.
type Frontier struct {
	pq      priorityQueue
	nextSeq uint64
	pushed  int
	log     *logrus.Entry
}

// NewFrontier creates an empty Frontier
func NewFrontier(log *logrus.Entry) *Frontier {
	f := &Frontier{log: log}
	heap.Init(&f.pq)
	return f
}

// Push enqueues item. Deduplication is the caller's job (enqueue-time seen-set)
func (f *Frontier) Push(item models.WorkItem) {
	heap.Push(&f.pq, &pqItem{workItem: item, seq: f.nextSeq})
	f.nextSeq++
	f.pushed++
	f.log.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth, "queue_len": len(f.pq)}).Trace("Enqueued")
}

// Pop removes the shallowest, earliest-pushed item. ok is false when the frontier is empty
func (f *Frontier) Pop() (item models.WorkItem, ok bool) {
	if len(f.pq) == 0 {
		return models.WorkItem{}, false
	}
	return heap.Pop(&f.pq).(*pqItem).workItem, true
}

// PeekDepth returns the depth of the next item to pop, or -1 when empty
func (f *Frontier) PeekDepth() int {
	if len(f.pq) == 0 {
		return -1
	}
	return f.pq[0].workItem.Depth
}

// Len returns the number of queued items
func (f *Frontier) Len() int {
	return len(f.pq)
}

// Pushed returns how many items were ever enqueued
func (f *Frontier) Pushed() int {
	return f.pushed
}
