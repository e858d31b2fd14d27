package alarm

import "sort"

// alarmHeap orders alarms by fire time, then label for a stable order
// between alarms due in the same instant.
type alarmHeap []Alarm

func (h alarmHeap) Len() int { return len(h) }

func (h alarmHeap) Less(i, j int) bool { return before(h[i], h[j]) }

func (h alarmHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *alarmHeap) Push(x any) { *h = append(*h, x.(Alarm)) }

func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	*h = old[:n-1]
	return a
}

func before(a, b Alarm) bool {
	if !a.FiresAt.Equal(b.FiresAt) {
		return a.FiresAt.Before(b.FiresAt)
	}
	return a.Label < b.Label
}

func sortAlarms(alarms []Alarm) {
	sort.Slice(alarms, func(i, j int) bool { return before(alarms[i], alarms[j]) })
}
