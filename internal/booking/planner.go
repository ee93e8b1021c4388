package booking

import "ms-booking/internal/models"

// requestPlan splits a request into what is issued now and what is queued.
type requestPlan struct {
	Issue int
	Queue int
}

func planRequest(available, count int) requestPlan {
	switch {
	case available <= 0:
		return requestPlan{Queue: count}
	case available < count:
		return requestPlan{Issue: available, Queue: count - available}
	default:
		return requestPlan{Issue: count}
	}
}

// grant is one queue entry's share of freed capacity.
type grant struct {
	EntryID     int64
	RequesterID string
	Count       int
	Remaining   int
}

// planDrain walks the queue head first and never skips an entry: the head
// takes as much as it can before anyone behind it is considered.
func planDrain(budget int, queue []models.WaitingEntry) []grant {
	var grants []grant
	for _, entry := range queue {
		if budget <= 0 {
			break
		}
		n := min(entry.TicketCount, budget)
		if n <= 0 {
			continue
		}
		grants = append(grants, grant{
			EntryID:     entry.ID,
			RequesterID: entry.RequesterID,
			Count:       n,
			Remaining:   entry.TicketCount - n,
		})
		budget -= n
	}
	return grants
}
