package orders

type Status string

const (
	StatusPending   Status = "Pending"
	StatusPreparing Status = "Preparing"
	StatusDelivered Status = "Delivered"
)

// rank orders statuses along the normal kitchen flow.
var rank = map[Status]int{
	StatusPending:   0,
	StatusPreparing: 1,
	StatusDelivered: 2,
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// CanTransition reports whether moving from -> to keeps the order moving forward
// (or staying put). Backward moves are manual corrections.
func CanTransition(from, to Status) bool {
	return rank[to] >= rank[from]
}
