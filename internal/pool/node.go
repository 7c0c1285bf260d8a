package pool

// SizeCategory buckets nodes by total capacity. The allocator walks foreign
// nodes from huge down to tiny.
type SizeCategory int

const (
	SizeTiny SizeCategory = iota
	SizeSmall
	SizeMedium
	SizeLarge
	SizeHuge
)

// Capacity thresholds for the size categories, in capacity units.
const (
	tinyLimit   = 8
	smallLimit  = 64
	mediumLimit = 512
	largeLimit  = 1024
)

func (c SizeCategory) String() string {
	switch c {
	case SizeTiny:
		return "tiny"
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	case SizeLarge:
		return "large"
	case SizeHuge:
		return "huge"
	default:
		return "unknown"
	}
}

// CategoriesLargestFirst returns all size categories ordered huge to tiny.
func CategoriesLargestFirst() []SizeCategory {
	return []SizeCategory{SizeHuge, SizeLarge, SizeMedium, SizeSmall, SizeTiny}
}

// Categorize maps a node's total capacity to its size category.
func Categorize(totalCapacity float64) SizeCategory {
	switch {
	case totalCapacity <= tinyLimit:
		return SizeTiny
	case totalCapacity <= smallLimit:
		return SizeSmall
	case totalCapacity <= mediumLimit:
		return SizeMedium
	case totalCapacity <= largeLimit:
		return SizeLarge
	default:
		return SizeHuge
	}
}

// Node is a worker offering capacity. Refreshed from discovery every cycle;
// UsedCapacity is incremented in-memory during one allocation pass and the
// whole struct is discarded at cycle end.
type Node struct {
	ID            string  `json:"id"`
	TotalCapacity float64 `json:"total_capacity"`
	UsedCapacity  float64 `json:"used_capacity"`
	Owned         bool    `json:"owned"`
}

// AvailableCapacity is total minus used, clamped at zero.
func (n *Node) AvailableCapacity() float64 {
	avail := n.TotalCapacity - n.UsedCapacity
	if avail < 0 {
		return 0
	}
	return avail
}

func (n *Node) SizeCategory() SizeCategory {
	return Categorize(n.TotalCapacity)
}

// Reserve marks capacity as consumed for the remainder of the cycle.
// Accounting is optimistic: the next discovery refresh reconciles reality.
func (n *Node) Reserve(capacity float64) {
	n.UsedCapacity += capacity
}
