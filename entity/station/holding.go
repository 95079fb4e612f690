package station

import (
	"github.com/samber/lo"
)

// HoldingInput 滞留决策输入
type HoldingInput struct {
	ForwardGap  float64 // 与前车的时间间隔（秒）
	BackwardGap float64 // 与后车的时间间隔（秒）
	HasLeader   bool
	HasFollower bool
	QueuesAhead []int // 前方各车站候车人数
}

// HoldingRegulator 滞留时间调节器
type HoldingRegulator interface {
	Holding(in HoldingInput) float64
}

// LeaderFollower 前后车间隔均衡
// 算法说明：holding = max(0, (后车间隔 - 前车间隔)/2)，缺少前车或后车时不滞留
type LeaderFollower struct{}

func (LeaderFollower) Holding(in HoldingInput) float64 {
	if !in.HasLeader || !in.HasFollower {
		return 0
	}
	return max(0, (in.BackwardGap-in.ForwardGap)/2)
}

// StationCapped 带上下限的控制站滞留
// 说明：低于Min时不滞留，高于Max时取Max
type StationCapped struct {
	Min float64
	Max float64
}

func (r StationCapped) Holding(in HoldingInput) float64 {
	h := LeaderFollower{}.Holding(in)
	if h < r.Min {
		return 0
	}
	return min(h, r.Max)
}

// CrowdingAware 前方车站有人候车时不滞留
type CrowdingAware struct {
	StationCapped
}

func (r CrowdingAware) Holding(in HoldingInput) float64 {
	if lo.SomeBy(in.QueuesAhead, func(n int) bool { return n > 0 }) {
		return 0
	}
	return r.StationCapped.Holding(in)
}
