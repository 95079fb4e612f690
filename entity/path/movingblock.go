package path

import (
	"math"
	"slices"

	"github.com/tsinghua-fib-lab/railsim/entity"
)

// 移动闭塞向前查找前车的最大分区数
const movingBlockLookahead = 10

// MovingBlockControl 移动闭塞控制
// 功能：根据与前车车尾的距离和制动曲线动态计算速度码
type MovingBlockControl struct {
	locator      entity.ITrainLocator
	safetyMargin float64 // 英尺
	deceleration float64 // mph/s
}

// NewMovingBlockControl 创建移动闭塞控制
// 参数：locator-列车位置查询，margin-安全余量（英尺），dec-计算制动曲线所用的减速度（mph/s）
func NewMovingBlockControl(locator entity.ITrainLocator, margin, dec float64) *MovingBlockControl {
	return &MovingBlockControl{locator: locator, safetyMargin: margin, deceleration: dec}
}

// SafetyMargin 与前车车尾保持的安全余量（英尺）
func (c *MovingBlockControl) SafetyMargin() float64 {
	return c.safetyMargin
}

// Gap 位于(p, i, s)的列车id与前车车尾的距离
// 算法说明：自当前分区起向前至多查找10个分区，取第一个有前车的分区中最近的前车车尾
// 返回：找不到前车时ok为false
func (c *MovingBlockControl) Gap(id entity.TrainID, p *Path, i int, s float64) (float64, bool) {
	for j := i; j < min(i+movingBlockLookahead, p.Len()); j++ {
		b := p.Block(j)
		occ := b.Occupants()
		if j == i {
			if idx := slices.Index(occ, id); idx >= 0 {
				occ = occ[:idx]
			}
		}
		gap, found := math.Inf(1), false
		for _, other := range occ {
			if other == id {
				continue
			}
			rear, ok := c.locator.RearOffsetIn(other, p.Direction(), b.ID())
			if !ok {
				continue
			}
			gap = math.Min(gap, p.DistanceAhead(i, s, j)+rear)
			found = true
		}
		if found {
			return math.Max(0, gap), true
		}
	}
	return 0, false
}

// SpeedCode 移动闭塞速度码（mph）
// 算法说明：min(分区限速, sqrt(2·dec·max(0, gap - margin)/F))，F为英尺每秒与mph之比，无前车时为分区限速
func (c *MovingBlockControl) SpeedCode(id entity.TrainID, p *Path, i int, s float64) float64 {
	code := p.Block(i).CurrentSpeedCode(id)
	gap, ok := c.Gap(id, p, i, s)
	if !ok {
		return code
	}
	allowed := math.Sqrt(2 * c.deceleration * math.Max(0, gap-c.safetyMargin) / entity.FpsPerMph)
	return math.Min(code, allowed)
}
