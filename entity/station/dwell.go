package station

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
)

// DoorMetric 单个车门的上下车统计
type DoorMetric struct {
	Alight          float64
	Board           float64
	ThroughStandees float64 // 不在本站下车的站立乘客
}

// DwellFunc 由各车门统计计算停站时间（秒）
type DwellFunc func(doors []DoorMetric) float64

// NewDwellFunc 默认停站时间模型
// 算法说明：停站时间 = 基础时间 + max_门{(下车人数×ta + 上车人数×tb) × (1 + 阻滞系数×站立人数/车门定员)}
// 参数：c-停站时间配置，doorCapacity-每个车门对应的定员
func NewDwellFunc(c config.Station, doorCapacity float64) DwellFunc {
	return func(doors []DoorMetric) float64 {
		busiest := lo.Max(lo.Map(doors, func(d DoorMetric, _ int) float64 {
			flow := d.Alight*c.AlightTime + d.Board*c.BoardTime
			friction := 1.
			if doorCapacity > 0 {
				friction += c.StandeeFriction * d.ThroughStandees / doorCapacity
			}
			return flow * friction
		}))
		return c.BaseDwell + busiest
	}
}
