package path

import (
	"fmt"
	"slices"

	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

// ShortTurningName 折返进路名
const ShortTurningName = "ShortTurning"

// 折返虚拟分区参数
const (
	shortTurningLength = 400. // 英尺
	shortTurnerLength  = 1.
	shortTurningCode   = 6. // mph
)

// 折返准备时间（秒）
const (
	setupMin = 120.
	setupMax = 180.
)

// 检查时间的三角分布参数（秒）：下限、众数、上限
var inspectionLevels = map[string][3]float64{
	"Low":    {60, 90, 120},
	"Medium": {120, 180, 300},
	"High":   {300, 420, 600},
}

// ShortTurningPath 折返进路
// 功能：下行进路截至折返点的前缀，加上折返线与折返标记两个虚拟分区；
// 列车激活折返标记后换至上行进路的重新投入点
// 说明：停站只包含前缀中的车站，最后一个即折返站
type ShortTurningPath struct {
	*Path
	north         *Path
	northJunction int
	inspection    bool
	level         [3]float64
}

// NewShortTurningPath 创建折返进路
// 参数：south-下行进路，north-上行进路，southID-下行折返点分区，northID-上行重新投入分区，
// inspection-是否需要检查，level-检查时间等级（Low | Medium | High）
func NewShortTurningPath(south, north *Path, southID, northID string, inspection bool, level string) (*ShortTurningPath, error) {
	si, ok := south.Index(southID)
	if !ok || south.IsTerminal(si) {
		return nil, fmt.Errorf("%w: short turning junction %s not on %s", entity.ErrConfiguration, southID, south.Name())
	}
	ni, ok := north.Index(northID)
	if !ok || north.IsTerminal(ni) {
		return nil, fmt.Errorf("%w: short turning junction %s not on %s", entity.ErrConfiguration, northID, north.Name())
	}
	params, ok := inspectionLevels[level]
	if !ok {
		return nil, fmt.Errorf("%w: unknown inspection level %q", entity.ErrConfiguration, level)
	}
	junction := south.Block(si)
	turning := block.New(ShortTurningName+"-TURNING", "", south.Direction(), block.KindShortTurning,
		shortTurningLength, shortTurningCode, junction.SightDistance())
	marker := block.New(ShortTurningName+"-TURNER", "", south.Direction(), block.KindShortTurner,
		shortTurnerLength, shortTurningCode, junction.SightDistance())
	if junction.IsMoving() {
		turning.SetMoving()
		marker.SetMoving()
	}
	blocks := append(slices.Clone(south.Blocks()[:si+1]), turning, marker)
	return &ShortTurningPath{
		Path:          newPath(ShortTurningName, south.Direction(), blocks),
		north:         north,
		northJunction: ni,
		inspection:    inspection,
		level:         params,
	}, nil
}

// Swap 折返后的进路与重新投入分区下标
func (p *ShortTurningPath) Swap() (*Path, int) {
	return p.north, p.northJunction
}

// Terminus 折返站的停站序号，前缀中没有车站时返回-1
func (p *ShortTurningPath) Terminus() int {
	return len(p.stops) - 1
}

// InspectionTime 抽取检查时间，不需要检查时为0
func (p *ShortTurningPath) InspectionTime(rng *randengine.Engine) float64 {
	if !p.inspection {
		return 0
	}
	return rng.Triangular(p.level[0], p.level[1], p.level[2])
}

// SetupDelay 抽取折返准备时间：U(120, 180)秒加检查时间
func (p *ShortTurningPath) SetupDelay(rng *randengine.Engine) float64 {
	return rng.Uniform(setupMin, setupMax) + p.InspectionTime(rng)
}
