package entity

import (
	"fmt"
)

// 速度换算：1 mph = 5280/3600 ft/s
const FpsPerMph = 5280. / 3600.

// 数值容差
const (
	SpeedEpsilon    = 1e-2 // mph，速度与加速度的零值容差
	PositionEpsilon = 1e-4 // ft，位置零值容差
)

// MphToFps mph转换为ft/s（也用于mph/s到ft/s²）
func MphToFps(v float64) float64 {
	return v * FpsPerMph
}

// FpsToMph ft/s转换为mph
func FpsToMph(v float64) float64 {
	return v / FpsPerMph
}

// TrainID 列车句柄，每次仿真内单调分配
type TrainID int32

// NoTrain 表示不存在列车
const NoTrain TrainID = -1

// Direction 行车方向
type Direction int32

const (
	Southbound Direction = iota // 下行，自O'Hare往Forest Park
	Northbound                  // 上行
)

var directionNames = map[Direction]string{
	Southbound: "Southbound",
	Northbound: "Northbound",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Direction(%d)", int32(d))
}

// Opposite 相反方向
func (d Direction) Opposite() Direction {
	if d == Southbound {
		return Northbound
	}
	return Southbound
}

// Sign 里程方向符号，下行为+1，上行为-1
func (d Direction) Sign() float64 {
	if d == Southbound {
		return 1
	}
	return -1
}

// ParseDirection 解析方向名
func ParseDirection(s string) (Direction, error) {
	for d, name := range directionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrConfiguration, s)
}

// Directions 全部方向，按固定顺序
func Directions() []Direction {
	return []Direction{Southbound, Northbound}
}
