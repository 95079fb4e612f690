package output

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// HeadwayStat 单个车站的到站间隔统计
type HeadwayStat struct {
	Station string
	Count   int
	Mean    float64
	StdDev  float64
	CV      float64 // 变异系数 StdDev/Mean
}

func (s HeadwayStat) String() string {
	return fmt.Sprintf("%s: n=%d mean=%.1fs std=%.1fs cv=%.3f", s.Station, s.Count, s.Mean, s.StdDev, s.CV)
}

// NewHeadwayStat 计算间隔序列的均值、标准差与变异系数
// 说明：少于2个样本时标准差与变异系数为0
func NewHeadwayStat(station string, headways []float64) HeadwayStat {
	s := HeadwayStat{Station: station, Count: len(headways)}
	if len(headways) == 0 {
		return s
	}
	if len(headways) == 1 {
		s.Mean = headways[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(headways, nil)
	if s.Mean > 0 {
		s.CV = s.StdDev / s.Mean
	}
	return s
}
