// 随机数引擎，包装了golang.org/x/exp/rand，提供仿真中用到的各类分布
package randengine

import (
	"flag"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成

	log = logrus.WithField("module", "randengine")
)

// Engine 随机数引擎
// 功能：一次仿真（replication）持有一个根引擎，各组件通过Child获得独立的子引擎
// 说明：非线程安全，仿真主循环为单线程
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 功能：初始化一个新的随机数引擎实例
// 参数：seed-随机数种子
// 返回：随机数引擎指针
// 说明：种子偏移量允许在不修改配置的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Child 派生子引擎
// 功能：从当前引擎抽取一个种子创建独立的子引擎
// 说明：子引擎的派生顺序固定时，各组件的随机序列互不干扰且可复现
func (e *Engine) Child() *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(e.Uint64()))}
}

// DiscreteDistribution 按给定概率分布生成随机数
// 功能：根据权重数组生成离散分布的随机数
// 参数：weight-权重数组，每个元素表示对应索引的概率权重
// 返回：随机生成的索引值（0到len(weight)-1）
// 算法说明：
// 1. 计算总权重
// 2. 在[0, 总权重)范围内生成随机数
// 3. 累积权重直到超过随机数，返回对应索引
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}

// PTrue 以指定概率返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Uniform 生成[lo, hi)上的均匀分布随机数
func (e *Engine) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.Float64()
}

// Exponential 生成指定速率的指数分布随机数（泊松过程的到达间隔）
// 参数：rate-单位时间平均事件数，必须为正
func (e *Engine) Exponential(rate float64) float64 {
	return distuv.Exponential{Rate: rate, Src: e.Rand}.Rand()
}

// Triangular 生成三角分布随机数
// 参数：lo-下限，mode-众数，hi-上限
// 说明：hi<=lo时退化为lo，众数截断到[lo, hi]
func (e *Engine) Triangular(lo, mode, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	mode = min(max(mode, lo), hi)
	return distuv.NewTriangle(lo, hi, mode, e.Rand).Rand()
}
