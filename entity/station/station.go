package station

import (
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/utils/container"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

// 到达率时段长度（秒）
const BinSeconds = 900.

// Station 车站（单方向站台）
type Station struct {
	manager *StationManager

	name      string
	direction entity.Direction
	blockID   string
	offset    float64 // 站台末端距所在分区起点（英尺）

	downstream []string // 同方向前方车站，按行车顺序
	queue      container.List[*Passenger]
	rng        *randengine.Engine

	generatedUntil float64 // 客流已生成到的时间
	visited        bool
	lastVisit      float64
}

func newStation(m *StationManager, name string, dir entity.Direction, blockID string, offset float64, rng *randengine.Engine, start float64) *Station {
	s := &Station{
		manager:        m,
		name:           name,
		direction:      dir,
		blockID:        blockID,
		offset:         offset,
		rng:            rng,
		generatedUntil: start,
	}
	s.queue.ID = fmt.Sprintf("%v/%s", dir, name)
	return s
}

func (s *Station) String() string {
	return fmt.Sprintf("Station{%s %v block=%s}", s.name, s.direction, s.blockID)
}

func (s *Station) Name() string                { return s.name }
func (s *Station) Direction() entity.Direction { return s.direction }
func (s *Station) BlockID() string             { return s.blockID }
func (s *Station) Offset() float64             { return s.offset }
func (s *Station) Downstream() []string        { return s.downstream }

// QueueLength 站台候车人数
func (s *Station) QueueLength() int {
	return s.queue.Len()
}

// Waiting 站台候车乘客，按到达时间排列
func (s *Station) Waiting() []*Passenger {
	return s.queue.Values()
}

// Enqueue 乘客进入候车队列，按到达时间稳定插入
func (s *Station) Enqueue(p *Passenger) {
	s.queue.Insert(container.NewNode(p.Arrival, p))
}

// Visit 记录列车到站
// 返回：与上一列车到站的间隔，首车为-1
func (s *Station) Visit(t float64) float64 {
	headway := -1.
	if s.visited {
		headway = t - s.lastVisit
	}
	s.visited = true
	s.lastVisit = t
	return headway
}

// GenerateArrivals 生成截至until的到站乘客
// 算法说明：
// 1. 从上次生成的截止时间开始，逐个15分钟时段处理
// 2. 时段内的总到达率为前往所有前方车站的到达率之和，按泊松过程抽取到达间隔
// 3. 目的站按各目的站到达率占比抽取
// 返回：新生成的乘客数
func (s *Station) GenerateArrivals(until float64) int {
	rates := s.manager.rates
	if rates == nil || until <= s.generatedUntil {
		return 0
	}
	count := 0
	t := s.generatedUntil
	for t < until {
		bin := int(math.Floor(t / BinSeconds))
		binEnd := math.Min(float64(bin+1)*BinSeconds, until)
		byDest := rates.Rates(bin, s.manager.weekday, s.name)
		dests := lo.Filter(s.downstream, func(d string, _ int) bool { return byDest[d] > 0 })
		weights := lo.Map(dests, func(d string, _ int) float64 { return byDest[d] })
		total := lo.Sum(weights)
		if total > 0 {
			perSecond := total / BinSeconds
			for at := t + s.rng.Exponential(perSecond); at < binEnd; at += s.rng.Exponential(perSecond) {
				dest := dests[s.rng.DiscreteDistribution(weights)]
				s.Enqueue(NewPassenger(s.manager.nextPassengerID(), s.name, dest, s.direction, at))
				count++
			}
		}
		t = binEnd
	}
	s.generatedUntil = until
	return count
}

// BoardResult 一次上车的结果
type BoardResult struct {
	Boarded []*Passenger
	Denied  int // 因满载未能上车的乘客数
}

// Board 按到达顺序上车
// 参数：t-当前时间，train-列车，capacity-剩余载客量，served-列车前方将停靠的车站，pAny-乘客搭乘任意列车的概率
// 算法说明：
// 1. 按到达时间顺序遍历候车队列
// 2. 目的站在served中：有余量则上车，否则记一次被拒
// 3. 目的站不在served中：有余量时以概率pAny上车，否则留在站台
func (s *Station) Board(t float64, train entity.TrainID, capacity int, served []string, pAny float64) BoardResult {
	var res BoardResult
	for node := s.queue.First(); node != nil; {
		next := node.Next()
		p := node.Value
		if slices.Contains(served, p.Destination) {
			if capacity > 0 {
				res.Boarded = append(res.Boarded, p)
				capacity--
				s.queue.Remove(node)
			} else {
				p.Denials++
				res.Denied++
			}
		} else if capacity > 0 && pAny > 0 && s.rng.PTrue(pAny) {
			res.Boarded = append(res.Boarded, p)
			capacity--
			s.queue.Remove(node)
		}
		node = next
	}
	for _, p := range res.Boarded {
		p.Board(t, train)
	}
	return res
}
