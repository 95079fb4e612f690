package train

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/entity/station"
)

// 每节车的车门数
const doorsPerCar = 2

// PassengerManager 车内乘客管理
// 功能：按车厢记录乘客，统计每个车门的上下车人数，供停站时间计算
type PassengerManager struct {
	cars        [][]*station.Passenger
	carCapacity int
	seats       int

	// 当前停站的车门统计
	alights  []int
	boards   []int
	standees []float64
}

// NewPassengerManager 创建车内乘客管理
// 参数：cars-编组车辆数，carCapacity-每车定员，seats-每车座位数
func NewPassengerManager(cars, carCapacity, seats int) *PassengerManager {
	doors := cars * doorsPerCar
	return &PassengerManager{
		cars:        make([][]*station.Passenger, cars),
		carCapacity: carCapacity,
		seats:       seats,
		alights:     make([]int, doors),
		boards:      make([]int, doors),
		standees:    make([]float64, doors),
	}
}

// Capacity 列车定员
func (m *PassengerManager) Capacity() int {
	return len(m.cars) * m.carCapacity
}

// Onboard 车内乘客数
func (m *PassengerManager) Onboard() int {
	return lo.SumBy(m.cars, func(c []*station.Passenger) int { return len(c) })
}

// Remaining 剩余载客量
func (m *PassengerManager) Remaining() int {
	return max(0, m.Capacity()-m.Onboard())
}

// Passengers 车内全部乘客
func (m *PassengerManager) Passengers() []*station.Passenger {
	return lo.Flatten(m.cars)
}

// BeginStop 开始一次停站，清空车门统计
func (m *PassengerManager) BeginStop() {
	for i := range m.alights {
		m.alights[i] = 0
		m.boards[i] = 0
		m.standees[i] = 0
	}
}

// Alight 满足条件的乘客下车
// 说明：下车后按车厢统计不下车的站立乘客，平均分配到该车厢的各车门
func (m *PassengerManager) Alight(pred func(p *station.Passenger) bool) []*station.Passenger {
	var alighted []*station.Passenger
	for c, car := range m.cars {
		off, stay := lo.FilterReject(car, func(p *station.Passenger, _ int) bool { return pred(p) })
		for _, p := range off {
			m.alights[int(p.Door)]++
		}
		alighted = append(alighted, off...)
		m.cars[c] = stay
		through := float64(max(0, len(stay)-m.seats)) / doorsPerCar
		for d := range doorsPerCar {
			m.standees[c*doorsPerCar+d] = through
		}
	}
	return alighted
}

// Board 乘客上车
// 算法说明：逐个分配到剩余空间最大的车厢（相同时取编号小者），再分配到该车厢本站上车人数较少的车门
// 返回：因满载未能上车的乘客
func (m *PassengerManager) Board(ps []*station.Passenger) (rejected []*station.Passenger) {
	for _, p := range ps {
		best, room := -1, 0
		for c, car := range m.cars {
			if r := m.carCapacity - len(car); r > room {
				best, room = c, r
			}
		}
		if best < 0 {
			rejected = append(rejected, p)
			continue
		}
		door := best * doorsPerCar
		for d := 1; d < doorsPerCar; d++ {
			if m.boards[best*doorsPerCar+d] < m.boards[door] {
				door = best*doorsPerCar + d
			}
		}
		m.cars[best] = append(m.cars[best], p)
		m.boards[door]++
		p.Car = int32(best)
		p.Door = int32(door)
	}
	return rejected
}

// DoorMetrics 当前停站的车门统计
func (m *PassengerManager) DoorMetrics() []station.DoorMetric {
	return lo.Times(len(m.alights), func(i int) station.DoorMetric {
		return station.DoorMetric{
			Alight:          float64(m.alights[i]),
			Board:           float64(m.boards[i]),
			ThroughStandees: m.standees[i],
		}
	})
}

// Clear 清空车内乘客
func (m *PassengerManager) Clear() []*station.Passenger {
	all := m.Passengers()
	for c := range m.cars {
		m.cars[c] = nil
	}
	return all
}
