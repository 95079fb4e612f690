package station

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

var log = logrus.WithField("module", "station")

// StationManager 车站管理器
// 功能：按线路分区上的车站信息创建两个方向的站台，所有站台共享一个客流随机数引擎
type StationManager struct {
	data     map[entity.Direction]map[string]*Station
	stations map[entity.Direction][]*Station

	rates   entity.IArrivalRateProvider
	weekday bool
	rng     *randengine.Engine

	passengerID int64
}

// NewManager 创建车站管理器
// 参数：rates-到达率表（可为nil，此时不产生客流），weekday-是否为工作日，rng-客流随机数引擎
func NewManager(rates entity.IArrivalRateProvider, weekday bool, rng *randengine.Engine) *StationManager {
	return &StationManager{
		data:     make(map[entity.Direction]map[string]*Station),
		stations: make(map[entity.Direction][]*Station),
		rates:    rates,
		weekday:  weekday,
		rng:      rng,
	}
}

// Init 由闭塞分区创建车站
// 参数：blocks-闭塞分区管理器，start-客流生成起始时间（秒）
// 返回：同方向重名车站时返回ErrConfiguration
func (m *StationManager) Init(blocks *block.BlockManager, start float64) error {
	for _, dir := range entity.Directions() {
		m.data[dir] = make(map[string]*Station)
		for _, b := range blocks.Blocks(dir) {
			name, offset, ok := b.Station()
			if !ok {
				continue
			}
			if _, dup := m.data[dir][name]; dup {
				return fmt.Errorf("%w: duplicate %v station %s", entity.ErrConfiguration, dir, name)
			}
			s := newStation(m, name, dir, b.ID(), offset, m.rng, start)
			m.data[dir][name] = s
			m.stations[dir] = append(m.stations[dir], s)
		}
		names := lo.Map(m.stations[dir], func(s *Station, _ int) string { return s.name })
		for i, s := range m.stations[dir] {
			s.downstream = names[i+1:]
		}
		log.Infof("%v: %d stations", dir, len(m.stations[dir]))
	}
	return nil
}

func (m *StationManager) nextPassengerID() int64 {
	id := m.passengerID
	m.passengerID++
	return id
}

// Get 根据方向与站名获取车站，不存在则panic
func (m *StationManager) Get(dir entity.Direction, name string) *Station {
	if s, ok := m.data[dir][name]; !ok {
		log.Panicf("no %v station %s", dir, name)
		return nil
	} else {
		return s
	}
}

// GetOrError 根据方向与站名获取车站
func (m *StationManager) GetOrError(dir entity.Direction, name string) (*Station, error) {
	if s, ok := m.data[dir][name]; !ok {
		return nil, fmt.Errorf("no %v station %s", dir, name)
	} else {
		return s, nil
	}
}

// Stations 某方向的车站，按行车顺序
func (m *StationManager) Stations(dir entity.Direction) []*Station {
	return m.stations[dir]
}

// Waiting 两个方向站台上的候车总人数
func (m *StationManager) Waiting() int {
	all := lo.Flatten([][]*Station{m.stations[entity.Southbound], m.stations[entity.Northbound]})
	return lo.SumBy(all, func(s *Station) int { return s.QueueLength() })
}
