package train

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/entity/path"
	"github.com/tsinghua-fib-lab/railsim/entity/station"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

var log = logrus.WithField("module", "train")

// TrainManager 列车管理器
// 功能：列车的创建、按创建顺序逐步更新、结束运行后回收，并提供移动闭塞所需的列车位置查询
type TrainManager struct {
	ctx      entity.ITaskContext
	paths    *path.PathManager
	stations *station.StationManager
	rng      *randengine.Engine

	regCfg    *regulatorConfig
	mbc       *path.MovingBlockControl // 固定闭塞时为nil
	dwell     station.DwellFunc
	holdingAt map[string]station.HoldingRegulator // 控制站 -> 滞留调节器
	holdAll   station.HoldingRegulator            // 各站通用的滞留调节器
	pAny      float64

	cars, carCapacity, seats int

	trains []*Train // 按创建顺序
	data   map[entity.TrainID]*Train
	nextID entity.TrainID

	spawned, finished, served int
}

// NewManager 创建列车管理器实例
func NewManager(ctx entity.ITaskContext, paths *path.PathManager, stations *station.StationManager, rng *randengine.Engine) *TrainManager {
	return &TrainManager{
		ctx:       ctx,
		paths:     paths,
		stations:  stations,
		rng:       rng,
		holdingAt: make(map[string]station.HoldingRegulator),
		data:      make(map[entity.TrainID]*Train),
	}
}

// Init 根据配置初始化调节器、停站时间模型、滞留策略与移动闭塞控制
// 算法说明（滞留策略）：
// 1. 仅启用holding：控制站使用带上下限的滞留
// 2. 同时启用holding与headway_management：控制站使用考虑前方客流的滞留
// 3. 仅启用headway_management：所有车站使用前后车间隔均衡
func (m *TrainManager) Init() error {
	c := m.ctx.RuntimeConfig().All
	m.regCfg = newRegulatorConfig(c.Train)
	m.cars = int(c.Train.Cars)
	m.carCapacity = int(c.Train.CarCapacity)
	m.seats = int(c.Train.SeatsPerCar)
	m.dwell = station.NewDwellFunc(c.Station, float64(m.carCapacity)/doorsPerCar)
	m.pAny = c.Passenger.ProbabilityOfBoardingAnyTrain

	s := c.Strategy
	capped := station.StationCapped{Min: s.MinHolding, Max: s.MaxHolding}
	switch {
	case s.Holding:
		_, errSB := m.stations.GetOrError(entity.Southbound, s.Station)
		_, errNB := m.stations.GetOrError(entity.Northbound, s.Station)
		if errSB != nil && errNB != nil {
			return fmt.Errorf("%w: holding station %q not found", entity.ErrConfiguration, s.Station)
		}
		if s.HeadwayManagement {
			m.holdingAt[s.Station] = station.CrowdingAware{StationCapped: capped}
		} else {
			m.holdingAt[s.Station] = capped
		}
		log.Infof("holding at %s: min=%.0fs max=%.0fs headway_management=%v", s.Station, s.MinHolding, s.MaxHolding, s.HeadwayManagement)
	case s.HeadwayManagement:
		m.holdAll = station.LeaderFollower{}
		log.Info("headway management at every station")
	}

	if c.Signal.Mode == config.SignalMoving {
		m.mbc = path.NewMovingBlockControl(m, c.Signal.SafetyMargin, c.Train.NormalDeceleration)
	}
	return nil
}

// Spawn 在进路p的第index个分区投入一列新车
// 返回：新列车；分区已被占用时返回ErrBlockAlreadyOccupied
func (m *TrainManager) Spawn(p *path.Path, index int, runID string, now float64) (*Train, error) {
	b := p.Block(index)
	if b == nil || b.Kind() != block.KindNormal {
		return nil, fmt.Errorf("%w: cannot spawn on %s block %d", entity.ErrConfiguration, p.Name(), index)
	}
	t := &Train{
		manager:    m,
		id:         m.nextID,
		runID:      runID,
		length:     carLength * float64(m.cars),
		dispatched: now,
		path:       p,
		index:      index,
		state:      Waiting,
		reg:        newRegulator(m.regCfg, m.rng),
		passengers: NewPassengerManager(m.cars, m.carCapacity, m.seats),
		nextStop:   p.NextStop(index, 0),
		visits:     make(map[visitKey]float64),
	}
	t.drawStopOffset()
	if _, err := t.activate(now); err != nil {
		return nil, err
	}
	m.nextID++
	m.spawned++
	m.trains = append(m.trains, t)
	m.data[t.id] = t
	log.Debugf("spawn train %d (%s) on %s at %s, t=%.1f", t.id, runID, p.Name(), b.ID(), now)
	return t, nil
}

// Update 按创建顺序更新所有列车，并回收结束运行的列车
// 返回：第一个运行期错误，出错后本步其余列车不再更新
func (m *TrainManager) Update() error {
	clk := m.ctx.Clock()
	for _, t := range m.trains {
		if err := t.update(clk.T, clk.DT); err != nil {
			return err
		}
	}
	logger := m.ctx.Logger()
	if logger.SampleTrain(clk.InternalStep) {
		for _, t := range m.trains {
			if !t.IsFinished() {
				logger.Train(t.record(clk.T))
			}
		}
	}
	m.trains = lo.Filter(m.trains, func(t *Train, _ int) bool {
		if t.IsFinished() {
			delete(m.data, t.id)
			m.finished++
			return false
		}
		return true
	})
	return nil
}

// holding 列车t在车站stn的滞留时间
// 说明：前车间隔取本站所在分区上一列车的到达时间，后车间隔取本车到达后车当前所在分区的时间
func (m *TrainManager) holding(t *Train, stn *station.Station, now float64) float64 {
	reg, ok := m.holdingAt[stn.Name()]
	if !ok {
		reg = m.holdAll
	}
	if reg == nil {
		return 0
	}
	var in station.HoldingInput
	stationBlock := t.path.Block(t.path.Stops()[t.nextStop].Index)
	if prev, ok := stationBlock.VisitBefore(t.id); ok {
		in.HasLeader = true
		in.ForwardGap = now - prev
	}
	if _, j, ok := t.path.FollowingTrain(t.index, t.id); ok {
		if at, ok := t.Visit(t.path.Direction(), t.path.Block(j).ID()); ok {
			in.HasFollower = true
			in.BackwardGap = now - at
		}
	}
	in.QueuesAhead = lo.Map(t.path.ServedStationsAhead(t.nextStop), func(name string, _ int) int {
		return m.stations.Get(t.path.Direction(), name).QueueLength()
	})
	return reg.Holding(in)
}

// RearOffsetIn 实现entity.ITrainLocator
func (m *TrainManager) RearOffsetIn(id entity.TrainID, dir entity.Direction, blockID string) (float64, bool) {
	t, ok := m.data[id]
	if !ok || t.path.Direction() != dir {
		return 0, false
	}
	j, ok := t.path.Index(blockID)
	if !ok || !t.path.Block(j).IsOccupiedBy(id) {
		return 0, false
	}
	return t.rearOffsetIn(j), true
}

// Get 根据id获取运行中的列车，不存在则panic
func (m *TrainManager) Get(id entity.TrainID) *Train {
	if t, ok := m.data[id]; !ok {
		log.Panicf("no train %d", id)
		return nil
	} else {
		return t
	}
}

// GetOrError 根据id获取运行中的列车
func (m *TrainManager) GetOrError(id entity.TrainID) (*Train, error) {
	if t, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no train %d", id)
	} else {
		return t, nil
	}
}

// Trains 运行中的列车，按创建顺序
func (m *TrainManager) Trains() []*Train {
	return m.trains
}

func (m *TrainManager) Spawned() int  { return m.spawned }
func (m *TrainManager) Finished() int { return m.finished }
func (m *TrainManager) Served() int   { return m.served }
