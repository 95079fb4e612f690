package train

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/entity/path"
	"github.com/tsinghua-fib-lab/railsim/entity/station"
	"github.com/tsinghua-fib-lab/railsim/output"
)

// 车长（英尺）：每节48英尺
const carLength = 48.

// 停车点距站台末端的余量范围（英尺）
const (
	stopOffsetMin = 5.
	stopOffsetMax = 10.
)

// State 列车生命周期状态
type State int32

const (
	Waiting                  State = iota // 等待投入运行
	Moving                                // 运行
	DwellingAtStation                     // 停站
	SettingUpForShortTurning              // 折返准备
	Finished                              // 结束运行
)

var stateNames = map[State]string{
	Waiting:                  "Waiting",
	Moving:                   "Moving",
	DwellingAtStation:        "DwellingAtStation",
	SettingUpForShortTurning: "SettingUpForShortTurning",
	Finished:                 "Finished",
}

func (s State) String() string {
	return stateNames[s]
}

type visitKey struct {
	dir entity.Direction
	id  string
}

// Train 列车
type Train struct {
	manager *TrainManager

	id         entity.TrainID
	runID      string
	length     float64
	dispatched float64

	path  *path.Path
	index int     // 车头所在分区下标
	s     float64 // 车头距所在分区起点（英尺）
	v     float64 // mph
	a     float64 // mph/s

	travelled float64 // 累计走行距离（英尺）

	state       State
	reg         regulator
	passengers  *PassengerManager
	symptomatic *block.Block // 正对本车失码的分区

	nextStop   int     // 下一停站在进路停站中的序号
	stopOffset float64 // 本次停站的停车余量
	dwellUntil float64
	setupUntil float64
	swapped    bool // 是否已完成折返

	visits map[visitKey]float64 // 分区 -> 本车激活时间
}

func (t *Train) String() string {
	return fmt.Sprintf("Train{%d run=%s %s block=%s s=%.1f v=%.2f %v/%v}",
		t.id, t.runID, t.path.Name(), t.Block().ID(), t.s, t.v, t.state, t.reg.state.kind)
}

func (t *Train) ID() entity.TrainID  { return t.id }
func (t *Train) RunID() string       { return t.runID }
func (t *Train) Path() *path.Path    { return t.path }
func (t *Train) Index() int          { return t.index }
func (t *Train) S() float64          { return t.s }
func (t *Train) V() float64          { return t.v }
func (t *Train) A() float64          { return t.a }
func (t *Train) Length() float64     { return t.length }
func (t *Train) State() State        { return t.state }
func (t *Train) Travelled() float64  { return t.travelled }
func (t *Train) Dispatched() float64 { return t.dispatched }
func (t *Train) ShortTurned() bool   { return t.swapped }
func (t *Train) Regulator() string   { return t.reg.state.kind.String() }
func (t *Train) Block() *block.Block { return t.path.Block(t.index) }
func (t *Train) Onboard() int        { return t.passengers.Onboard() }
func (t *Train) NextStop() int       { return t.nextStop }
func (t *Train) IsFinished() bool    { return t.state == Finished }

func (t *Train) Direction() entity.Direction {
	return t.path.Direction()
}

// Visit 本车激活分区的时间
func (t *Train) Visit(dir entity.Direction, blockID string) (float64, bool) {
	at, ok := t.visits[visitKey{dir, blockID}]
	return at, ok
}

// rear 车尾沿进路的位置
func (t *Train) rear() float64 {
	return t.path.Travelled(t.index, t.s) - t.length
}

// rearOffsetIn 车尾在进路第j个分区内距其起点的距离
func (t *Train) rearOffsetIn(j int) float64 {
	return math.Max(0, t.rear()-t.path.Travelled(j, 0))
}

func (t *Train) drawStopOffset() {
	t.stopOffset = t.manager.rng.Uniform(stopOffsetMin, stopOffsetMax)
}

// update 列车单步更新
func (t *Train) update(now, dt float64) error {
	switch t.state {
	case Waiting:
		if t.setupUntil > 0 {
			return t.tryReenter(now, dt)
		}
		t.state = Moving
		return t.move(now, dt)
	case Moving:
		return t.move(now, dt)
	case DwellingAtStation:
		if now >= t.dwellUntil {
			t.nextStop++
			t.drawStopOffset()
			t.reg.set(leavingStation)
			t.state = Moving
			return t.move(now, dt)
		}
	case SettingUpForShortTurning:
		if now >= t.setupUntil {
			return t.tryReenter(now, dt)
		}
	case Finished:
	default:
		log.Panicf("train %d: unknown state %d", t.id, t.state)
	}
	return nil
}

// move 运动学积分与分区推进
// 算法说明：
// 1. 由调节器得到期望加速度，限制在[-紧急制动, 牵引加速度]内且本步末速度不为负
// 2. 积分位置与速度，接近0的值置为0
// 3. 车头越过分区末端时逐个激活下一分区
// 4. 释放车尾已离开的分区
// 5. 步末调节器状态转移
func (t *Train) move(now, dt float64) error {
	cfg := t.reg.cfg
	a := t.regulate(dt)
	a = lo.Clamp(a, -cfg.emergency, tractiveEffort(t.v, cfg.scale))
	if t.v+a*dt < 0 {
		a = -t.v / dt
	}
	ds := entity.FpsPerMph * (t.v*dt + .5*a*dt*dt)
	v := t.v + a*dt
	if v < -entity.SpeedEpsilon {
		return fmt.Errorf("%w: train %d v=%.4f a=%.4f at %s", entity.ErrNegativeSpeed, t.id, v, a, t.Block().ID())
	}
	if math.Abs(v) < entity.SpeedEpsilon {
		v = 0
	}
	if math.Abs(a) < entity.SpeedEpsilon {
		a = 0
	}
	if math.Abs(ds) < entity.PositionEpsilon {
		ds = 0
	}
	t.v, t.a = v, a
	t.s += ds
	t.travelled += ds

	for t.s > t.Block().Length() {
		t.s -= t.Block().Length()
		if t.index+1 >= t.path.Len() {
			return fmt.Errorf("%w: train %d past the end of %s", entity.ErrNextBlockNotFound, t.id, t.path.Name())
		}
		t.index++
		done, err := t.activate(now)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := t.releaseRear(); err != nil {
		return err
	}
	if t.transit(dt) {
		t.arrive(now)
	}
	return nil
}

// activate 激活车头所在分区
// 返回：列车已离开进路（到达终点或进入折返准备）
func (t *Train) activate(now float64) (bool, error) {
	b := t.Block()
	switch b.Kind() {
	case block.KindTerminal:
		t.releaseAll()
		t.state = Finished
		t.v, t.a = 0, 0
		if n := t.passengers.Onboard(); n > 0 {
			log.Warnf("train %d reached terminal with %d passengers on board", t.id, n)
		}
		t.manager.ctx.Dispatcher().OnTerminalArrival(t.path.Direction(), now)
		log.Debugf("train %d (%s) reached %s terminal at %.1f", t.id, t.runID, t.path.Name(), now)
		return true, nil
	case block.KindShortTurner:
		st := t.manager.paths.ShortTurning()
		if st == nil || st.Path != t.path {
			return false, fmt.Errorf("%w: short turner %s outside short turning path", entity.ErrConfiguration, b.ID())
		}
		t.releaseAll()
		t.state = SettingUpForShortTurning
		t.v, t.a = 0, 0
		t.setupUntil = now + st.SetupDelay(t.manager.rng)
		log.Debugf("train %d (%s) short turning until %.1f", t.id, t.runID, t.setupUntil)
		return true, nil
	}
	visit, err := b.Activate(t.id, now)
	if err != nil {
		return false, fmt.Errorf("train %d: %w", t.id, err)
	}
	t.visits[visitKey{b.Direction(), b.ID()}] = now
	t.reg.resample()
	t.manager.ctx.Logger().Block(output.BlockRecord{
		Time:      now,
		Block:     b.ID(),
		Direction: b.Direction().String(),
		TrainID:   int32(t.id),
		Headway:   visit.Headway,
	})
	if visit.Symptomatic {
		t.symptomatic = b
		t.reg.state = regState{kind: stopAtSymptomatic, limit: visit.Clearance}
	}
	return false, nil
}

// releaseRear 自车头前一分区向后释放车尾已离开的分区
func (t *Train) releaseRear() error {
	rear := t.rear()
	for j := t.index - 1; j >= 0; j-- {
		if t.path.Travelled(j+1, 0) > rear {
			break
		}
		if err := t.path.Block(j).Deactivate(t.id); err != nil {
			if errors.Is(err, entity.ErrReleasingNotOccupiedBlock) {
				break
			}
			return err
		}
	}
	return nil
}

// releaseAll 立即释放全部占用分区
func (t *Train) releaseAll() {
	for _, b := range t.path.Blocks() {
		if b.IsOccupiedBy(t.id) {
			_ = b.Deactivate(t.id)
		}
	}
}

// tryReenter 折返准备完成后在上行重新投入分区投入运行，分区未就绪或来车无法停车时等待
func (t *Train) tryReenter(now, dt float64) error {
	north, idx := t.manager.paths.ShortTurning().Swap()
	b := north.Block(idx)
	if !b.Ready(now) || !t.approachClear(north, idx, dt) {
		t.state = Waiting
		return nil
	}
	t.path = north
	t.index = idx
	t.s, t.v, t.a = 0, 0, 0
	t.swapped = true
	t.setupUntil = 0
	t.nextStop = north.NextStop(idx, 0)
	t.drawStopOffset()
	t.reg.set(keepingSpeed)
	t.state = Moving
	if _, err := t.activate(now); err != nil {
		return err
	}
	log.Debugf("train %d (%s) re-entered %s at %s", t.id, t.runID, north.Name(), b.ID())
	return nil
}

// approachClear 上行来车能否在重新投入分区之前停车
// 算法说明：取投入分区后方最近的列车，要求其车头至投入分区起点的距离超过
// 常用制动距离、停车余量与一步行驶距离之和（移动闭塞另加安全余量）
func (t *Train) approachClear(north *path.Path, idx int, dt float64) bool {
	id, _, ok := north.FollowingTrain(idx-1, t.id)
	if !ok {
		return true
	}
	other, err := t.manager.GetOrError(id)
	if err != nil {
		return true
	}
	need := brakingDistance(other.v, other.reg.cfg.normal) + other.standoff() + entity.FpsPerMph*other.v*dt
	if t.manager.mbc != nil {
		need += t.manager.mbc.SafetyMargin()
	}
	return north.DistanceAhead(other.index, other.s, idx) > need
}

// arrive 进站停稳后的上下车与停站时间计算
// 算法说明：
// 1. 记录到站间隔
// 2. 下车：目的站为本站的乘客下车；折返站全部清客，未到目的站的乘客按原到达时间重新候车
// 3. 根据前后车间隔计算滞留时间
// 4. 生成截至本次发车（含滞留）的到站乘客
// 5. 上车（折返站不载客）
// 6. 停站时间 = max(上下车时间, 滞留时间)
func (t *Train) arrive(now float64) {
	m := t.manager
	stop := t.path.Stops()[t.nextStop]
	stn := m.stations.Get(t.path.Direction(), stop.Name)
	terminus := t.isShortTurnTerminus()

	headway := stn.Visit(now)
	platformBefore := stn.QueueLength()

	t.passengers.BeginStop()
	alighted := t.passengers.Alight(func(p *station.Passenger) bool {
		return terminus || p.Destination == stop.Name
	})
	for _, p := range alighted {
		if p.Destination == stop.Name {
			p.Alight(now)
			m.ctx.Logger().Passenger(p.ToRecord())
			m.served++
		} else {
			p.TransferAlight(now)
			stn.Enqueue(p)
		}
	}

	holding := m.holding(t, stn, now)
	stn.GenerateArrivals(now + holding)

	var res station.BoardResult
	if !terminus {
		served := t.path.ServedStationsAhead(t.nextStop)
		res = stn.Board(now, t.id, t.passengers.Remaining(), served, m.pAny)
		for _, p := range t.passengers.Board(res.Boarded) {
			// 车厢已满的乘客退回站台
			stn.Enqueue(p)
		}
	}
	dwell := math.Max(m.dwell(t.passengers.DoorMetrics()), holding)

	m.ctx.Logger().Station(output.StationRecord{
		Station:        stop.Name,
		Direction:      t.path.Direction().String(),
		Time:           now,
		TrainID:        int32(t.id),
		Headway:        headway,
		Dwell:          dwell,
		Holding:        holding,
		Boards:         len(res.Boarded),
		Alights:        len(alighted),
		OnboardAfter:   t.passengers.Onboard(),
		PlatformBefore: platformBefore,
		ShortTurn:      terminus,
		Denials:        res.Denied,
	})
	t.dwellUntil = now + dwell
	t.state = DwellingAtStation
}

func (t *Train) isShortTurnTerminus() bool {
	st := t.manager.paths.ShortTurning()
	return st != nil && st.Path == t.path && t.nextStop == st.Terminus()
}

// record 列车轨迹记录
func (t *Train) record(now float64) output.TrainRecord {
	return output.TrainRecord{
		Time:         now,
		TrainID:      int32(t.id),
		RunID:        t.runID,
		Path:         t.path.Name(),
		Block:        t.Block().ID(),
		S:            t.s,
		Travelled:    t.travelled,
		Speed:        t.v,
		Acceleration: t.a,
		State:        t.state.String(),
		Regulator:    t.Regulator(),
		Onboard:      t.passengers.Onboard(),
	}
}
