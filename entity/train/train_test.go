package train

import (
	"fmt"
	"math"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim/clock"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/entity/path"
	"github.com/tsinghua-fib-lab/railsim/entity/station"
	"github.com/tsinghua-fib-lab/railsim/output"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
	"github.com/tsinghua-fib-lab/railsim/utils/input"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
	"gonum.org/v1/gonum/stat"
)

type arrival struct {
	dir entity.Direction
	t   float64
}

type fakeDispatcher struct {
	arrivals []arrival
}

func (d *fakeDispatcher) OnTerminalArrival(dir entity.Direction, t float64) {
	d.arrivals = append(d.arrivals, arrival{dir, t})
}

type fakeContext struct {
	clk    *clock.Clock
	rc     *config.RuntimeConfig
	sink   *output.MemorySink
	logger *output.Logger
	disp   *fakeDispatcher
}

func (c *fakeContext) Clock() *clock.Clock                  { return c.clk }
func (c *fakeContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *fakeContext) Logger() *output.Logger               { return c.logger }
func (c *fakeContext) Dispatcher() entity.IDispatcher       { return c.disp }

// 两个方向各10个1000英尺分区，第2、7个分区设站（站台末端距分区起点700英尺）
var civilCodes = []float64{35, 35, 55, 55, 55, 55, 55, 55, 35, 35}

func line() *input.Infrastructure {
	var res input.Infrastructure
	n := len(civilCodes)
	for i, code := range civilCodes {
		sb := input.BlockRecord{Block: input.ID(fmt.Sprintf("S%d", i)), Distance: 1000, Speed: code, StartStn: float64(i * 1000)}
		nb := input.BlockRecord{Block: input.ID(fmt.Sprintf("N%d", i)), Distance: 1000, Speed: code, StartStn: float64((n - i) * 1000)}
		if i == 2 || i == 7 {
			name := fmt.Sprintf("St%d", i)
			sb.Station = &input.StationRecord{Name: name, EndOfPlatformMilepost: float64(i*1000 + 700)}
			nb.Station = &input.StationRecord{Name: name, EndOfPlatformMilepost: float64((n-i)*1000 - 700)}
		}
		res.Southbound = append(res.Southbound, sb)
		res.Northbound = append(res.Northbound, nb)
	}
	return &res
}

type fixture struct {
	ctx      *fakeContext
	blocks   *block.BlockManager
	paths    *path.PathManager
	stations *station.StationManager
	trains   *TrainManager
}

type option struct {
	moving       bool
	cta          bool
	desired      config.Range
	offScan      []input.OffScanBlock
	shortTurning map[string]input.ShortTurning
	strategy     string
	infra        func(*input.Infrastructure)
}

func newFixture(t *testing.T, opt option) *fixture {
	c := config.Config{Control: config.Control{Step: config.ControlStep{Total: 100000, Interval: .1}}}
	if opt.moving {
		c.Signal.Mode = config.SignalMoving
	}
	if opt.cta {
		c.Train.Regulator = config.RegulatorCTA
		c.Train.DesiredSpeed = opt.desired
	}
	rc, err := config.NewRuntimeConfig(c)
	require.NoError(t, err)
	sink := &output.MemorySink{}
	ctx := &fakeContext{
		clk:    clock.New(rc.C.Step),
		rc:     rc,
		sink:   sink,
		logger: output.NewLogger("test", sink, 10),
		disp:   &fakeDispatcher{},
	}
	root := randengine.New(42)

	infra := line()
	if opt.infra != nil {
		opt.infra(infra)
	}
	blocks := block.NewManager()
	require.NoError(t, blocks.Init(infra, opt.moving, rc.All.Signal.SightDistance))
	require.NoError(t, blocks.AttachOffScan(opt.offScan, root.Child()))
	paths := path.NewManager()
	require.NoError(t, paths.Init(blocks, &input.PathConfig{ShortTurning: opt.shortTurning}, opt.strategy, rc.All.Strategy.InspectionTime))
	stations := station.NewManager(input.NewArrivalRates(), true, root.Child())
	require.NoError(t, stations.Init(blocks, 0))
	trains := NewManager(ctx, paths, stations, root.Child())
	require.NoError(t, trains.Init())
	return &fixture{ctx: ctx, blocks: blocks, paths: paths, stations: stations, trains: trains}
}

// step 推进一步并检查固定闭塞下每个分区至多一列车
func (f *fixture) step(t *testing.T) {
	require.NoError(t, f.trains.Update())
	if f.ctx.rc.All.Signal.Mode != config.SignalMoving {
		for _, dir := range entity.Directions() {
			for _, b := range f.blocks.Blocks(dir) {
				require.LessOrEqual(t, len(b.Occupants()), 1, "block %s", b.ID())
			}
		}
	}
	f.ctx.clk.Tick()
}

// assertExtent 列车占用的分区恰为与[车尾, 车头]相交的分区
func assertExtent(t *testing.T, tr *Train) {
	p := tr.Path()
	rear := tr.rear()
	for j, b := range p.Blocks() {
		want := j <= tr.Index() && p.Travelled(j+1, 0) > rear
		assert.Equal(t, want, b.IsOccupiedBy(tr.ID()), "block %s front=%s/%.1f rear=%.1f", b.ID(), tr.Block().ID(), tr.S(), rear)
	}
}

// runUntil 推进至cond成立，最多n步
func (f *fixture) runUntil(t *testing.T, n int, cond func() bool) {
	for range n {
		f.step(t)
		if cond() {
			return
		}
	}
	t.Fatalf("condition not reached in %d steps", n)
}

func TestTractiveEffort(t *testing.T) {
	assert.Equal(t, 3.94, tractiveEffort(0, tractiveScaleDefault))
	assert.Equal(t, 3.94, tractiveEffort(22, tractiveScaleDefault))
	assert.Equal(t, 1.22, tractiveEffort(80, tractiveScaleDefault))
	assert.InDelta(t, (3.69+2.90)/2, tractiveEffort((37.7+44)/2, tractiveScaleDefault), 1e-9)
	assert.InDelta(t, 1.97, tractiveEffort(10, tractiveScaleCTA), 1e-9)
	prev := math.Inf(1)
	for v := 0.; v <= 70; v += .5 {
		a := tractiveEffort(v, tractiveScaleDefault)
		assert.LessOrEqual(t, a, prev)
		prev = a
	}
}

func TestPassengerManagerCarsAndDoors(t *testing.T) {
	m := NewPassengerManager(2, 3, 1)
	ps := make([]*station.Passenger, 7)
	for i := range ps {
		dest := "Y"
		if i < 2 {
			dest = "X"
		}
		ps[i] = station.NewPassenger(int64(i), "A", dest, entity.Southbound, 0)
	}
	rejected := m.Board(ps)
	require.Len(t, rejected, 1)
	assert.Same(t, ps[6], rejected[0])
	assert.Equal(t, 6, m.Onboard())
	assert.Equal(t, 0, m.Remaining())

	cars := []int32{0, 1, 0, 1, 0, 1}
	doors := []int32{0, 2, 1, 3, 0, 2}
	for i := range 6 {
		assert.Equal(t, cars[i], ps[i].Car, "passenger %d car", i)
		assert.Equal(t, doors[i], ps[i].Door, "passenger %d door", i)
	}

	m.BeginStop()
	off := m.Alight(func(p *station.Passenger) bool { return p.Destination == "X" })
	assert.Len(t, off, 2)
	assert.Equal(t, 4, m.Onboard())
	assert.Equal(t, []station.DoorMetric{
		{Alight: 1, ThroughStandees: .5},
		{ThroughStandees: .5},
		{Alight: 1, ThroughStandees: .5},
		{ThroughStandees: .5},
	}, m.DoorMetrics())

	assert.Len(t, m.Clear(), 4)
	assert.Equal(t, 0, m.Onboard())
}

func TestSingleTrainRun(t *testing.T) {
	f := newFixture(t, option{})
	p := f.paths.Direction(entity.Southbound)
	tr, err := f.trains.Spawn(p, 0, "R1", f.ctx.clk.T)
	require.NoError(t, err)
	assert.True(t, p.Block(0).IsOccupiedBy(tr.ID()))
	assert.Equal(t, 1, f.trains.Spawned())

	var stops []float64
	dwellSteps := 0
	for range 20000 {
		f.step(t)
		if tr.IsFinished() {
			break
		}
		b := tr.Block()
		assert.LessOrEqual(t, tr.V(), overspeedFactor*b.CivilCode()+.1, "at %s", b.ID())
		assert.GreaterOrEqual(t, tr.V(), 0.)
		assertExtent(t, tr)
		if tr.State() == DwellingAtStation {
			if dwellSteps == 0 {
				_, offset, ok := b.Station()
				require.True(t, ok)
				stops = append(stops, offset-tr.S())
			}
			dwellSteps++
		} else {
			dwellSteps = 0
		}
	}
	require.True(t, tr.IsFinished())
	require.Len(t, stops, 2)
	for _, d := range stops {
		assert.GreaterOrEqual(t, d, stopOffsetMin-.01)
		assert.LessOrEqual(t, d, stopOffsetMax+stationStopSlack+.01)
	}

	// 终点：释放全部分区并通知调度
	for _, b := range p.Blocks() {
		assert.False(t, b.IsOccupied(), b.ID())
	}
	require.Len(t, f.ctx.disp.arrivals, 1)
	assert.Equal(t, entity.Southbound, f.ctx.disp.arrivals[0].dir)
	assert.Empty(t, f.trains.Trains())
	assert.Equal(t, 1, f.trains.Finished())

	require.Len(t, f.ctx.sink.Stations, 2)
	for _, r := range f.ctx.sink.Stations {
		assert.Equal(t, 30., r.Dwell)
		assert.Equal(t, -1., r.Headway)
		assert.Equal(t, "test", r.Run)
	}
	assert.Len(t, f.ctx.sink.Blocks, 10)
	assert.NotEmpty(t, f.ctx.sink.Trains)
}

func TestDwellDuration(t *testing.T) {
	f := newFixture(t, option{})
	tr, err := f.trains.Spawn(f.paths.Direction(entity.Southbound), 0, "R1", 0)
	require.NoError(t, err)
	f.runUntil(t, 5000, func() bool { return tr.State() == DwellingAtStation })
	start := f.ctx.clk.T
	f.runUntil(t, 5000, func() bool { return tr.State() != DwellingAtStation })
	assert.InDelta(t, 30., f.ctx.clk.T-start, .25)
	assert.Equal(t, leavingStation, tr.reg.state.kind)
}

func TestFollowerStopsBeforeOccupiedBlock(t *testing.T) {
	f := newFixture(t, option{})
	p := f.paths.Direction(entity.Southbound)
	leader, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)
	f.runUntil(t, 5000, func() bool { return !p.Block(0).IsOccupied() })

	follower, err := f.trains.Spawn(p, 0, "R2", f.ctx.clk.T)
	require.NoError(t, err)
	held := false
	f.runUntil(t, 40000, func() bool {
		if follower.Index()+1 < p.Len() && p.Block(follower.Index()+1).IsOccupied() && follower.V() == 0 {
			held = true
			// 停在占用分区之前，留有停车余量
			assert.LessOrEqual(t, p.DistanceAhead(follower.Index(), follower.S(), follower.Index()+1), p.Block(0).Length())
			assert.GreaterOrEqual(t, p.DistanceAhead(follower.Index(), follower.S(), follower.Index()+1), 0.)
		}
		return leader.IsFinished() && follower.IsFinished()
	})
	assert.True(t, held)
	assert.Len(t, f.ctx.disp.arrivals, 2)
	assert.Equal(t, 2, f.trains.Finished())

	// 第二列车到站时记录与前车的间隔
	var headways []float64
	for _, r := range f.ctx.sink.Stations {
		if r.TrainID == int32(follower.ID()) {
			headways = append(headways, r.Headway)
		}
	}
	require.Len(t, headways, 2)
	for _, h := range headways {
		assert.Greater(t, h, 0.)
	}
}

func TestSymptomaticStop(t *testing.T) {
	f := newFixture(t, option{offScan: []input.OffScanBlock{
		{Direction: "Southbound", BlockID: "S4", Probability: 1},
	}})
	p := f.paths.Direction(entity.Southbound)
	b4 := p.Block(4)
	tr, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)

	f.runUntil(t, 10000, func() bool { return tr.Regulator() == stopAtSymptomatic.String() })
	assert.True(t, b4.SymptomaticFor(tr.ID()))
	assert.Equal(t, 0., b4.CurrentSpeedCode(tr.ID()))

	stopped := 0
	f.runUntil(t, 10000, func() bool {
		if tr.Regulator() == stopAtSymptomatic.String() && tr.V() == 0 {
			stopped++
		}
		return tr.Regulator() != stopAtSymptomatic.String()
	})
	held := float64(stopped) * f.ctx.clk.DT
	assert.GreaterOrEqual(t, held, 10.-.2)
	assert.LessOrEqual(t, held, 20.+.2)
	assert.False(t, b4.SymptomaticFor(tr.ID()))
	assert.True(t, b4.OffScan.Reverted())

	f.runUntil(t, 20000, tr.IsFinished)
}

func TestShortTurn(t *testing.T) {
	f := newFixture(t, option{
		shortTurning: map[string]input.ShortTurning{"UIC": {SouthboundBlock: "S7", NorthboundBlock: "N2"}},
		strategy:     "UIC",
	})
	st := f.paths.ShortTurning()
	require.NotNil(t, st)
	tr, err := f.trains.Spawn(st.Path, 0, "R1", 0)
	require.NoError(t, err)

	f.runUntil(t, 20000, func() bool { return tr.State() == SettingUpForShortTurning })
	for _, b := range st.Blocks() {
		assert.False(t, b.IsOccupied(), b.ID())
	}
	start := f.ctx.clk.T
	f.runUntil(t, 20000, tr.ShortTurned)
	setup := f.ctx.clk.T - start
	assert.GreaterOrEqual(t, setup, 120.)
	assert.LessOrEqual(t, setup, 180.+.2)

	north, idx := st.Swap()
	assert.Same(t, north, tr.Path())
	assert.Equal(t, "N2", north.Block(idx).ID())
	assert.True(t, north.Block(idx).IsOccupiedBy(tr.ID()) || tr.Index() > idx)

	f.runUntil(t, 20000, tr.IsFinished)
	require.Len(t, f.ctx.disp.arrivals, 1)
	assert.Equal(t, entity.Northbound, f.ctx.disp.arrivals[0].dir)

	// 折返站记录为折返停站；上行自N2重新投入，停靠St2与St7
	var short, northStops int
	for _, r := range f.ctx.sink.Stations {
		if r.ShortTurn {
			short++
			assert.Equal(t, "St7", r.Station)
		}
		if r.Direction == entity.Northbound.String() {
			northStops++
		}
	}
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, northStops)
}

func TestRearOffsetIn(t *testing.T) {
	f := newFixture(t, option{})
	p := f.paths.Direction(entity.Southbound)
	tr, err := f.trains.Spawn(p, 3, "R1", 0)
	require.NoError(t, err)

	off, ok := f.trains.RearOffsetIn(tr.ID(), entity.Southbound, "S3")
	assert.True(t, ok)
	assert.Equal(t, 0., off)
	_, ok = f.trains.RearOffsetIn(tr.ID(), entity.Southbound, "S2")
	assert.False(t, ok)
	_, ok = f.trains.RearOffsetIn(tr.ID(), entity.Northbound, "S3")
	assert.False(t, ok)
	_, ok = f.trains.RearOffsetIn(tr.ID()+1, entity.Southbound, "S3")
	assert.False(t, ok)

	f.runUntil(t, 5000, func() bool { return tr.Index() == 4 && tr.S() > tr.Length()+10 })
	off, ok = f.trains.RearOffsetIn(tr.ID(), entity.Southbound, "S4")
	assert.True(t, ok)
	assert.InDelta(t, tr.S()-tr.Length(), off, 1e-9)
	_, ok = f.trains.RearOffsetIn(tr.ID(), entity.Southbound, "S3")
	assert.False(t, ok, "rear has left S3")
}

func TestSpawnErrors(t *testing.T) {
	f := newFixture(t, option{})
	p := f.paths.Direction(entity.Southbound)
	_, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)
	_, err = f.trains.Spawn(p, 0, "R2", 0)
	assert.ErrorIs(t, err, entity.ErrBlockAlreadyOccupied)
	_, err = f.trains.Spawn(p, p.Len()-1, "R3", 0)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	assert.Equal(t, 1, f.trains.Spawned())
}

func TestMovingBlockKeepsSeparation(t *testing.T) {
	f := newFixture(t, option{moving: true})
	p := f.paths.Direction(entity.Southbound)
	leader, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)
	f.runUntil(t, 5000, func() bool { return leader.Index() >= 1 && leader.S() > 500 })

	follower, err := f.trains.Spawn(p, 0, "R2", f.ctx.clk.T)
	require.NoError(t, err)
	f.runUntil(t, 40000, func() bool {
		if !leader.IsFinished() && !follower.IsFinished() {
			head := p.Travelled(follower.Index(), follower.S())
			assert.Less(t, head, leader.rear(), "follower overlaps leader at %s", f.ctx.clk)
		}
		return leader.IsFinished() && follower.IsFinished()
	})
	assert.Len(t, f.ctx.disp.arrivals, 2)
}

func TestHoldingConfiguration(t *testing.T) {
	f := newFixture(t, option{})
	f.ctx.rc.All.Strategy.Holding = true
	f.ctx.rc.All.Strategy.Station = "Nowhere"
	assert.ErrorIs(t, f.trains.Init(), entity.ErrConfiguration)

	f.ctx.rc.All.Strategy.Station = "St7"
	require.NoError(t, f.trains.Init())
	assert.IsType(t, station.StationCapped{}, f.trains.holdingAt["St7"])

	f.ctx.rc.All.Strategy.HeadwayManagement = true
	require.NoError(t, f.trains.Init())
	assert.IsType(t, station.CrowdingAware{}, f.trains.holdingAt["St7"])
}

func TestShortTurnWithInspection(t *testing.T) {
	f := newFixture(t, option{
		shortTurning: map[string]input.ShortTurning{"UIC": {SouthboundBlock: "S7", NorthboundBlock: "N2", Inspection: true}},
		strategy:     "UIC",
	})
	st := f.paths.ShortTurning()
	tr, err := f.trains.Spawn(st.Path, 0, "R1", 0)
	require.NoError(t, err)

	f.runUntil(t, 20000, func() bool { return tr.State() == SettingUpForShortTurning })
	start := f.ctx.clk.T
	f.runUntil(t, 20000, tr.ShortTurned)
	// U(120, 180)加Medium检查时间Tri(120, 180, 300)
	setup := f.ctx.clk.T - start
	assert.GreaterOrEqual(t, setup, 240.)
	assert.LessOrEqual(t, setup, 480.+.2)
	f.runUntil(t, 20000, tr.IsFinished)
}

func TestShortTurnWaitsForApproachingTrain(t *testing.T) {
	uic := map[string]input.ShortTurning{"UIC": {SouthboundBlock: "S7", NorthboundBlock: "N2"}}

	t.Run("too close to stop", func(t *testing.T) {
		f := newFixture(t, option{shortTurning: uic, strategy: "UIC"})
		st := f.paths.ShortTurning()
		north, idx := st.Swap()
		tr, err := f.trains.Spawn(st.Path, 0, "R1", 0)
		require.NoError(t, err)
		f.runUntil(t, 20000, func() bool { return tr.State() == SettingUpForShortTurning })

		// 上行来车距N2起点100英尺、速度30mph，常用制动无法在N2前停车
		nb, err := f.trains.Spawn(north, idx-1, "R2", f.ctx.clk.T)
		require.NoError(t, err)
		nb.state = Moving
		nb.s, nb.v = 900, 30
		tr.setupUntil = f.ctx.clk.T

		f.step(t)
		assert.False(t, tr.ShortTurned())
		assert.Equal(t, Waiting, tr.State())
		f.runUntil(t, 20000, tr.ShortTurned)
		assert.Greater(t, nb.Index(), idx, "re-entered after the approaching train cleared N2")
		f.runUntil(t, 40000, func() bool { return tr.IsFinished() && nb.IsFinished() })
	})

	t.Run("far enough to stop", func(t *testing.T) {
		f := newFixture(t, option{shortTurning: uic, strategy: "UIC"})
		st := f.paths.ShortTurning()
		north, idx := st.Swap()
		tr, err := f.trains.Spawn(st.Path, 0, "R1", 0)
		require.NoError(t, err)
		f.runUntil(t, 20000, func() bool { return tr.State() == SettingUpForShortTurning })

		nb, err := f.trains.Spawn(north, idx-2, "R2", f.ctx.clk.T)
		require.NoError(t, err)
		tr.setupUntil = f.ctx.clk.T

		f.step(t)
		assert.True(t, tr.ShortTurned())
		assert.True(t, north.Block(idx).IsOccupiedBy(tr.ID()))
		f.runUntil(t, 40000, func() bool { return tr.IsFinished() && nb.IsFinished() })
		assert.Len(t, f.ctx.disp.arrivals, 2)
	})
}

func TestPlanningDecelerationForSlowZone(t *testing.T) {
	f := newFixture(t, option{})
	p := f.paths.Direction(entity.Southbound)
	p.Block(5).ApplySlowZone(15)
	tr, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)

	seen := make(map[regKind]int)
	f.runUntil(t, 20000, func() bool {
		if tr.IsFinished() {
			return true
		}
		seen[tr.reg.state.kind]++
		if tr.Index() == 5 {
			assert.LessOrEqual(t, tr.V(), overspeedFactor*15+.1)
		}
		if tr.Index() == 4 && tr.reg.state.kind == decelerateToPlanning {
			assert.Equal(t, 5, tr.reg.state.block)
			assert.Equal(t, 15., tr.reg.state.target)
		}
		return false
	})
	assert.Positive(t, seen[decelerateToPlanning])
	assert.Positive(t, seen[brakeToStation])
	assert.Positive(t, seen[leavingStation])
}

func TestEmergencyBrakeWhenCodeDrops(t *testing.T) {
	f := newFixture(t, option{})
	p := f.paths.Direction(entity.Southbound)
	tr, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)
	f.runUntil(t, 10000, func() bool { return tr.Index() == 4 && tr.V() > 40 })

	// 运行中当前分区限速降至20mph
	p.Block(4).ApplySlowZone(20)
	f.step(t)
	assert.Equal(t, brakeMaximum, tr.reg.state.kind)
	f.step(t)
	assert.Equal(t, -f.trains.regCfg.emergency, tr.A())

	f.runUntil(t, 1000, func() bool { return tr.reg.state.kind != brakeMaximum })
	assert.Equal(t, keepingSpeed, tr.reg.state.kind)
	assert.LessOrEqual(t, tr.V(), 20.)
	f.runUntil(t, 20000, tr.IsFinished)
}

func TestFollowerObeysCommunicatedCodes(t *testing.T) {
	f := newFixture(t, option{infra: func(in *input.Infrastructure) {
		// S5占用时向S4下发15mph、向S3下发35mph
		in.Southbound[5].SpeedCodes = map[input.ID]float64{"S4": 15, "S3": 35}
	}})
	p := f.paths.Direction(entity.Southbound)
	leader, err := f.trains.Spawn(p, 5, "R1", 0)
	require.NoError(t, err)
	// 前车停在S5
	leader.state = DwellingAtStation
	leader.dwellUntil = math.Inf(1)
	assert.Equal(t, 15., p.Block(4).CurrentSpeedCode(entity.NoTrain))
	assert.Equal(t, 35., p.Block(3).CurrentSpeedCode(entity.NoTrain))

	follower, err := f.trains.Spawn(p, 0, "R2", 0)
	require.NoError(t, err)
	entered := false
	f.runUntil(t, 20000, func() bool {
		switch follower.Index() {
		case 3:
			assert.LessOrEqual(t, follower.V(), overspeedFactor*35+.1)
		case 4:
			entered = true
			assert.LessOrEqual(t, follower.V(), overspeedFactor*15+.1)
		}
		return follower.Index() == 4 && follower.V() == 0 && follower.reg.state.kind == decelerateToPlanning
	})
	assert.True(t, entered)
	d := p.DistanceAhead(follower.Index(), follower.S(), 5)
	assert.GreaterOrEqual(t, d, 0.)
	assert.LessOrEqual(t, d, 2*zeroCodeStandoff)

	// 前车离开后撤回速度码
	leader.state = Moving
	f.runUntil(t, 40000, func() bool { return leader.IsFinished() && follower.IsFinished() })
	assert.Equal(t, 55., p.Block(4).CurrentSpeedCode(entity.NoTrain))
	assert.Empty(t, p.Block(4).Received())
}

func TestCTADecelerateAndWaitForClearance(t *testing.T) {
	f := newFixture(t, option{cta: true})
	p := f.paths.Direction(entity.Southbound)
	leader, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)
	f.runUntil(t, 5000, func() bool { return !p.Block(0).IsOccupied() })

	follower, err := f.trains.Spawn(p, 0, "R2", f.ctx.clk.T)
	require.NoError(t, err)
	waited := 0
	f.runUntil(t, 60000, func() bool {
		if follower.reg.state.kind == decelerateAndWait {
			waited++
			j := follower.reg.state.block
			assert.Greater(t, j, follower.Index())
			assert.GreaterOrEqual(t, p.DistanceAhead(follower.Index(), follower.S(), j), 0.)
		}
		return leader.IsFinished() && follower.IsFinished()
	})
	assert.Positive(t, waited)
	assert.Len(t, f.ctx.disp.arrivals, 2)
}

func TestCTADelayedDecelerateToMeetCode(t *testing.T) {
	f := newFixture(t, option{cta: true, desired: config.Range{Min: .8, Max: .8}})
	p := f.paths.Direction(entity.Southbound)
	p.Block(5).ApplySlowZone(15)
	tr, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)

	delayed, longest := 0, 0
	f.runUntil(t, 40000, func() bool {
		if tr.IsFinished() {
			return true
		}
		if tr.reg.state.kind == delayedDecelerate {
			delayed++
			longest = max(longest, delayed)
			// 反应延迟期间惰行
			if delayed > 1 {
				assert.Equal(t, 0., tr.A())
			}
			assert.LessOrEqual(t, tr.reg.state.limit, maxReactionDelay)
		} else {
			delayed = 0
		}
		return false
	})
	assert.Positive(t, longest)
	assert.LessOrEqual(t, float64(longest)*f.ctx.clk.DT, maxReactionDelay+2*f.ctx.clk.DT)
}

func TestCTADesiredSpeedResampledPerBlock(t *testing.T) {
	f := newFixture(t, option{cta: true})
	p := f.paths.Direction(entity.Southbound)
	tr, err := f.trains.Spawn(p, 0, "R1", 0)
	require.NoError(t, err)

	fractions := []float64{tr.reg.fraction}
	last := tr.Index()
	f.runUntil(t, 40000, func() bool {
		if tr.IsFinished() {
			return true
		}
		if tr.Index() != last {
			last = tr.Index()
			fractions = append(fractions, tr.reg.fraction)
		}
		assert.LessOrEqual(t, tr.V(), overspeedFactor*tr.Block().CivilCode()+.1)
		return false
	})
	require.Len(t, fractions, p.Len()-1)
	for _, x := range fractions {
		assert.GreaterOrEqual(t, x, .8)
		assert.Less(t, x, 1.)
	}
	assert.Greater(t, len(lo.Uniq(fractions)), 1)
}

func TestHeadwayManagementEvensTerminalHeadways(t *testing.T) {
	run := func(holding bool) []float64 {
		f := newFixture(t, option{})
		f.ctx.rc.All.Strategy.HeadwayManagement = holding
		require.NoError(t, f.trains.Init())
		p := f.paths.Direction(entity.Southbound)
		_, err := f.trains.Spawn(p, 0, "R1", 0)
		require.NoError(t, err)
		f.runUntil(t, 5000, func() bool { return !p.Block(0).IsOccupied() })
		_, err = f.trains.Spawn(p, 0, "R2", f.ctx.clk.T)
		require.NoError(t, err)
		f.runUntil(t, 5000, func() bool { return f.ctx.clk.T >= 150 && !p.Block(0).IsOccupied() })
		_, err = f.trains.Spawn(p, 0, "R3", f.ctx.clk.T)
		require.NoError(t, err)
		f.runUntil(t, 60000, func() bool { return f.trains.Finished() == 3 })
		return lo.Map(f.ctx.disp.arrivals, func(a arrival, _ int) float64 { return a.t })
	}
	cv := func(arrivals []float64) float64 {
		headways := make([]float64, 0, len(arrivals)-1)
		for i := 1; i < len(arrivals); i++ {
			headways = append(headways, arrivals[i]-arrivals[i-1])
		}
		mean, std := stat.MeanStdDev(headways, nil)
		return std / mean
	}

	base, held := run(false), run(true)
	require.Len(t, base, 3)
	require.Len(t, held, 3)
	assert.Less(t, cv(held), cv(base))
}
