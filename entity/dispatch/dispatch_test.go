package dispatch_test

import (
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim/clock"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/entity/dispatch"
	"github.com/tsinghua-fib-lab/railsim/entity/path"
	"github.com/tsinghua-fib-lab/railsim/entity/station"
	"github.com/tsinghua-fib-lab/railsim/entity/train"
	"github.com/tsinghua-fib-lab/railsim/output"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
	"github.com/tsinghua-fib-lab/railsim/utils/input"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

var amWindow = config.Window{Start: 6 * 3600, End: 10 * 3600}

func records(dir string, bins []int, headway float64) []input.EmpiricalRecord {
	return lo.Map(bins, func(b int, i int) input.EmpiricalRecord {
		return input.EmpiricalRecord{
			TimeInSec: float64(b)*900 + 10,
			RunID:     input.ID(fmt.Sprintf("%s%d", dir[:1], i)),
			Headway:   headway,
			Direction: dir,
		}
	})
}

func TestBuildEmpiricalSchedule(t *testing.T) {
	recs := append(records("Southbound", []int{24}, 300), records("Northbound", []int{24, 26}, 600)...)
	// 间隔非正的记录被丢弃
	recs = append(recs, input.EmpiricalRecord{TimeInSec: 22000, Headway: 0, Direction: "Northbound"})
	entries, err := dispatch.BuildEmpiricalSchedule(recs, nil, amWindow, nil, randengine.New(1), false)
	require.NoError(t, err)

	sb := lo.Filter(entries, func(e dispatch.Entry, _ int) bool { return e.Direction == entity.Southbound })
	nb := lo.Filter(entries, func(e dispatch.Entry, _ int) bool { return e.Direction == entity.Northbound })
	assert.Len(t, sb, 47)
	assert.Len(t, nb, 23)
	assert.Equal(t, amWindow.Start+300, sb[0].Time)
	assert.Equal(t, amWindow.Start+600, nb[0].Time)
	assert.Equal(t, "Southbound", sb[0].Path)
	assert.Equal(t, "Northbound", nb[0].Path)

	assert.True(t, lo.EveryBy(entries, func(e dispatch.Entry) bool { return e.Time < amWindow.End }))
	assert.IsNonDecreasing(t, lo.Map(entries, func(e dispatch.Entry, _ int) float64 { return e.Time }))

	_, err = dispatch.BuildEmpiricalSchedule(records("Southbound", []int{24}, 300), nil, amWindow, nil, randengine.New(1), false)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestBuildEmpiricalScheduleIsReproducible(t *testing.T) {
	recs := append(records("Southbound", []int{24, 25, 30}, 0), records("Northbound", []int{27}, 420)...)
	for i := range recs[:3] {
		recs[i].Headway = float64(200 + 100*i)
	}
	a, err := dispatch.BuildEmpiricalSchedule(recs, nil, amWindow, nil, randengine.New(9), false)
	require.NoError(t, err)
	b, err := dispatch.BuildEmpiricalSchedule(recs, nil, amWindow, nil, randengine.New(9), false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildEmpiricalScheduleShortTurning(t *testing.T) {
	recs := append(records("Southbound", []int{24}, 300), records("Northbound", []int{24}, 600)...)
	var blueLine []input.BlueLineRecord
	for k := range 16 {
		blueLine = append(blueLine, input.BlueLineRecord{
			RunID:       input.ID(fmt.Sprintf("FP%d", k)),
			TimeInSec:   amWindow.Start + float64(900*k),
			Terminal:    "Forest Park",
			ShortTurned: k == 4,
		})
	}
	entries, err := dispatch.BuildEmpiricalSchedule(recs, blueLine, amWindow, nil, randengine.New(1), true)
	require.NoError(t, err)
	short := lo.Filter(entries, func(e dispatch.Entry, _ int) bool { return e.Path == path.ShortTurningName })
	require.Len(t, short, 3)
	assert.Equal(t, []float64{24600, 24900, 25200}, lo.Map(short, func(e dispatch.Entry, _ int) float64 { return e.Time }))
	assert.True(t, lo.EveryBy(short, func(e dispatch.Entry) bool { return e.Direction == entity.Southbound }))

	entries, err = dispatch.BuildEmpiricalSchedule(recs, blueLine, amWindow, nil, randengine.New(1), false)
	require.NoError(t, err)
	assert.False(t, lo.SomeBy(entries, func(e dispatch.Entry) bool { return e.Path == path.ShortTurningName }))
}

type taskContext struct {
	clk    *clock.Clock
	rc     *config.RuntimeConfig
	sink   *output.MemorySink
	logger *output.Logger
	disp   entity.IDispatcher
}

func (c *taskContext) Clock() *clock.Clock                  { return c.clk }
func (c *taskContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *taskContext) Logger() *output.Logger               { return c.logger }
func (c *taskContext) Dispatcher() entity.IDispatcher       { return c.disp }

type fixture struct {
	ctx    *taskContext
	trains *train.TrainManager
	d      *dispatch.Dispatcher
}

// 两个方向各6个分区，S0（间隔60秒）与N1（间隔90秒，要求N0空闲）为发车闸门
func newFixture(t *testing.T) *fixture {
	rc, err := config.NewRuntimeConfig(config.Config{Control: config.Control{Step: config.ControlStep{Total: 100000, Interval: .1}}})
	require.NoError(t, err)
	sink := &output.MemorySink{}
	ctx := &taskContext{clk: clock.New(rc.C.Step), rc: rc, sink: sink, logger: output.NewLogger("test", sink, 10)}

	var infra input.Infrastructure
	for i := range 6 {
		infra.Southbound = append(infra.Southbound, input.BlockRecord{Block: input.ID(fmt.Sprintf("S%d", i)), Distance: 1000, Speed: 55})
		infra.Northbound = append(infra.Northbound, input.BlockRecord{Block: input.ID(fmt.Sprintf("N%d", i)), Distance: 1000, Speed: 55})
	}
	blocks := block.NewManager()
	require.NoError(t, blocks.Init(&infra, false, 2000))
	require.NoError(t, blocks.AttachGates([]input.DispatchingBlock{
		{Direction: "Southbound", BlockID: "S0", DispatchMargin: 60},
		{Direction: "Northbound", BlockID: "N1", DispatchMargin: 90, UpstreamBlocks: []input.ID{"N0"}},
	}))
	paths := path.NewManager()
	require.NoError(t, paths.Init(blocks, &input.PathConfig{}, "", "Medium"))
	root := randengine.New(3)
	stations := station.NewManager(input.NewArrivalRates(), true, root.Child())
	require.NoError(t, stations.Init(blocks, 0))
	trains := train.NewManager(ctx, paths, stations, root.Child())
	require.NoError(t, trains.Init())
	d := dispatch.New(ctx, paths, trains)
	ctx.disp = d
	return &fixture{ctx: ctx, trains: trains, d: d}
}

func (f *fixture) tick(t *testing.T) {
	require.NoError(t, f.d.Update())
	require.NoError(t, f.trains.Update())
	f.ctx.clk.Tick()
}

func TestDispatcherHonorsGates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.Init([]dispatch.Entry{
		{Time: 10, Path: "Southbound", Direction: entity.Southbound, RunID: "A"},
		{Time: 20, Path: "Southbound", Direction: entity.Southbound, RunID: "B"},
		{Time: 15, Path: "Northbound", Direction: entity.Northbound, RunID: "C"},
	}))
	require.Len(t, f.d.Pending(), 3)
	assert.Equal(t, "C", f.d.Pending()[1].RunID)

	spawned := map[string]*train.Train{}
	for f.ctx.clk.T < 200 {
		f.tick(t)
		for _, tr := range f.trains.Trains() {
			spawned[tr.RunID()] = tr
		}
	}
	require.Len(t, spawned, 3)
	assert.Equal(t, 3, f.d.Dispatched())
	assert.Empty(t, f.d.Pending())

	assert.InDelta(t, 10, spawned["A"].Dispatched(), .11)
	assert.InDelta(t, 15, spawned["C"].Dispatched(), .11)
	// 第二列下行车需等待S0的最小发车间隔
	assert.GreaterOrEqual(t, spawned["B"].Dispatched(), spawned["A"].Dispatched()+60)

	// 上行列车在闸门N1投入
	first, ok := lo.Find(f.ctx.sink.Blocks, func(r output.BlockRecord) bool { return r.TrainID == int32(spawned["C"].ID()) })
	require.True(t, ok)
	assert.Equal(t, "N1", first.Block)
}

func TestDispatcherRejectsUnknownPath(t *testing.T) {
	f := newFixture(t)
	err := f.d.Init([]dispatch.Entry{{Time: 10, Path: path.ShortTurningName, Direction: entity.Southbound, RunID: "A"}})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestTerminalArrivalReschedulesNorthbound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.Init([]dispatch.Entry{
		{Time: 50, Path: "Southbound", Direction: entity.Southbound, RunID: "S1"},
		{Time: 100, Path: "Northbound", Direction: entity.Northbound, RunID: "N1"},
		{Time: 200, Path: "Northbound", Direction: entity.Northbound, RunID: "N2"},
		{Time: 210, Path: "Southbound", Direction: entity.Southbound, RunID: "S2"},
		{Time: 300, Path: "Northbound", Direction: entity.Northbound, RunID: "N3"},
	}))
	runs := func() []string {
		return lo.Map(f.d.Pending(), func(e dispatch.Entry, _ int) string { return e.RunID })
	}
	times := func() []float64 {
		return lo.Map(f.d.Pending(), func(e dispatch.Entry, _ int) float64 { return e.Time })
	}

	// 上行到达不影响计划
	f.d.OnTerminalArrival(entity.Northbound, 10)
	assert.Equal(t, []string{"S1", "N1", "N2", "S2", "N3"}, runs())

	// 首个下行到达：上行计划改为跟随到达，时间相同时排在已有计划之后
	f.d.OnTerminalArrival(entity.Southbound, 120)
	assert.Equal(t, []string{"S1", "S2", "N1"}, runs())
	assert.Equal(t, []float64{50, 210, 210}, times())

	f.d.OnTerminalArrival(entity.Southbound, 125)
	f.d.OnTerminalArrival(entity.Southbound, 400)
	assert.Equal(t, []string{"S1", "S2", "N1", "N2", "N3"}, runs())
	assert.Equal(t, []float64{50, 210, 210, 215, 490}, times())

	// 模板用尽
	f.d.OnTerminalArrival(entity.Southbound, 500)
	assert.Len(t, f.d.Pending(), 5)
}
