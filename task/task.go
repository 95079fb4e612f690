package task

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
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

var log = logrus.WithField("module", "task")

// Context 仿真任务上下文
// 功能：持有一次重复仿真的全部状态，包括时钟、各类管理器、随机数引擎与输出
// 说明：不同重复之间不共享任何可变状态，可在不同goroutine中并行运行
type Context struct {
	replication int
	run         string
	log         *logrus.Entry

	// 时钟
	clock *clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// 事件输出
	logger *output.Logger

	// 闭塞分区管理器
	blockManager *block.BlockManager
	// 进路管理器
	pathManager *path.PathManager
	// 车站管理器
	stationManager *station.StationManager
	// 列车管理器
	trainManager *train.TrainManager
	// 调度器
	dispatcher *dispatch.Dispatcher
}

// Result 一次重复仿真的结果
type Result struct {
	Replication int
	Run         string
	Dispatched  int // 投入的列车数
	Finished    int // 到达终点的列车数
	Served      int // 到达目的站的乘客数
	Failed      bool
	Err         error
}

// NewContext 创建仿真任务上下文
// 功能：为第replication次重复构建全部仿真对象
// 参数：
//   - rc: 运行时配置（已补全默认值）
//   - in: 输入数据，各次重复只读共享
//   - replication: 重复序号，随机种子为seed+replication
//   - run: 运行ID，写入每条输出记录
//   - sink: 输出目标，由上下文负责关闭
//
// 返回：上下文；输入数据缺失或矛盾时返回ErrConfiguration或ErrInvalidStationLocation
// 算法说明：
// 1. 按固定顺序派生调度、客流、列车、失码四个子随机数引擎
// 2. 构建闭塞分区并挂载临时限速、发车闸门与失码配置
// 3. 构建进路、车站、列车管理器
// 4. 生成本次重复的发车计划并交给调度器
func NewContext(rc *config.RuntimeConfig, in *input.Input, replication int, run string, sink output.Sink) (*Context, error) {
	ctx := &Context{
		replication:   replication,
		run:           run,
		log:           log.WithFields(logrus.Fields{"replication": replication, "run": run}),
		clock:         clock.New(rc.C.Step),
		runtimeConfig: rc,
		logger:        output.NewLogger(run, sink, rc.All.Output.TrainSampleInterval),
	}
	c := rc.All
	root := randengine.New(rc.C.Seed + uint64(replication))
	dispatchRng := root.Child()
	arrivalRng := root.Child()
	trainRng := root.Child()
	offScanRng := root.Child()

	ctx.blockManager = block.NewManager()
	if err := ctx.blockManager.Init(in.Infrastructure, c.Signal.Mode == config.SignalMoving, c.Signal.SightDistance); err != nil {
		return nil, err
	}
	ctx.blockManager.ApplySlowZones(in.SlowZones)
	if err := ctx.blockManager.AttachGates(in.Paths.DispatchingBlocks); err != nil {
		return nil, err
	}
	if err := ctx.blockManager.AttachOffScan(in.Paths.OffScan, offScanRng); err != nil {
		return nil, err
	}

	ctx.pathManager = path.NewManager()
	if err := ctx.pathManager.Init(ctx.blockManager, in.Paths, c.Strategy.ShortTurning, c.Strategy.InspectionTime); err != nil {
		return nil, err
	}

	var rates entity.IArrivalRateProvider
	if in.Rates != nil {
		rates = in.Rates
	}
	ctx.stationManager = station.NewManager(rates, rc.C.Weekday, arrivalRng)
	if err := ctx.stationManager.Init(ctx.blockManager, ctx.clock.T); err != nil {
		return nil, err
	}

	ctx.trainManager = train.NewManager(ctx, ctx.pathManager, ctx.stationManager, trainRng)
	if err := ctx.trainManager.Init(); err != nil {
		return nil, err
	}

	terminals, err := parseTerminals(in.Paths.Terminals)
	if err != nil {
		return nil, err
	}
	schedule, err := dispatch.BuildEmpiricalSchedule(in.Schedule.Empirical, in.Schedule.BlueLine,
		rc.Window, terminals, dispatchRng, c.Strategy.ShortTurning != "")
	if err != nil {
		return nil, err
	}
	ctx.dispatcher = dispatch.New(ctx, ctx.pathManager, ctx.trainManager)
	if err := ctx.dispatcher.Init(schedule); err != nil {
		return nil, err
	}
	ctx.log.Infof("steps [%d, %d) dt=%.2fs, %d dispatches", ctx.clock.START_STEP, ctx.clock.END_STEP, ctx.clock.DT, len(schedule))
	return ctx, nil
}

// parseTerminals 方向名 -> 始发站名，为空时使用默认终点站
func parseTerminals(m map[string]string) (map[entity.Direction]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	res := make(map[entity.Direction]string, len(m))
	for name, terminal := range m {
		dir, err := entity.ParseDirection(name)
		if err != nil {
			return nil, fmt.Errorf("terminals: %w", err)
		}
		res[dir] = terminal
	}
	return res, nil
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Logger() *output.Logger {
	return ctx.logger
}

func (ctx *Context) Dispatcher() entity.IDispatcher {
	return ctx.dispatcher
}

func (ctx *Context) BlockManager() *block.BlockManager {
	return ctx.blockManager
}

func (ctx *Context) PathManager() *path.PathManager {
	return ctx.pathManager
}

func (ctx *Context) StationManager() *station.StationManager {
	return ctx.stationManager
}

func (ctx *Context) TrainManager() *train.TrainManager {
	return ctx.trainManager
}

// Run 运行仿真直至结束步或运行期错误
// 功能：逐步执行准备与更新阶段，结束后刷新并关闭输出
// 参数：c-用于外部中止，每步检查一次
// 返回：运行结果；出错时Failed为true，已产生的输出保留
func (ctx *Context) Run(c context.Context) Result {
	res := Result{Replication: ctx.replication, Run: ctx.run}
	ctx.clock.Init()
	for !ctx.clock.Done() {
		if err := c.Err(); err != nil {
			res.Failed, res.Err = true, err
			break
		}
		ctx.prepare()
		if err := ctx.update(); err != nil {
			ctx.log.Errorf("step %d (%v): %v", ctx.clock.InternalStep, ctx.clock, err)
			res.Failed, res.Err = true, err
			break
		}
		ctx.clock.Tick()
	}

	for _, s := range ctx.logger.HeadwayReport() {
		ctx.log.Info(s)
	}
	if err := ctx.logger.Err(); err != nil && !res.Failed {
		res.Failed, res.Err = true, fmt.Errorf("write output: %w", err)
	}
	if err := ctx.logger.Flush(); err != nil && !res.Failed {
		res.Failed, res.Err = true, fmt.Errorf("flush output: %w", err)
	}
	if err := ctx.logger.Close(); err != nil && !res.Failed {
		res.Failed, res.Err = true, fmt.Errorf("close output: %w", err)
	}
	res.Dispatched = ctx.dispatcher.Dispatched()
	res.Finished = ctx.trainManager.Finished()
	res.Served = ctx.trainManager.Served()
	ctx.log.Infof("done at %v: dispatched=%d finished=%d served=%d waiting=%d failed=%v",
		ctx.clock, res.Dispatched, res.Finished, res.Served, ctx.stationManager.Waiting(), res.Failed)
	return res
}
