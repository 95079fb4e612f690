package task

import (
	"flag"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 3000, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：定期输出心跳日志
func (ctx *Context) prepare() {
	if *heartBeatInterval > 0 && ctx.clock.Elapsed()%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		ctx.log.Infof(
			"STEP: %d(%02d:%02d:%02.0f) trains=%d waiting=%d",
			ctx.clock.InternalStep,
			hour, minute, second,
			len(ctx.trainManager.Trains()),
			ctx.stationManager.Waiting(),
		)
	}
}

// update 更新阶段，每步执行一次
// 算法说明：
// 1. 调度器投入到期列车
// 2. 列车按创建顺序更新，分区激活同步通知信号控制中心，本步之后更新的列车即可看到新的速度码
// 3. 回收结束运行的列车
func (ctx *Context) update() error {
	if err := ctx.dispatcher.Update(); err != nil {
		return err
	}
	return ctx.trainManager.Update()
}
