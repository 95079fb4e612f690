package entity

// entity/dispatch的依赖倒置
type IDispatcher interface {
	// 列车到达终点闭塞分区时调用，dir为该列车的行车方向
	OnTerminalArrival(dir Direction, t float64)
}

// entity/train的依赖倒置，供移动闭塞计算前车位置
type ITrainLocator interface {
	// 列车id的车尾在闭塞分区(dir, blockID)内距分区起点的距离；
	// 车尾位于该分区之前但车身覆盖该分区时返回0；列车未占用该分区时ok为false
	RearOffsetIn(id TrainID, dir Direction, blockID string) (offset float64, ok bool)
}

// 客流到达率的依赖倒置
type IArrivalRateProvider interface {
	// 某15分钟时段内从origin出发前往各目的站的到达率（人/15分钟）
	Rates(bin int, weekday bool, origin string) map[string]float64
}
