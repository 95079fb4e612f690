package output

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "output")

// Logger 四类事件流的统一入口
// 功能：为记录打上运行ID、控制列车轨迹采样、收集车站间隔用于统计
// 说明：写入出错时保留第一个错误，由仿真在结束时检查
type Logger struct {
	run            string
	sink           Sink
	sampleInterval int32
	headways       map[string][]float64 // 车站 -> 到站间隔序列
	stationOrder   []string
	err            error
}

// NewLogger 创建日志记录器
// 参数：run-运行ID，sink-输出目标，sampleInterval-列车轨迹采样间隔（步）
func NewLogger(run string, sink Sink, sampleInterval int32) *Logger {
	if sampleInterval <= 0 {
		sampleInterval = 1
	}
	return &Logger{
		run:            run,
		sink:           sink,
		sampleInterval: sampleInterval,
		headways:       make(map[string][]float64),
	}
}

func (l *Logger) Run() string {
	return l.run
}

// SampleTrain 当前步是否需要记录列车轨迹
func (l *Logger) SampleTrain(step int32) bool {
	return step%l.sampleInterval == 0
}

func (l *Logger) write(r Record) {
	r.setRun(l.run)
	if err := l.sink.Write(r); err != nil && l.err == nil {
		log.Errorf("write %s record: %v", r.Kind(), err)
		l.err = err
	}
}

func (l *Logger) Train(r TrainRecord) {
	l.write(&r)
}

func (l *Logger) Block(r BlockRecord) {
	l.write(&r)
}

func (l *Logger) Station(r StationRecord) {
	if r.Headway >= 0 {
		key := r.Direction + "/" + r.Station
		if _, ok := l.headways[key]; !ok {
			l.stationOrder = append(l.stationOrder, key)
		}
		l.headways[key] = append(l.headways[key], r.Headway)
	}
	l.write(&r)
}

func (l *Logger) Passenger(r PassengerRecord) {
	l.write(&r)
}

// Err 第一个写入错误
func (l *Logger) Err() error {
	return l.err
}

func (l *Logger) Flush() error {
	return l.sink.Flush()
}

func (l *Logger) Close() error {
	return l.sink.Close()
}

// HeadwayReport 按车站统计到站间隔
func (l *Logger) HeadwayReport() []HeadwayStat {
	stats := make([]HeadwayStat, 0, len(l.stationOrder))
	for _, key := range l.stationOrder {
		stats = append(stats, NewHeadwayStat(key, l.headways[key]))
	}
	return stats
}
