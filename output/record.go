package output

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
)

// 记录类型，同时作为CSV文件名与MongoDB集合名
const (
	KindTrain     = "train"
	KindBlock     = "block"
	KindStation   = "station"
	KindPassenger = "passenger"
)

// Record 一条输出记录
type Record interface {
	Kind() string
	Header() []string
	Row() []string
	Doc() bson.D
	setRun(run string)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func itoa[T ~int | ~int32 | ~int64](v T) string {
	return strconv.FormatInt(int64(v), 10)
}

// TrainRecord 列车轨迹采样
type TrainRecord struct {
	Run          string
	Time         float64
	TrainID      int32
	RunID        string
	Path         string
	Block        string
	S            float64 // 车头在当前闭塞分区内的位置（英尺）
	Travelled    float64 // 沿进路累计走行距离（英尺）
	Speed        float64 // mph
	Acceleration float64 // mph/s
	State        string
	Regulator    string
	Onboard      int
}

func (r *TrainRecord) Kind() string      { return KindTrain }
func (r *TrainRecord) setRun(run string) { r.Run = run }

func (r *TrainRecord) Header() []string {
	return []string{"run", "time", "train_id", "runid", "path", "block", "s", "travelled", "speed", "acceleration", "state", "regulator", "onboard"}
}

func (r *TrainRecord) Row() []string {
	return []string{r.Run, ftoa(r.Time), itoa(r.TrainID), r.RunID, r.Path, r.Block, ftoa(r.S), ftoa(r.Travelled), ftoa(r.Speed), ftoa(r.Acceleration), r.State, r.Regulator, itoa(r.Onboard)}
}

func (r *TrainRecord) Doc() bson.D {
	return bson.D{
		{Key: "run", Value: r.Run},
		{Key: "time", Value: r.Time},
		{Key: "train_id", Value: r.TrainID},
		{Key: "runid", Value: r.RunID},
		{Key: "path", Value: r.Path},
		{Key: "block", Value: r.Block},
		{Key: "s", Value: r.S},
		{Key: "travelled", Value: r.Travelled},
		{Key: "speed", Value: r.Speed},
		{Key: "acceleration", Value: r.Acceleration},
		{Key: "state", Value: r.State},
		{Key: "regulator", Value: r.Regulator},
		{Key: "onboard", Value: r.Onboard},
	}
}

// BlockRecord 闭塞分区激活事件
type BlockRecord struct {
	Run       string
	Time      float64
	Block     string
	Direction string
	TrainID   int32
	Headway   float64 // 与前车的时间间隔，首车为-1
}

func (r *BlockRecord) Kind() string      { return KindBlock }
func (r *BlockRecord) setRun(run string) { r.Run = run }

func (r *BlockRecord) Header() []string {
	return []string{"run", "time", "block", "direction", "train_id", "headway"}
}

func (r *BlockRecord) Row() []string {
	return []string{r.Run, ftoa(r.Time), r.Block, r.Direction, itoa(r.TrainID), ftoa(r.Headway)}
}

func (r *BlockRecord) Doc() bson.D {
	return bson.D{
		{Key: "run", Value: r.Run},
		{Key: "time", Value: r.Time},
		{Key: "block", Value: r.Block},
		{Key: "direction", Value: r.Direction},
		{Key: "train_id", Value: r.TrainID},
		{Key: "headway", Value: r.Headway},
	}
}

// StationRecord 列车到站事件
type StationRecord struct {
	Run            string
	Station        string
	Direction      string
	Time           float64
	TrainID        int32
	Headway        float64 // 与前车到站间隔，首车为-1
	Dwell          float64
	Holding        float64
	Boards         int
	Alights        int
	OnboardAfter   int
	PlatformBefore int
	ShortTurn      bool
	Denials        int
}

func (r *StationRecord) Kind() string      { return KindStation }
func (r *StationRecord) setRun(run string) { r.Run = run }

func (r *StationRecord) Header() []string {
	return []string{"run", "station", "direction", "time", "train_id", "headway", "dwell", "holding", "boards", "alights", "onboard_after", "platform_before", "short_turn", "denials"}
}

func (r *StationRecord) Row() []string {
	return []string{
		r.Run, r.Station, r.Direction, ftoa(r.Time), itoa(r.TrainID), ftoa(r.Headway), ftoa(r.Dwell), ftoa(r.Holding),
		itoa(r.Boards), itoa(r.Alights), itoa(r.OnboardAfter), itoa(r.PlatformBefore), strconv.FormatBool(r.ShortTurn), itoa(r.Denials),
	}
}

func (r *StationRecord) Doc() bson.D {
	return bson.D{
		{Key: "run", Value: r.Run},
		{Key: "station", Value: r.Station},
		{Key: "direction", Value: r.Direction},
		{Key: "time", Value: r.Time},
		{Key: "train_id", Value: r.TrainID},
		{Key: "headway", Value: r.Headway},
		{Key: "dwell", Value: r.Dwell},
		{Key: "holding", Value: r.Holding},
		{Key: "boards", Value: r.Boards},
		{Key: "alights", Value: r.Alights},
		{Key: "onboard_after", Value: r.OnboardAfter},
		{Key: "platform_before", Value: r.PlatformBefore},
		{Key: "short_turn", Value: r.ShortTurn},
		{Key: "denials", Value: r.Denials},
	}
}

// PassengerRecord 乘客下车事件
// 说明：换乘乘客的等待与乘车时间均已扣除/计入折返站的换乘段，Journey = Waiting + Travel
type PassengerRecord struct {
	Run         string
	PassengerID int64
	Origin      string
	Destination string
	Direction   string
	Arrival     float64
	Boarding    float64
	Alighting   float64
	Transfer    float64 // 折返站换乘下车时间，未换乘为-1
	Waiting     float64
	Travel      float64
	Journey     float64
	Denials     int32
}

func (r *PassengerRecord) Kind() string      { return KindPassenger }
func (r *PassengerRecord) setRun(run string) { r.Run = run }

func (r *PassengerRecord) Header() []string {
	return []string{"run", "passenger_id", "origin", "destination", "direction", "arrival", "boarding", "alighting", "transfer", "waiting", "travel", "journey", "denials"}
}

func (r *PassengerRecord) Row() []string {
	return []string{
		r.Run, itoa(r.PassengerID), r.Origin, r.Destination, r.Direction, ftoa(r.Arrival), ftoa(r.Boarding), ftoa(r.Alighting),
		ftoa(r.Transfer), ftoa(r.Waiting), ftoa(r.Travel), ftoa(r.Journey), itoa(r.Denials),
	}
}

func (r *PassengerRecord) Doc() bson.D {
	return bson.D{
		{Key: "run", Value: r.Run},
		{Key: "passenger_id", Value: r.PassengerID},
		{Key: "origin", Value: r.Origin},
		{Key: "destination", Value: r.Destination},
		{Key: "direction", Value: r.Direction},
		{Key: "arrival", Value: r.Arrival},
		{Key: "boarding", Value: r.Boarding},
		{Key: "alighting", Value: r.Alighting},
		{Key: "transfer", Value: r.Transfer},
		{Key: "waiting", Value: r.Waiting},
		{Key: "travel", Value: r.Travel},
		{Key: "journey", Value: r.Journey},
		{Key: "denials", Value: r.Denials},
	}
}
