package input

// EmpiricalRecord 一次历史实测发车
type EmpiricalRecord struct {
	EventTime string  `json:"event_time"`
	TimeInSec float64 `json:"time_in_sec"` // 一天中的秒数
	RunID     ID      `json:"runid"`
	Headway   float64 `json:"headway"`   // 与前一班的间隔（秒）
	Deviation float64 `json:"deviation"` // 相对计划的偏差（秒）
	Direction string  `json:"direction"`
}

// BlueLineRecord 计划时刻表中一个车次在某终点站的发车
type BlueLineRecord struct {
	RunID       ID      `json:"runid"`
	TimeInSec   float64 `json:"time_in_sec"`
	Terminal    string  `json:"terminal"`
	ShortTurned bool    `json:"short_turned"`
}

// Schedule 时刻表输入
type Schedule struct {
	Empirical []EmpiricalRecord `json:"empirical_schedule"`
	BlueLine  []BlueLineRecord  `json:"blue_line_schedule"`
}

// LoadSchedule 读取时刻表JSON，丢弃间隔非正的实测记录
func LoadSchedule(path string) (*Schedule, error) {
	var s Schedule
	if err := readJSON(path, &s); err != nil {
		return nil, err
	}
	valid := s.Empirical[:0]
	for _, r := range s.Empirical {
		if r.Headway > 0 {
			valid = append(valid, r)
		} else {
			log.Debugf("drop empirical record %s at %v: headway %v", r.RunID, r.TimeInSec, r.Headway)
		}
	}
	s.Empirical = valid
	return &s, nil
}
