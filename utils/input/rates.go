package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var rateColumns = []string{"time_bin_quarter_hour_float", "weekday_bool", "Origin", "Destination", "arrival_rate"}

type rateKey struct {
	bin     int
	weekday bool
	origin  string
}

// ArrivalRates 客流到达率表
// 说明：time_bin_quarter_hour_float为以小时计的时段起点（6.25即06:15），
// 换算为一天中第几个15分钟时段
type ArrivalRates struct {
	data map[rateKey]map[string]float64
}

// NewArrivalRates 创建空的到达率表
func NewArrivalRates() *ArrivalRates {
	return &ArrivalRates{data: make(map[rateKey]map[string]float64)}
}

// Set 设置到达率（人/15分钟）
func (a *ArrivalRates) Set(bin int, weekday bool, origin, destination string, rate float64) {
	key := rateKey{bin: bin, weekday: weekday, origin: origin}
	if _, ok := a.data[key]; !ok {
		a.data[key] = make(map[string]float64)
	}
	a.data[key][destination] += rate
}

// Rates 实现entity.IArrivalRateProvider
func (a *ArrivalRates) Rates(bin int, weekday bool, origin string) map[string]float64 {
	return a.data[rateKey{bin: bin, weekday: weekday, origin: origin}]
}

// Len 表中(时段, 工作日, 起点)组合数
func (a *ArrivalRates) Len() int {
	return len(a.data)
}

// ReadArrivalRates 从CSV读取到达率表，列可按任意顺序排列
func ReadArrivalRates(r io.Reader) (*ArrivalRates, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	cols := make([]int, len(rateColumns))
	for i, name := range rateColumns {
		c, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
		cols[i] = c
	}

	rates := NewArrivalRates()
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		hour, err := strconv.ParseFloat(row[cols[0]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: time bin: %w", line, err)
		}
		weekday, err := strconv.ParseBool(row[cols[1]])
		if err != nil {
			return nil, fmt.Errorf("line %d: weekday: %w", line, err)
		}
		rate, err := strconv.ParseFloat(row[cols[4]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: arrival rate: %w", line, err)
		}
		if rate <= 0 {
			continue
		}
		bin := int(math.Round(hour * 4))
		rates.Set(bin, weekday, row[cols[2]], row[cols[3]], rate)
	}
	return rates, nil
}

// LoadArrivalRates 读取到达率CSV文件
func LoadArrivalRates(path string) (*ArrivalRates, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	rates, err := ReadArrivalRates(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	log.Infof("arrival rates: %d (bin, weekday, origin) entries", rates.Len())
	return rates, nil
}
