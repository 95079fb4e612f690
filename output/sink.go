package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sink 记录输出目标
// 说明：仅追加写入，同一类记录保持写入顺序
type Sink interface {
	Write(r Record) error
	Flush() error
	Close() error
}

// csvStream 单一记录类型的CSV文件
type csvStream struct {
	file *os.File
	buf  *bufio.Writer
	w    *csv.Writer
}

// CSVSink 每类记录一个CSV文件，带缓冲
type CSVSink struct {
	dir        string
	flushEvery int
	pending    int
	streams    map[string]*csvStream
}

// NewCSVSink 创建CSV输出，目录不存在时自动创建
// 参数：dir-输出目录，flushEvery-累计写入多少条记录后刷新缓冲
func NewCSVSink(dir string, flushEvery int) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &CSVSink{
		dir:        dir,
		flushEvery: flushEvery,
		streams:    make(map[string]*csvStream),
	}, nil
}

func (s *CSVSink) stream(r Record) (*csvStream, error) {
	if st, ok := s.streams[r.Kind()]; ok {
		return st, nil
	}
	file, err := os.Create(filepath.Join(s.dir, r.Kind()+".csv"))
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(file)
	st := &csvStream{file: file, buf: buf, w: csv.NewWriter(buf)}
	if err := st.w.Write(r.Header()); err != nil {
		return nil, err
	}
	s.streams[r.Kind()] = st
	return st, nil
}

func (s *CSVSink) Write(r Record) error {
	st, err := s.stream(r)
	if err != nil {
		return err
	}
	if err := st.w.Write(r.Row()); err != nil {
		return err
	}
	s.pending++
	if s.flushEvery > 0 && s.pending >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *CSVSink) Flush() error {
	s.pending = 0
	var errs []error
	for _, st := range s.streams {
		st.w.Flush()
		errs = append(errs, st.w.Error(), st.buf.Flush())
	}
	return errors.Join(errs...)
}

func (s *CSVSink) Close() error {
	errs := []error{s.Flush()}
	for _, st := range s.streams {
		errs = append(errs, st.file.Close())
	}
	s.streams = make(map[string]*csvStream)
	return errors.Join(errs...)
}

// MemorySink 将记录保存在内存中
type MemorySink struct {
	Trains     []TrainRecord
	Blocks     []BlockRecord
	Stations   []StationRecord
	Passengers []PassengerRecord
}

func (s *MemorySink) Write(r Record) error {
	switch v := r.(type) {
	case *TrainRecord:
		s.Trains = append(s.Trains, *v)
	case *BlockRecord:
		s.Blocks = append(s.Blocks, *v)
	case *StationRecord:
		s.Stations = append(s.Stations, *v)
	case *PassengerRecord:
		s.Passengers = append(s.Passengers, *v)
	default:
		return fmt.Errorf("unknown record kind %s", r.Kind())
	}
	return nil
}

func (s *MemorySink) Flush() error { return nil }
func (s *MemorySink) Close() error { return nil }

// MultiSink 同时写入多个输出
type MultiSink []Sink

func (m MultiSink) Write(r Record) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Write(r))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Flush() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
