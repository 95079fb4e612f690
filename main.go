package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/output"
	"github.com/tsinghua-fib-lab/railsim/task"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
	"github.com/tsinghua-fib-lab/railsim/utils/input"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

var (
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 输出根目录，非空时覆盖配置文件中的output.dir
	outputDir = flag.String("output", "", "output dir (overrides output.dir)")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "railsim")
)

// loadConfig 读取YAML配置并补全默认值
func loadConfig() (*config.RuntimeConfig, error) {
	var (
		file []byte
		err  error
	)
	switch {
	case *configPath != "":
		if file, err = os.ReadFile(*configPath); err != nil {
			return nil, fmt.Errorf("config file load err: %w", err)
		}
	case *configData != "":
		if file, err = base64.StdEncoding.DecodeString(*configData); err != nil {
			return nil, fmt.Errorf("config data load err: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: config file or config data must be specified", entity.ErrConfiguration)
	}
	var c config.Config
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrConfiguration, err)
	}
	if *outputDir != "" {
		c.Output.Dir = *outputDir
	}
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrConfiguration, err)
	}
	return rc, nil
}

// newSink 创建一次重复的输出：CSV目录<dir>/<run>，配置了数据库时同时写入MongoDB
func newSink(ctx context.Context, c config.Output, run string) (output.Sink, error) {
	csv, err := output.NewCSVSink(filepath.Join(c.Dir, run), c.FlushEvery)
	if err != nil {
		return nil, err
	}
	if c.Mongo.URI == "" {
		return csv, nil
	}
	mongo, err := output.NewMongoSink(ctx, c.Mongo.URI, c.Mongo.DB, c.FlushEvery)
	if err != nil {
		_ = csv.Close()
		return nil, err
	}
	return output.MultiSink{csv, mongo}, nil
}

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	rc, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("%+v", rc.All)
	in, err := input.Load(rc.All.Input)
	if err != nil {
		log.Fatalf("%v: %v", entity.ErrConfiguration, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 各次重复互不影响：单次失败只记录结果，不取消其他重复
	results := make([]task.Result, rc.C.Replications)
	var g errgroup.Group
	g.SetLimit(rc.C.Parallel)
	for i := range rc.C.Replications {
		g.Go(func() error {
			run := uuid.NewString()
			results[i] = task.Result{Replication: i, Run: run}
			sink, err := newSink(ctx, rc.All.Output, run)
			if err != nil {
				results[i].Failed, results[i].Err = true, err
				return nil
			}
			t, err := task.NewContext(rc, in, i, run, sink)
			if err != nil {
				_ = sink.Close()
				results[i].Failed, results[i].Err = true, err
				return nil
			}
			results[i] = t.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
			log.Errorf("replication %d (%s) failed: %v", r.Replication, r.Run, r.Err)
			continue
		}
		log.Infof("replication %d (%s): dispatched=%d finished=%d served=%d",
			r.Replication, r.Run, r.Dispatched, r.Finished, r.Served)
	}
	if failed > 0 {
		log.Errorf("%d/%d replications failed", failed, len(results))
		os.Exit(1)
	}
}
