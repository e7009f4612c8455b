package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"

	"ilowa-market-sol/internal/config"
	"ilowa-market-sol/internal/logic/stream"
	"ilowa-market-sol/internal/svc"
	"ilowa-market-sol/pkg/logger"
)

var configFile = flag.String("f", "etc/markets.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	if err := c.Validate(); err != nil {
		logx.Must(err)
	}

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		logx.Must(err)
	}
	defer logger.Sync()

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		logx.Must(err)
	}
	defer serviceContext.Close()

	sg := zerosvc.NewServiceGroup()
	sg.Add(serviceContext.Sync)

	if c.Grpc.Endpoint != "" {
		streamOpt := c.Grpc.ToStreamOption(serviceContext.ProgramID, serviceContext.Ledger.Commitment())
		accountStream, err := stream.NewAccountStreamManager(streamOpt, serviceContext.MarketCache, serviceContext.Sync)
		if err != nil {
			logx.Must(err)
		}
		sg.Add(accountStream)
	}

	logx.Infof("Starting market sync service, program=%s", serviceContext.ProgramID)

	go sg.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down services...")
	sg.Stop()
}
