// Package main 管理服务器入口
//
// 每个进程即一个节点：对外提供管理接口，同时参与同步队列的认领与执行。
// 多个节点共享同一个数据库，同一资源的作业在整个集群内严格串行。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"mgmt-syncq/internal/apiserver/auth"
	"mgmt-syncq/internal/apiserver/server"
	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/config"
	"mgmt-syncq/internal/jobhandler"
	"mgmt-syncq/internal/shared/infra"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/syncqueue"
	"mgmt-syncq/internal/tlsutil"
	"mgmt-syncq/pkg/logging"
)

// runner 后台循环组件
type runner interface {
	Start(ctx context.Context)
	Stop()
}

func main() {
	configDirFlag := flag.String("config", "", "配置文件目录（或 YAML 文件路径）")
	hashPassword := flag.String("hash-password", "", "输出密码的 bcrypt 哈希（用于 ADMIN_PASSWORD_HASH）后退出")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if *configDirFlag != "" {
		dir := *configDirFlag
		// 支持直接指定 YAML 文件路径
		if strings.HasSuffix(dir, ".yaml") || strings.HasSuffix(dir, ".yml") {
			dir = filepath.Dir(dir)
		}
		config.SetConfigDir(dir)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    cfg.Log.Output,
		Component: "mgmt-server",
	})

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = model.GenerateNodeID()
	}
	logger = logger.WithNodeID(nodeID)

	log.Printf("Starting mgmt-server... [env=%s node=%s]", cfg.Env, nodeID)
	log.Printf("Config: %s", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real{}
	inf, err := infra.New(ctx, cfg, clk)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()

	metrics := syncqueue.NewMetrics("syncq", nil)
	opts := syncqueue.Options{
		Clock:    clk,
		Logger:   logger,
		Metrics:  metrics,
		EventBus: inf.EventBus,
	}

	handlers, err := jobhandler.BuildRegistry(cfg.Handlers, logger.Named("jobhandler"))
	if err != nil {
		log.Fatalf("Failed to build job handlers: %v", err)
	}
	log.Printf("Job handlers: kinds=%v default=%s", handlers.Kinds(), cfg.Handlers.Default)

	service := syncqueue.NewService(inf.Store, nodeID, opts)

	qcfg := &syncqueue.Config{
		NodeID:         nodeID,
		LeaseDuration:  cfg.SyncQueue.LeaseDuration,
		RenewInterval:  cfg.SyncQueue.RenewInterval,
		PollInterval:   cfg.SyncQueue.PollInterval,
		SweepInterval:  cfg.SyncQueue.SweepInterval,
		BatchSize:      cfg.SyncQueue.BatchSize,
		Workers:        cfg.SyncQueue.Workers,
		Strategy:       cfg.SyncQueue.Strategy,
		MaxBackoff:     cfg.SyncQueue.MaxBackoff,
		HandlerTimeout: cfg.SyncQueue.HandlerTimeout,
		RetryBaseDelay: cfg.SyncQueue.RetryBaseDelay,
		RetryMaxDelay:  cfg.SyncQueue.RetryMaxDelay,
	}
	dispatcher, err := syncqueue.NewDispatcher(service.Ledger(), service.Claims(), handlers, qcfg, opts)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}

	runners := []runner{
		syncqueue.NewSweeper(service.Claims(), qcfg, opts),
	}

	deps := server.Deps{
		Service: service,
		Store:   inf.Store,
		Archive: inf.ArchiveReader,
		NodeID:  nodeID,
		Auth: auth.Config{
			JWTSecret:         cfg.Auth.JWTSecret,
			AccessTokenTTL:    cfg.Auth.AccessTokenTTL,
			AdminUser:         cfg.Auth.AdminUser,
			AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		},
	}
	if !deps.Auth.Enabled() {
		log.Printf("WARNING: JWT_SECRET not set, management API is unauthenticated")
	}

	if inf.Members != nil {
		hostname, _ := os.Hostname()
		self := &model.Node{ID: nodeID, Hostname: hostname, StartedAt: clk.Now()}
		runners = append(runners, syncqueue.NewHeartbeater(inf.Members, self, cfg.Membership.HeartbeatInterval, opts))
		if inf.MembersShared {
			runners = append(runners, syncqueue.NewNodeWatcher(inf.Members, service.Claims(), nodeID,
				cfg.Membership.CheckInterval, cfg.Membership.TTL, opts))
		}
		deps.Members = inf.Members
	}

	if cfg.Reaper.Enabled {
		runners = append(runners, syncqueue.NewReaper(inf.Store, inf.Archiver, syncqueue.ReaperConfig{
			Interval:  cfg.Reaper.Interval,
			Retention: cfg.Reaper.Retention,
			BatchSize: cfg.Reaper.BatchSize,
		}, opts))
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Start(ctx)
	}()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			r.Start(ctx)
		}(r)
	}

	tlsConfig, caFile, err := tlsutil.Resolve(cfg.APITLS.Mode, tlsutil.Options{
		Dir:    cfg.APITLS.CertDir,
		NodeID: nodeID,
		Hosts:  tlsutil.ParseHosts(cfg.APITLS.Hosts),
		Clock:  clk,
	}, cfg.APITLS.CertFile, cfg.APITLS.KeyFile)
	if err != nil {
		log.Fatalf("Failed to prepare TLS: %v", err)
	}

	h := server.NewHandler(deps)
	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      withCACertEndpoint(h.Router(), caFile),
		TLSConfig:    tlsConfig,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if tlsConfig != nil {
		log.Printf("mgmt-server listening on :%s (https)", cfg.APIPort)
		err = srv.ListenAndServeTLS("", "")
	} else {
		log.Printf("mgmt-server listening on :%s", cfg.APIPort)
		err = srv.ListenAndServe()
	}
	if err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	// 先停止认领新项，等待执行中的处理器完成并写回结果；
	// 超过一个租约时长仍未完成的项由其他节点在租约过期后接管
	dispatcher.Stop()
	select {
	case <-dispatchDone:
	case <-time.After(cfg.SyncQueue.LeaseDuration):
		log.Printf("WARNING: in-flight jobs did not finish within %s, cancelling", cfg.SyncQueue.LeaseDuration)
	}

	for _, r := range runners {
		r.Stop()
	}
	cancel()
	wg.Wait()
	<-dispatchDone

	fmt.Println("Server stopped")
}
