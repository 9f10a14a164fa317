package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	gosip "github.com/ghettovoice/gosip"
	gosiplog "github.com/ghettovoice/gosip/log"
	"github.com/spf13/cobra"
	client "github.com/zelenin/go-tdlib/client"
	"gopkg.in/ini.v1"
)

func startSIP(cfg *Settings) (gosip.Server, error) {
	coreLog.Info("starting SIP server")

	host, err := advertisedHost(cfg.PublicAddress())
	if err != nil {
		return nil, fmt.Errorf("sip host: %w", err)
	}
	logger := gosiplog.NewLogrusLogger(sipLog, "SIP", nil)
	srv := gosip.NewServer(gosip.ServerConfig{Host: host, UserAgent: "callaudio"}, nil, nil, logger)

	port := cfg.SIPPort()
	var listenErr error
	for i := 0; i <= cfg.SIPPortRange(); i++ {
		addr := fmt.Sprintf(":%d", port+i)
		listenErr = srv.Listen("udp", addr)
		if listenErr == nil {
			coreLog.Infof("SIP server listening on %s/udp as %s", addr, host)
			return srv, nil
		}
		coreLog.Warnf("failed to listen on %s: %v", addr, listenErr)
	}
	srv.Shutdown()
	return nil, fmt.Errorf("sip listen: %w", listenErr)
}

func startTG(cfg *Settings) (*client.Client, error) {
	coreLog.Info("starting Telegram client")

	dataDir := cfg.DatabaseFolder()
	if dataDir == "" {
		dataDir = ".tdlib"
	}

	params := &client.SetTdlibParametersRequest{
		DatabaseDirectory:      filepath.Join(dataDir, "database"),
		FilesDirectory:         filepath.Join(dataDir, "files"),
		UseFileDatabase:        true,
		UseChatInfoDatabase:    true,
		UseMessageDatabase:     true,
		ApiId:                  int32(cfg.APIID()),
		ApiHash:                cfg.APIHash(),
		SystemLanguageCode:     cfg.SystemLanguageCode(),
		DeviceModel:            cfg.DeviceModel(),
		SystemVersion:          cfg.SystemVersion(),
		ApplicationVersion:     cfg.ApplicationVersion(),
		EnableStorageOptimizer: true,
	}

	authorizer := client.ClientAuthorizer(params)
	go client.CliInteractor(authorizer)

	tg, err := client.NewClient(authorizer)
	if err != nil {
		return nil, fmt.Errorf("tdlib client: %w", err)
	}

	if cfg.ProxyEnabled() {
		if cfg.ProxyAddress() != "" && cfg.ProxyPort() != 0 {
			_, err := tg.AddProxy(&client.AddProxyRequest{
				Server: cfg.ProxyAddress(),
				Port:   int32(cfg.ProxyPort()),
				Enable: true,
				Type: &client.ProxyTypeSocks5{
					Username: cfg.ProxyUsername(),
					Password: cfg.ProxyPassword(),
				},
			})
			if err != nil {
				return nil, fmt.Errorf("telegram.add_proxy: %w", err)
			}
		} else {
			coreLog.Warn("telegram proxy enabled but address or port missing")
		}
	}

	me, err := tg.GetMe()
	if err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	coreLog.Infof("telegram authorized as %s %s (@%s)", me.FirstName, me.LastName, username(me))
	return tg, nil
}

func run(ctx context.Context, configPath, dial string) error {
	cfg, err := ini.Load(configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings, err := LoadSettings(cfg)
	if err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	if err := initLogging(cfg, settings.TelegramEnabled()); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLogging(settings.TelegramEnabled())
	coreLog.WithField("config", configPath).Info("settings loaded")

	var sipSrv gosip.Server
	if settings.SIPEnabled() {
		if sipSrv, err = startSIP(settings); err != nil {
			return err
		}
		defer sipSrv.Shutdown()
	}
	var tg *client.Client
	if settings.TelegramEnabled() {
		if tg, err = startTG(settings); err != nil {
			return err
		}
	}

	gw, err := NewGateway(settings, sipSrv, tg)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := gw.Start(ctx, dial); err != nil {
		return err
	}
	coreLog.Info("graceful shutdown complete")
	return nil
}

func newRootCmd() *cobra.Command {
	var configPath, dial string
	cmd := &cobra.Command{
		Use:           "callaudiod",
		Short:         "Route call audio for SIP and Telegram calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, dial)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "settings.ini", "settings file")
	cmd.Flags().StringVar(&dial, "dial", "", "SIP URI to call once started")
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
