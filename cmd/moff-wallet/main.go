package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moff.io/moff-wallet/internal/aws"
	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/database"
	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/internal/http"
	"moff.io/moff-wallet/internal/injected"
	"moff.io/moff-wallet/internal/starter"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var reset = flag.Bool("reset", false, "Forget the stored wallet connect session and preferences, then exit")

func main() {
	log.Infof("Starting app")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	cfg := config.Global
	log.SetLevelName(cfg.LogLevel)

	var clients *aws.Clients
	if cfg.AWS.Region != "" {
		c, err := aws.Init(context.Background(), cfg.AWS.Region, cfg.AWS.Bucket)
		if err != nil {
			log.Fatal(err)
		}
		if err := c.ResolveSecrets(context.Background(), cfg); err != nil {
			log.Fatal(err)
		}
		clients = c
	}
	if err := errors.NewSentryReporter(cfg.SentryDSN); err != nil {
		log.Warn(err)
	}
	errors.NewLarkReporter(cfg.LarkAlarmWebhook, time.Minute)
	cache.Init(&cfg.RedisCredential)
	defer cache.Close()

	if *reset {
		if err := cache.DeleteFromPrefix(cache.KeyPrefix); err != nil {
			log.Fatal(err)
		}
		log.Info("stored wallet state cleared")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		provider        wallet.InjectedProvider
		injectedAdapter wallet.Adapter
	)
	detectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	p, err := injected.Detect(detectCtx, cfg.Injected.URL, cfg.Injected.ExpectedClient)
	cancel()
	if err != nil {
		log.Infof("injected wallet unavailable: %v", err)
	} else {
		defer p.Close()
		provider = p
		injectedAdapter = wallet.NewInjectedAdapter(p)
	}

	newRemote := remoteSessionFactory(cfg, cache.NewSessionStore(cache.Redis), clients)
	manager := wallet.NewManager(wallet.Options{
		Injected: injectedAdapter,
		Remote:   wallet.NewRemoteSessionAdapter(newRemote, cfg.WalletConnect.LivenessTimeout()),
		Chain:    wallet.NewChainCoordinator(cfg.TargetChain.ID, cfg.TargetChain.RPCAddress, chainInfo(cfg)),
		Balance: wallet.NewBalanceService(cfg.TargetChain.RPCAddress, nil).
			WithRateLimit(cfg.TargetChain.RPCRateLimit),
		Prefs: cache.NewPreferences(cache.Redis),
	})
	defer manager.Close()
	manager.Watch(logState)

	server := http.NewServer(manager)
	if cfg.HTTP.RateLimitPerMinute > 0 {
		server.WithLimiter(cache.NewRateLimiter(cache.Redis, cfg.HTTP.RateLimitPerMinute))
	}
	var sinks []wallet.EventSink
	if cfg.Postgres.Address != "" {
		database.InitPostgres(&cfg.Postgres)
		defer database.Close()
		history := database.NewHistory(database.Postgres)
		server.WithHistory(history)
		sinks = append(sinks, history)
	}
	if cfg.Kafka.Hosts != "" {
		bus, err := databus.Dial(cfg.Kafka.Hosts, cfg.Kafka.Topic, cfg.Kafka.Node)
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Close()
		sinks = append(sinks, bus)
	}
	relay := wallet.NewEventRelay(manager, sinks...)

	starter.Start(ctx,
		relay,
		wallet.NewReconnectPolicy(manager, provider, newRemote, cfg.Reconnect.SettleDelay()),
		server,
	)
	<-ctx.Done()
	log.Info("shutting down")
	starter.Stop(relay, server)
}

func chainInfo(cfg *config.Configuration) *wallet.ChainInfo {
	if cfg.TargetChain.Name == "" {
		return nil
	}
	return &wallet.ChainInfo{
		Name:     cfg.TargetChain.Name,
		Symbol:   cfg.TargetChain.Symbol,
		Decimals: cfg.TargetChain.Decimals,
	}
}

func remoteSessionFactory(cfg *config.Configuration, store walletconnect.SessionStore, clients *aws.Clients) wallet.RemoteSessionFactory {
	meta := cfg.WalletConnect.ClientMeta
	return func(ctx context.Context) (wallet.RemoteSession, error) {
		var session *walletconnect.Session
		opts := walletconnect.Options{
			BridgeURL: cfg.WalletConnect.BridgeURL,
			ChainID:   cfg.TargetChain.ID,
			ClientMeta: walletconnect.ClientMeta{
				Name:        meta.Name,
				Description: meta.Description,
				URL:         meta.URL,
				Icons:       meta.Icons,
			},
			DisplayURI: func(uri string) error {
				log.Infof("wallet connect - scan with your wallet to pair: %v", uri)
				if path := cfg.WalletConnect.QRCodePath; path != "" {
					if err := session.WriteQRCode(path, 256); err != nil {
						return err
					}
					log.Infof("wallet connect - pairing qr code written to %v", path)
				}
				if clients != nil && cfg.AWS.Bucket != "" {
					png, err := session.QRCodePNG(256)
					if err != nil {
						return err
					}
					key := fmt.Sprintf("moff-wallet/pairing/%v.png", time.Now().UnixMilli())
					url, err := clients.UploadPairingQRCode(ctx, key, png, 15*time.Minute)
					if err != nil {
						return err
					}
					log.Infof("wallet connect - pairing qr code available at %v", url)
				}
				return nil
			},
		}
		s, err := walletconnect.NewSession(ctx, opts, store)
		if err != nil {
			return nil, err
		}
		session = s
		return s, nil
	}
}

func logState(s wallet.State) {
	switch state := s.(type) {
	case *wallet.Connected:
		log.Infof("wallet - connected %v via %v, chain %v (target %v), balance %v",
			state.Account, state.Kind, state.CurrentChainID, state.TargetChainID(), state.TargetChainBalance.Value)
	case *wallet.Disconnected:
		log.Info("wallet - disconnected")
	}
}
