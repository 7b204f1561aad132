package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moff.io/moff-wallet/internal/aws"
	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/internal/http"
	"moff.io/moff-wallet/internal/starter"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

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
	log.SetLevel(0)
	config.Read()
	log.SetLevel(config.Global.LogLevel)
	initReporters(config.Global)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	projectID, err := resolveProjectID(ctx, config.Global)
	if err != nil {
		log.Fatal(err)
	}
	store, closeStore := newSessionStore(ctx, config.Global)
	defer closeStore()

	opts := wallet.Options{
		ChainID:       config.Global.Wallet.ChainID,
		PendingPolicy: wallet.PendingPolicy(config.Global.Wallet.PendingPolicy),
		SigningMode:   wallet.SigningMode(config.Global.Wallet.SigningMode),
	}
	if config.Global.KafkaServer != "" {
		bus, err := databus.Dial(config.Global.KafkaServer)
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Close()
		opts.Events = bus
	}
	w, err := wallet.New(clientFactory(config.Global, store), opts)
	if err != nil {
		log.Fatal(err)
	}
	defer w.Close()

	if _, err := w.GenerateIdentity(); err != nil {
		log.Fatal(err)
	}
	if err := w.InitClient(ctx, projectID); err != nil {
		log.Error(errors.WrapAndReport(err, "init wallet connect client"))
	}

	server := http.NewServer(w)
	starter.Start(ctx, server)
	defer starter.Stop(server)

	<-ctx.Done()
	log.Infof("Stopping app")
}

func initReporters(c *config.Configuration) {
	if c.SentryDSN != "" {
		if err := errors.NewSentryReporter(c.SentryDSN); err != nil {
			log.Error(err)
		}
	}
	if c.LarkAlarmWebhook != "" {
		errors.NewLarkReporter(c.LarkAlarmWebhook, time.Minute)
	}
}

// resolveProjectID prefers the configured project id and falls back to SSM.
func resolveProjectID(ctx context.Context, c *config.Configuration) (string, error) {
	if c.ProjectID != "" {
		return c.ProjectID, nil
	}
	if c.Aws.ProjectIDParameter == "" {
		return "", errors.Errorf("project id not present, set %v or aws.project_id_parameter", config.ProjectIDEnv)
	}
	clients, err := aws.New(ctx, c.Aws.Region)
	if err != nil {
		return "", err
	}
	return clients.GetParameterValue(ctx, c.Aws.ProjectIDParameter)
}

func newSessionStore(ctx context.Context, c *config.Configuration) (walletconnect.Store, func()) {
	if c.WalletConnect.SessionStore != "redis" {
		return walletconnect.NewMemoryStore(), func() {}
	}
	client, err := cache.Connect(ctx, &c.RedisCredential)
	if err != nil {
		log.Fatal(err)
	}
	return cache.NewSessionStore(client, ""), func() { _ = client.Close() }
}

func clientFactory(c *config.Configuration, store walletconnect.Store) wallet.ClientFactory {
	metadata := walletconnect.Metadata{
		Name:        c.WalletConnect.Metadata.Name,
		Description: c.WalletConnect.Metadata.Description,
		URL:         c.WalletConnect.Metadata.URL,
		Icons:       c.WalletConnect.Metadata.Icons,
	}
	return func(ctx context.Context, projectID string) (wallet.ConnectionClient, error) {
		client, err := walletconnect.Init(ctx, walletconnect.Options{
			ProjectID:      projectID,
			RelayURL:       c.WalletConnect.RelayURL,
			UserAgent:      c.WalletConnect.UserAgent,
			Metadata:       metadata,
			Store:          store,
			PublishRate:    c.WalletConnect.PublishRate,
			RequestTimeout: c.WalletConnect.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
