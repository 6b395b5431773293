package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/api"
	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/infra"
	"github.com/joseferreira/stakenet/internal/persistence"
	"github.com/joseferreira/stakenet/internal/service"
)

func main() {
	connectAddr := flag.String("connect", "", "multiaddress of a peer to connect to")
	flag.Parse()

	config := infra.LoadConfig()
	infra.SetupLogging(os.Stdout, config.LogLevel)
	logger := logrus.StandardLogger()

	sctx, err := config.SerializationContext()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid serialization limits")
	}
	version, err := config.Version()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid node version")
	}

	key, err := domain.GeneratePrivateKey()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to generate node key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := persistence.NewBlockRepository(config.DBPath, sctx, logger)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open block store")
	}
	defer repo.Close()

	pool := service.NewPoolService(logger)
	blocks, err := service.NewBlockService(repo, pool, sctx, logger)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start block service")
	}

	p2p, err := service.NewP2PService(ctx, config, sctx, key, logger)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create P2P service")
	}
	defer p2p.Close()

	node := service.NewNodeService(ctx, blocks, pool, service.NewHandshakes(key, version), p2p, sctx, logger)
	defer node.Close()

	p2p.SetHandler(node)
	p2p.Start()
	node.Start(config.PeerDiscoveryInterval)

	logrus.WithFields(logrus.Fields{
		"public_key": key.PublicKey().String(),
		"address":    domain.AddressFromPublicKey(key.PublicKey()).String(),
		"version":    version.String(),
	}).Info("Node started")

	if *connectAddr != "" {
		if err := p2p.Connect(*connectAddr); err != nil {
			logrus.WithError(err).Error("Failed to connect to peer")
		}
	}

	go func() {
		apiServer := api.NewServer(config.HTTPListenAddress, node, p2p, logger)
		if err := apiServer.Start(); err != nil {
			logrus.WithError(err).Fatal("Failed to start API server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logrus.Info("Shutting down...")
}
