package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/portalis-labs/keygate/adapters/chain"
	"github.com/portalis-labs/keygate/adapters/events"
	"github.com/portalis-labs/keygate/adapters/kv"
	"github.com/portalis-labs/keygate/adapters/sqlite"
	"github.com/portalis-labs/keygate/adapters/tokenizer"
	"github.com/portalis-labs/keygate/monitor"
	"github.com/portalis-labs/keygate/ports"
	"github.com/portalis-labs/keygate/service"
	"github.com/portalis-labs/keygate/transport/http"
)

// infraConfig wires the process to its backing services. Empty optional
// fields degrade gracefully: no Redis means in-process KV and queue, no RPC
// URL means offline wallet derivation and a skipping mirror.
type infraConfig struct {
	ListenAddr string `env:"KEYGATE_LISTEN_ADDR" envDefault:":9000"`
	DBPath     string `env:"KEYGATE_DB_PATH" envDefault:"keygate.db"`
	RedisURL   string `env:"KEYGATE_REDIS_URL"`

	EthRPCURL       string          `env:"KEYGATE_ETH_RPC_URL"`
	FactoryAddress  string          `env:"KEYGATE_FACTORY_ADDRESS"`
	RegistryAddress string          `env:"KEYGATE_REGISTRY_ADDRESS"`
	ChainID         int64           `env:"KEYGATE_CHAIN_ID" envDefault:"1"`
	RelayerKeyHex   string          `env:"KEYGATE_RELAYER_KEY"`
	MinBalanceEth   decimal.Decimal `env:"KEYGATE_MIN_BALANCE_ETH" envDefault:"0.01"`

	MonitorInterval time.Duration `env:"KEYGATE_MONITOR_INTERVAL" envDefault:"30s"`
	AlertWebhookURL string        `env:"KEYGATE_ALERT_WEBHOOK_URL"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var infra infraConfig
	if err := env.Parse(&infra); err != nil {
		log.Fatalf("Failed to parse infra config: %v", err)
	}
	var svcCfg service.Config
	if err := env.Parse(&svcCfg); err != nil {
		log.Fatalf("Failed to parse service config: %v", err)
	}

	// Session signing key. Ephemeral: restarting the process invalidates
	// outstanding tokens, which is acceptable for sessions.
	sessionKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate session key: %v", err)
	}

	store, err := sqlite.Open(infra.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	wmLogger := watermill.NewSlogLogger(logger)

	var (
		challengeKV ports.KV
		publisher   message.Publisher
		subscriber  message.Subscriber
	)
	if infra.RedisURL != "" {
		opts, err := redis.ParseURL(infra.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		challengeKV = kv.NewRedisKV(redisClient, "keygate:")

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}
		subscriber, err = redisstream.NewSubscriber(
			redisstream.SubscriberConfig{Client: redisClient, ConsumerGroup: "keygate-mirror"}, wmLogger)
		if err != nil {
			log.Fatalf("Failed to create Redis subscriber: %v", err)
		}
	} else {
		logger.Warn("no redis configured, using in-process kv and queue")
		challengeKV = kv.NewMemoryKV()
		channel := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		publisher, subscriber = channel, channel
	}

	var (
		ethClient  *ethclient.Client
		relayerKey *ecdsa.PrivateKey
	)
	if infra.EthRPCURL != "" {
		ethClient, err = ethclient.Dial(infra.EthRPCURL)
		if err != nil {
			log.Fatalf("Failed to dial ledger RPC: %v", err)
		}
		if infra.RelayerKeyHex != "" {
			relayerKey, err = ethcrypto.HexToECDSA(infra.RelayerKeyHex)
			if err != nil {
				log.Fatalf("Failed to parse relayer key: %v", err)
			}
		}
	} else {
		logger.Warn("no ledger rpc configured, wallet addresses derived offline")
	}

	var resolverClient chain.ContractCaller
	var mirrorClient chain.TxClient
	if ethClient != nil {
		resolverClient, mirrorClient = ethClient, ethClient
	}
	resolver := chain.NewResolver(resolverClient, common.HexToAddress(infra.FactoryAddress), logger)
	mirror := chain.NewMirror(mirrorClient, relayerKey, common.HexToAddress(infra.RegistryAddress),
		big.NewInt(infra.ChainID), infra.MinBalanceEth, logger)

	svc := service.New(svcCfg, service.Deps{
		KV:         challengeKV,
		Identities: store,
		Sessions:   store,
		Audits:     store,
		Tokenizer:  tokenizer.NewJWTTokenizer(sessionKey),
		Resolver:   resolver,
		Mirror:     events.NewWatermillQueue(publisher),
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := events.NewMirrorWorker(subscriber, mirror, store, store, logger)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("mirror worker stopped", "err", err)
		}
	}()

	if ethClient != nil && relayerKey != nil {
		mon := monitor.New(monitor.Config{
			Interval:   infra.MonitorInterval,
			MinBalance: infra.MinBalanceEth,
			WebhookURL: infra.AlertWebhookURL,
		}, ethClient, ethcrypto.PubkeyToAddress(relayerKey.PublicKey), logger)
		go mon.Run(ctx)
	}

	router := http.SetupRouter(svc)
	if err := router.Run(infra.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
