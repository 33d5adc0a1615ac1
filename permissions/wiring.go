package permissions

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/permission-relay/batch"
	"github.com/omni/permission-relay/config"
	"github.com/omni/permission-relay/contract"
	"github.com/omni/permission-relay/dispatcher"
	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/ethclient"
	"github.com/omni/permission-relay/events"
	"github.com/omni/permission-relay/grantfile"
	"github.com/omni/permission-relay/ledger"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/nonce"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/signer"
	"github.com/omni/permission-relay/typeddata"
)

const receiptPollInterval = 2 * time.Second

// Store persists dispatched transactions and relayer operations.
type Store interface {
	dispatcher.Recorder
	Operations() entity.RelayerOperationsRepo
}

// NewFromConfig wires a controller against the configured chain. Without a
// signer private key the controller can only run queries. store may be nil.
func NewFromConfig(ctx context.Context, cfg *config.Config, store Store, logger logging.Logger) (*Controller, error) {
	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.RPC.RPS, cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("can't dial rpc client: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get chain id: %w", err)
	}

	var (
		wallet signer.Wallet
		key    *ecdsa.PrivateKey
	)
	if cfg.Signer.PrivateKey != "" {
		keyWallet, err2 := signer.NewKeyWalletFromHex(cfg.Signer.PrivateKey)
		if err2 != nil {
			return nil, err2
		}
		wallet, key = keyWallet, keyWallet.PrivateKey()
		logger.WithField("account", keyWallet.Account()).Info("using configured signer account")
	}
	chainLedger := ledger.NewEthLedger(client, key, receiptPollInterval)

	permissionsContract := contract.NewDataPermissionsContract(chainLedger, cfg.Contracts.DataPermissions)
	serversContract := contract.NewServersContract(chainLedger, cfg.Contracts.Servers)
	granteesContract := contract.NewGranteesContract(chainLedger, cfg.Contracts.Grantees)

	composer := typeddata.NewComposer(typeddata.ComposerConfig{
		ChainID: chainID,
		PermissionsDomain: typeddata.Domain{
			Name:              cfg.Contracts.PermissionsDomain.Name,
			Version:           cfg.Contracts.PermissionsDomain.Version,
			VerifyingContract: cfg.Contracts.DataPermissions,
		},
		ServersDomain: typeddata.Domain{
			Name:              cfg.Contracts.ServersDomain.Name,
			Version:           cfg.Contracts.ServersDomain.Version,
			VerifyingContract: cfg.Contracts.Servers,
		},
	}, nonce.NewSource(permissionsContract, serversContract), granteesContract, logger.WithField("service", "composer"))

	cache := signer.NewCache(cfg.Signer.CacheTTL)

	var (
		relay  relayer.Relayer
		poller *relayer.Poller
	)
	if cfg.Relayer != nil && cfg.Relayer.URL != "" {
		relayerClient := relayer.NewHTTPClient(cfg.Relayer.URL, cfg.Relayer.Timeout, cfg.Relayer.StatusRetries, logger.WithField("service", "relayer"))
		relay = relayerClient
		poller = relayer.NewPoller(relayerClient, relayer.PollerConfig{
			Interval:    cfg.Poller.Interval,
			MaxInterval: cfg.Poller.MaxInterval,
			Multiplier:  cfg.Poller.Multiplier,
			MaxDuration: cfg.Poller.MaxDuration,
			TickTimeout: cfg.Relayer.Timeout,
		}, logger.WithField("service", "poller"))
	}

	contracts := []*contract.Contract{permissionsContract.Contract, serversContract.Contract, granteesContract.Contract}
	var waiter dispatcher.Waiter
	if poller != nil {
		waiter = poller
	}
	d := dispatcher.New(relay, waiter, contracts, logger.WithField("service", "dispatcher"))

	var uploader grantfile.Uploader
	if cfg.Storage != nil && cfg.Storage.IPFSAPI != "" {
		uploader = grantfile.NewIPFSUploader(cfg.Storage.IPFSAPI, cfg.Storage.Timeout)
	}

	var caller batch.Multicaller
	if cfg.Batch.UseRPCBatch || cfg.Contracts.Multicall == (common.Address{}) {
		caller = batch.NewRPCBatchCaller(client)
	} else {
		caller = batch.NewMulticall3Caller(contract.NewMulticall3Contract(chainLedger, cfg.Contracts.Multicall))
	}

	deps := Deps{
		Composer:   composer,
		Signer:     signer.New(wallet, cache, logger.WithField("service", "signer")),
		Cache:      cache,
		Dispatcher: d,
		Resolver:   events.NewResolver(chainLedger, contracts...),
		GrantFiles: grantfile.NewBuilder(relay, uploader, logger.WithField("service", "grant_files")),
		Reader: batch.NewReader(caller, batch.Contracts{
			Permissions: permissionsContract,
			Servers:     serversContract,
			Grantees:    granteesContract,
		}, uint64(cfg.Batch.Size), logger.WithField("service", "batch")),
		Grantees: granteesContract,
	}
	if store != nil {
		d.SetRecorder(store)
		deps.Operations = store.Operations()
	}
	return NewController(deps, logger), nil
}
